package database

import (
	"log/slog"
	"sync"

	"github.com/leapstack-labs/leapdb/pkg/core"
)

// RecordCache maps ids to the live records of one table.
type RecordCache struct {
	table   string
	build   func(core.RawRecord) *Record
	logger  *slog.Logger
	devMode bool

	mu      sync.RWMutex
	records map[string]*Record
}

// NewRecordCache returns an empty cache for table. build turns a raw
// payload into a new record.
func NewRecordCache(table string, build func(core.RawRecord) *Record, logger *slog.Logger, devMode bool) *RecordCache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RecordCache{
		table:   table,
		build:   build,
		logger:  logger,
		devMode: devMode,
		records: make(map[string]*Record),
	}
}

// Get returns the cached record for id.
func (c *RecordCache) Get(id string) (*Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[id]
	return r, ok
}

// Add caches r. Adding an id twice is an invariant violation.
func (c *RecordCache) Add(r *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.records[r.ID()]
	core.Invariant(!exists, "record %s#%s is already cached", c.table, r.ID())
	c.records[r.ID()] = r
}

// Delete evicts r.
func (c *RecordCache) Delete(r *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, r.ID())
}

// Clear evicts every record.
func (c *RecordCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[string]*Record)
}

// Len returns the number of cached records.
func (c *RecordCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// RecordsFromQueryResult resolves rows into records.
func (c *RecordCache) RecordsFromQueryResult(rows []core.Row) []*Record {
	out := make([]*Record, len(rows))
	for i, row := range rows {
		out[i] = c.RecordFromQueryResult(row)
	}
	return out
}

// RecordFromQueryResult resolves one row. A bare id must already be
// cached. A payload for a cached id resolves to the cached record and the
// payload is dropped. Any other payload becomes a new cached record.
func (c *RecordCache) RecordFromQueryResult(row core.Row) *Record {
	if row.IsBareID() {
		r, ok := c.Get(row.ID)
		core.Invariant(ok, "record %s#%s was sent as a bare id but is not cached", c.table, row.ID)
		return r
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.records[row.ID]; ok {
		if c.devMode {
			c.logger.Warn("adapter sent a full payload for a cached record",
				"table", c.table, "id", row.ID)
		}
		return r
	}
	r := c.build(row.Raw)
	c.records[row.ID] = r
	return r
}
