package database

import (
	"context"
	"fmt"
	"slices"

	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/observe"
	"github.com/leapstack-labs/leapdb/pkg/query"
	"github.com/leapstack-labs/leapdb/pkg/schema"
)

// ChangeType tags one entry of a change set.
type ChangeType string

// Change types.
const (
	ChangeCreated   ChangeType = "created"
	ChangeUpdated   ChangeType = "updated"
	ChangeDestroyed ChangeType = "destroyed"
)

// Change is one applied record change.
type Change struct {
	Record *Record
	Type   ChangeType
}

// Collection is the gateway to the records of one table.
type Collection struct {
	db     *Database
	schema *schema.TableSchema
	cache  *RecordCache

	// subscribers receive raw change sets before the broadcast stream.
	subscribers observe.Subject[[]Change]
	changes     observe.Subject[[]Change]
}

func newCollection(db *Database, t *schema.TableSchema) *Collection {
	c := &Collection{db: db, schema: t}
	c.cache = NewRecordCache(t.Name, func(raw core.RawRecord) *Record {
		return newRecord(c, raw)
	}, db.logger, db.devMode)
	return c
}

// Database returns the owning database.
func (c *Collection) Database() *Database {
	return c.db
}

// Table returns the table name.
func (c *Collection) Table() string {
	return c.schema.Name
}

// Schema returns the table schema.
func (c *Collection) Schema() *schema.TableSchema {
	return c.schema
}

// Find returns the record with id. It answers from the identity cache when
// possible and fails with *core.NotFoundError when storage has no such row.
func (c *Collection) Find(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, &core.NotFoundError{Table: c.Table(), ID: id}
	}
	if r, ok := c.cache.Get(id); ok {
		return r, nil
	}

	// The adapter marks returned rows as sent, so they must reach the cache
	// even when ctx ends first.
	c.db.resolveMu.Lock()
	defer c.db.resolveMu.Unlock()
	row, err := c.db.adapter.Find(context.WithoutCancel(ctx), c.Table(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s#%s: %w", c.Table(), id, err)
	}
	if row == nil {
		return nil, &core.NotFoundError{Table: c.Table(), ID: id}
	}
	return c.cache.RecordFromQueryResult(*row), nil
}

// Query starts a query on this collection.
func (c *Collection) Query(clauses ...query.Clause) *Query {
	return newQuery(c, clauses)
}

// optimizeOptions gives the optimizer this table's indexes and joins.
func (c *Collection) optimizeOptions() query.OptimizeOptions {
	return query.OptimizeOptions{
		IsIndexed:     c.schema.IsIndexed,
		SingleRowJoin: c.schema.IsSingleRowJoin,
	}
}

// storageDescription is the description sent to the adapter: deleted
// records filtered out, clauses reordered by cost.
func (c *Collection) storageDescription(q *Query) (*query.Description, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.collection != c {
		return nil, fmt.Errorf("query on %s fetched from collection %s", q.collection.Table(), c.Table())
	}
	return query.OptimizeDescription(query.WithoutDeleted(q.desc), c.optimizeOptions()), nil
}

// FetchQuery runs q and returns its records.
func (c *Collection) FetchQuery(ctx context.Context, q *Query) ([]*Record, error) {
	d, err := c.storageDescription(q)
	if err != nil {
		return nil, err
	}

	c.db.resolveMu.Lock()
	defer c.db.resolveMu.Unlock()
	rows, err := c.db.adapter.Query(context.WithoutCancel(ctx), c.Table(), d)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.Table(), err)
	}
	return c.cache.RecordsFromQueryResult(rows), nil
}

// FetchCount returns the number of records matching q.
func (c *Collection) FetchCount(ctx context.Context, q *Query) (int, error) {
	d, err := c.storageDescription(q)
	if err != nil {
		return 0, err
	}
	n, err := c.db.adapter.Count(ctx, c.Table(), d)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c.Table(), err)
	}
	return n, nil
}

// PrepareCreate builds a new record with a fresh id and prepares its
// creation. fn sets the initial values. The record is stored by a later
// Database.Batch.
func (c *Collection) PrepareCreate(fn func(r *Record)) *Record {
	r := newRecord(c, schema.SanitizedRaw(c.schema, nil))
	r.prepareCreate(fn, true)
	return r
}

// PrepareCreateFromDirtyRaw prepares the creation of a record from an
// unsanitized payload, for example one received from a sync server.
func (c *Collection) PrepareCreateFromDirtyRaw(dirty map[string]any) *Record {
	r := newRecord(c, schema.SanitizedRaw(c.schema, dirty))
	r.prepareCreate(nil, false)
	return r
}

// Create prepares a record with PrepareCreate and stores it. It must be
// called inside a writer.
func (c *Collection) Create(ctx context.Context, fn func(r *Record)) (*Record, error) {
	r := c.PrepareCreate(fn)
	if err := c.db.Batch(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// SubscribeToChanges registers fn for every change set of this
// collection. fn runs before the broadcast stream and record observers.
func (c *Collection) SubscribeToChanges(fn func(changes []Change)) (unsubscribe func()) {
	return c.subscribers.Subscribe(fn)
}

// Changes returns the broadcast stream of change sets.
func (c *Collection) Changes() *observe.Subject[[]Change] {
	return &c.changes
}

// UnsafeClearCache drops every cached record. Storage still treats the
// dropped records as held by the caller, so this is only safe right before
// storage forgets them too.
func (c *Collection) UnsafeClearCache() {
	c.cache.Clear()
}

// applyChange mutates the identity cache for one committed change.
func (c *Collection) applyChange(ch Change) {
	switch ch.Type {
	case ChangeCreated:
		c.cache.Add(ch.Record)
	case ChangeDestroyed:
		c.cache.Delete(ch.Record)
	}
}

// notify broadcasts a committed change set. The cache already reflects it.
func (c *Collection) notify(changes []Change) {
	changes = slices.Clip(changes)
	c.subscribers.Next(changes)
	c.changes.Next(changes)
	for _, ch := range changes {
		ch.Record.signal(ch)
	}
}
