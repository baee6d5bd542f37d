package adapter

import (
	"sync"

	"github.com/leapstack-labs/leapdb/pkg/core"
)

// SentRecords tracks, per table, the ids whose full payload has already
// been handed to the caller. Such rows are answered with a bare id.
type SentRecords struct {
	mu     sync.Mutex
	tables map[string]map[string]struct{}
}

// NewSentRecords returns an empty set.
func NewSentRecords() *SentRecords {
	return &SentRecords{tables: make(map[string]map[string]struct{})}
}

// IsSent reports whether id has been sent for table.
func (s *SentRecords) IsSent(table, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tables[table][id]
	return ok
}

// MarkSent records id as sent.
func (s *SentRecords) MarkSent(table, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mark(table, id)
}

func (s *SentRecords) mark(table, id string) {
	ids, ok := s.tables[table]
	if !ok {
		ids = make(map[string]struct{})
		s.tables[table] = ids
	}
	ids[id] = struct{}{}
}

// Unmark forgets id.
func (s *SentRecords) Unmark(table, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables[table], id)
}

// Clear forgets every id.
func (s *SentRecords) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[string]map[string]struct{})
}

// Row returns a bare id row if raw was already sent. Otherwise it marks
// raw as sent and returns the full payload.
func (s *SentRecords) Row(table string, raw core.RawRecord) core.Row {
	id := raw.ID()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[table][id]; ok {
		return core.IDRow(id)
	}
	s.mark(table, id)
	return core.RawRow(raw)
}

// Apply updates the set for a committed batch: created records are sent,
// deleted and destroyed ones are forgotten.
func (s *SentRecords) Apply(ops []core.BatchOperation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		switch op.Type {
		case core.OpCreate:
			s.mark(op.Table, op.ID)
		case core.OpMarkAsDeleted, core.OpDestroyPermanently:
			delete(s.tables[op.Table], op.ID)
		}
	}
}
