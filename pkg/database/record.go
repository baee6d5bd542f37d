package database

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/observe"
	"github.com/leapstack-labs/leapdb/pkg/schema"
)

// Timestamp columns maintained by the engine when declared as numbers.
const (
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

// Record is the live in-memory representation of one stored row. A
// Collection hands out at most one Record per id.
type Record struct {
	collection *Collection

	mu  sync.RWMutex
	raw core.RawRecord

	// editing is set while a create or update builder runs.
	editing bool
	// prepared is the operation awaiting the next batch.
	prepared core.BatchOperationType
	// saved is the raw from before preparation, restored if the batch fails.
	saved     core.RawRecord
	destroyed bool

	observers observe.Subject[Change]
}

func newRecord(c *Collection, raw core.RawRecord) *Record {
	return &Record{collection: c, raw: raw}
}

// ID returns the record id.
func (r *Record) ID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.raw.ID()
}

// Table returns the table name.
func (r *Record) Table() string {
	return r.collection.Table()
}

// Collection returns the owning collection.
func (r *Record) Collection() *Collection {
	return r.collection
}

// Status returns the sync status.
func (r *Record) Status() core.RecordStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.raw.Status()
}

// Get returns the value of column.
func (r *Record) Get(column string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.raw[column]
}

// Raw returns a copy of the raw record.
func (r *Record) Raw() core.RawRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.raw.Clone()
}

// ChangedColumns returns the columns changed since the last sync.
func (r *Record) ChangedColumns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return splitChanged(r.raw)
}

// IsDestroyed reports whether the record was destroyed permanently.
func (r *Record) IsDestroyed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.destroyed
}

// Set assigns column. It may only be called from a create or update
// builder. The value is coerced to the column type.
func (r *Record) Set(column string, v any) {
	col, ok := r.collection.schema.Column(column)
	core.Invariant(ok, "table %s has no column %q", r.Table(), column)

	r.mu.Lock()
	defer r.mu.Unlock()
	core.Invariant(r.editing, "record %s#%s modified outside a create or update builder", r.Table(), r.raw.ID())
	r.setLocked(col, v)
}

func (r *Record) setLocked(col schema.ColumnSchema, v any) {
	before, had := r.raw[col.Name]
	after := schema.SanitizeValue(col, v)
	r.raw[col.Name] = after
	if had && before == after {
		return
	}
	if r.raw.Status() != core.StatusCreated {
		markChanged(r.raw, col.Name)
	}
}

// touch sets a timestamp column when the table declares it as a number.
func (r *Record) touch(column string, now time.Time) {
	col, ok := r.collection.schema.Column(column)
	if !ok || col.Type != schema.TypeNumber {
		return
	}
	r.setLocked(col, float64(now.UnixMilli()))
}

func (r *Record) prepareCreate(fn func(r *Record), stamp bool) {
	r.mu.Lock()
	r.editing = true
	if stamp {
		now := time.Now()
		r.touch(ColumnCreatedAt, now)
		r.touch(ColumnUpdatedAt, now)
	}
	r.mu.Unlock()

	if fn != nil {
		fn(r)
	}

	r.mu.Lock()
	r.editing = false
	r.prepared = core.OpCreate
	r.mu.Unlock()
}

// PrepareUpdate applies fn to the record and prepares the update for the
// next batch.
func (r *Record) PrepareUpdate(fn func(r *Record)) *Record {
	r.mu.Lock()
	r.checkUnprepared()
	r.saved = r.raw.Clone()
	r.editing = true
	r.mu.Unlock()

	fn(r)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch(ColumnUpdatedAt, time.Now())
	if r.raw.Status() == core.StatusSynced {
		r.raw[core.ColumnStatus] = string(core.StatusUpdated)
	}
	r.editing = false
	r.prepared = core.OpUpdate
	return r
}

// Update applies fn and stores the result. It must be called inside a
// writer.
func (r *Record) Update(ctx context.Context, fn func(r *Record)) error {
	return r.collection.db.Batch(ctx, r.PrepareUpdate(fn))
}

// PrepareMarkAsDeleted prepares a soft delete. The row stays in storage
// with the deleted status until the deletion is synced.
func (r *Record) PrepareMarkAsDeleted() *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkUnprepared()
	r.saved = r.raw.Clone()
	r.raw[core.ColumnStatus] = string(core.StatusDeleted)
	r.prepared = core.OpMarkAsDeleted
	return r
}

// MarkAsDeleted soft-deletes the record. It must be called inside a writer.
func (r *Record) MarkAsDeleted(ctx context.Context) error {
	return r.collection.db.Batch(ctx, r.PrepareMarkAsDeleted())
}

// PrepareDestroyPermanently prepares removal of the row from storage.
func (r *Record) PrepareDestroyPermanently() *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkUnprepared()
	r.saved = r.raw.Clone()
	r.prepared = core.OpDestroyPermanently
	return r
}

// DestroyPermanently removes the row from storage. It must be called
// inside a writer.
func (r *Record) DestroyPermanently(ctx context.Context) error {
	return r.collection.db.Batch(ctx, r.PrepareDestroyPermanently())
}

// Observe registers fn for the changes applied to this record.
func (r *Record) Observe(fn func(Change)) (unsubscribe func()) {
	return r.observers.Subscribe(fn)
}

// checkUnprepared requires r.mu.
func (r *Record) checkUnprepared() {
	core.Invariant(r.prepared == "", "record %s#%s already has a prepared %s", r.collection.Table(), r.raw.ID(), r.prepared)
	core.Invariant(!r.destroyed, "record %s#%s was destroyed", r.collection.Table(), r.raw.ID())
}

func (r *Record) batchOperation() (core.BatchOperation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.prepared == "" {
		return core.BatchOperation{}, false
	}
	op := core.BatchOperation{Type: r.prepared, Table: r.Table(), ID: r.raw.ID()}
	switch r.prepared {
	case core.OpCreate, core.OpUpdate:
		op.Raw = r.raw.Clone()
	}
	return op, true
}

// commit clears the prepared state after a successful batch.
func (r *Record) commit() Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := Change{Record: r, Type: ChangeUpdated}
	switch r.prepared {
	case core.OpCreate:
		ch.Type = ChangeCreated
	case core.OpDestroyPermanently:
		ch.Type = ChangeDestroyed
		r.destroyed = true
	}
	r.prepared = ""
	r.saved = nil
	return ch
}

// revert restores the state from before preparation after a failed batch.
func (r *Record) revert() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved != nil {
		r.raw = r.saved
	}
	r.prepared = ""
	r.saved = nil
}

func (r *Record) signal(ch Change) {
	r.observers.Next(ch)
}

func (r *Record) String() string {
	return fmt.Sprintf("%s#%s", r.Table(), r.ID())
}

func splitChanged(raw core.RawRecord) []string {
	s, _ := raw[core.ColumnChanged].(string)
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// markChanged adds column to _changed and flags a synced record as updated.
func markChanged(raw core.RawRecord, column string) {
	changed := splitChanged(raw)
	if !slices.Contains(changed, column) {
		changed = append(changed, column)
		raw[core.ColumnChanged] = strings.Join(changed, ",")
	}
	if raw.Status() == core.StatusSynced {
		raw[core.ColumnStatus] = string(core.StatusUpdated)
	}
}
