package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/leapstack-labs/leapdb/pkg/adapter"
	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/matcher"
	"github.com/leapstack-labs/leapdb/pkg/query"
	"github.com/leapstack-labs/leapdb/pkg/schema"
)

// Driver is the boundary side of the document store. It is only called from
// the dispatcher worker that owns it.
type Driver struct {
	schema     *schema.AppSchema
	migrations *schema.Migrations
	logger     *slog.Logger
	path       string

	version int
	tables  map[string]*table
	local   map[string]string
	sent    *adapter.SentRecords
	eval    *matcher.Evaluator
}

var _ adapter.Driver = (*Driver)(nil)

// Open creates a store. When cfg.Path names a file the store is loaded from
// and persisted to it.
func Open(cfg core.AdapterConfig, opts adapter.Options) (*Driver, error) {
	if opts.Schema == nil {
		return nil, fmt.Errorf("memory: schema not specified")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := &Driver{
		schema:     opts.Schema,
		migrations: opts.Migrations,
		logger:     logger,
		tables:     make(map[string]*table),
		local:      make(map[string]string),
		sent:       adapter.NewSentRecords(),
	}
	if cfg.Path != "" && cfg.Path != ":memory:" {
		d.path = cfg.Path
	}
	d.eval = &matcher.Evaluator{Join: d.join}

	if d.path != "" {
		snap, err := readSnapshot(d.path)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			d.restore(snap)
			logger.Debug("loaded snapshot", "path", d.path, "version", d.version)
		}
	}
	return d, nil
}

func (d *Driver) restore(snap *snapshot) {
	d.version = snap.Version
	for name, rows := range snap.Tables {
		t := newTable()
		for _, raw := range rows {
			t.rows[raw.ID()] = raw
			t.order = append(t.order, raw.ID())
		}
		d.tables[name] = t
	}
	if snap.Local != nil {
		d.local = snap.Local
	}
}

// persist writes the snapshot file, if any.
func (d *Driver) persist() error {
	if d.path == "" {
		return nil
	}
	snap := &snapshot{
		Version: d.version,
		Tables:  make(map[string][]core.RawRecord, len(d.tables)),
		Local:   d.local,
	}
	for name, t := range d.tables {
		snap.Tables[name] = t.all()
	}
	return writeSnapshot(d.path, snap)
}

func (d *Driver) table(name string) (*table, error) {
	t, ok := d.tables[name]
	if !ok {
		return nil, fmt.Errorf("unknown table %s", name)
	}
	return t, nil
}

// join resolves the rows of table to associated with raw, a row of from.
func (d *Driver) join(from, to string, raw core.RawRecord) ([]core.RawRecord, error) {
	ts, ok := d.schema.Table(from)
	if !ok {
		return nil, fmt.Errorf("unknown table %s", from)
	}
	assoc, ok := ts.Association(to)
	if !ok {
		return nil, fmt.Errorf("no association from %s to %s", from, to)
	}
	target, err := d.table(to)
	if err != nil {
		return nil, err
	}
	switch assoc.Kind {
	case schema.BelongsTo:
		id, _ := raw[assoc.Key].(string)
		if row, ok := target.rows[id]; ok {
			return []core.RawRecord{row}, nil
		}
		return nil, nil
	case schema.HasMany:
		var out []core.RawRecord
		for _, row := range target.all() {
			if row[assoc.ForeignKey] == raw.ID() {
				out = append(out, row)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown association kind %q", assoc.Kind)
}

// Initialize reports whether the stored schema matches the app schema.
func (d *Driver) Initialize(context.Context) (core.SchemaSignal, error) {
	switch {
	case d.version == d.schema.Version:
		return core.SchemaSignal{Kind: core.SchemaReady, DatabaseVersion: d.version}, nil
	case d.version > 0 && d.version < d.schema.Version:
		return core.SchemaSignal{Kind: core.SchemaNeedsMigration, DatabaseVersion: d.version}, nil
	}
	return core.SchemaSignal{Kind: core.SchemaNeedsSetup, DatabaseVersion: d.version}, nil
}

// SetUpWithSchema drops everything and creates empty tables.
func (d *Driver) SetUpWithSchema(context.Context) error {
	d.logger.Info("setting up document store", "version", d.schema.Version)
	d.tables = make(map[string]*table)
	for _, name := range d.schema.TableNames() {
		d.tables[name] = newTable()
	}
	d.local = make(map[string]string)
	d.version = d.schema.Version
	d.sent.Clear()
	return d.persist()
}

// SetUpWithMigrations applies the migration steps from fromVersion. When the
// history does not cover the range the store is recreated instead.
func (d *Driver) SetUpWithMigrations(ctx context.Context, fromVersion int) error {
	steps, ok := d.migrations.StepsBetween(fromVersion, d.schema.Version)
	if !ok {
		d.logger.Warn("migrations do not cover store version, resetting", "from", fromVersion, "to", d.schema.Version)
		return d.SetUpWithSchema(ctx)
	}

	next := make(map[string]*table, len(d.tables))
	for name, t := range d.tables {
		next[name] = t.clone()
	}
	for _, step := range steps {
		switch step.Kind {
		case schema.StepCreateTable:
			if _, exists := next[step.TableName]; !exists {
				next[step.TableName] = newTable()
			}
		case schema.StepAddColumns:
			t, ok := next[step.TableName]
			if !ok {
				return fmt.Errorf("failed to migrate from version %d: unknown table %s", fromVersion, step.TableName)
			}
			for _, raw := range t.rows {
				for _, c := range step.Columns {
					raw[c.Name] = c.Default()
				}
			}
		}
	}

	prevTables, prevVersion := d.tables, d.version
	d.tables, d.version = next, d.schema.Version
	if err := d.persist(); err != nil {
		d.tables, d.version = prevTables, prevVersion
		return err
	}
	d.logger.Info("migrated document store", "from", fromVersion, "to", d.schema.Version)
	return nil
}

// Find returns the row for id. Rows already sent come back as bare ids.
func (d *Driver) Find(_ context.Context, tableName, id string) (*core.Row, error) {
	t, err := d.table(tableName)
	if err != nil {
		return nil, err
	}
	if d.sent.IsSent(tableName, id) {
		row := core.IDRow(id)
		return &row, nil
	}
	raw, ok := t.rows[id]
	if !ok {
		return nil, nil
	}
	row := d.sent.Row(tableName, raw)
	return &row, nil
}

func (d *Driver) match(tableName string, q *query.Description) ([]core.RawRecord, error) {
	t, err := d.table(tableName)
	if err != nil {
		return nil, err
	}
	where := q.Where()
	var out []core.RawRecord
	for _, raw := range t.all() {
		ok, err := d.eval.Match(tableName, where, raw)
		if err != nil {
			if errors.Is(err, matcher.ErrUnsupportedClause) {
				return nil, fmt.Errorf("%w: %v", core.ErrUnsupported, err)
			}
			return nil, err
		}
		if ok {
			out = append(out, raw)
		}
	}

	if sorts := q.SortBy(); len(sorts) > 0 {
		slices.SortStableFunc(out, func(a, b core.RawRecord) int {
			for _, s := range sorts {
				c := matcher.Compare(a[s.Column], b[s.Column])
				if s.Order == query.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}

	if take, ok := q.Take(); ok {
		skip, _ := q.Skip()
		start := min(skip, len(out))
		end := min(start+take, len(out))
		out = out[start:end]
	}
	return out, nil
}

// Query returns the rows matching q.
func (d *Driver) Query(_ context.Context, tableName string, q *query.Description) ([]core.Row, error) {
	raws, err := d.match(tableName, q)
	if err != nil {
		return nil, err
	}
	out := make([]core.Row, len(raws))
	for i, raw := range raws {
		out[i] = d.sent.Row(tableName, raw)
	}
	return out, nil
}

// Count returns the number of rows matching q.
func (d *Driver) Count(_ context.Context, tableName string, q *query.Description) (int, error) {
	raws, err := d.match(tableName, q)
	if err != nil {
		return 0, err
	}
	return len(raws), nil
}

// Batch applies ops atomically: a failing op or snapshot write undoes
// every op before it.
func (d *Driver) Batch(_ context.Context, ops []core.BatchOperation) error {
	undos := make([]func(), 0, len(ops))
	rollback := func() {
		for _, undo := range slices.Backward(undos) {
			undo()
		}
	}

	for _, op := range ops {
		undo, err := d.applyOp(op)
		if err != nil {
			rollback()
			return fmt.Errorf("failed to apply batch: %s %s#%s: %w", op.Type, op.Table, op.ID, err)
		}
		undos = append(undos, undo)
	}
	if err := d.persist(); err != nil {
		rollback()
		return err
	}
	d.sent.Apply(ops)
	return nil
}

func (d *Driver) applyOp(op core.BatchOperation) (func(), error) {
	t, err := d.table(op.Table)
	if err != nil {
		return nil, err
	}
	switch op.Type {
	case core.OpCreate:
		return t.insert(op.Raw.Clone())
	case core.OpUpdate:
		return t.replace(op.ID, op.Raw.Clone()), nil
	case core.OpMarkAsDeleted:
		prev, ok := t.rows[op.ID]
		if !ok {
			return func() {}, nil
		}
		next := prev.Clone()
		next[core.ColumnStatus] = string(core.StatusDeleted)
		return t.replace(op.ID, next), nil
	case core.OpDestroyPermanently:
		return t.remove(op.ID), nil
	}
	return nil, fmt.Errorf("unknown batch operation %q", op.Type)
}

// GetDeletedRecords returns the ids of rows marked as deleted.
func (d *Driver) GetDeletedRecords(_ context.Context, tableName string) ([]string, error) {
	t, err := d.table(tableName)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, raw := range t.all() {
		if raw.Status() == core.StatusDeleted {
			ids = append(ids, raw.ID())
		}
	}
	return ids, nil
}

// DestroyDeletedRecords permanently removes ids that are marked as deleted.
func (d *Driver) DestroyDeletedRecords(_ context.Context, tableName string, ids []string) error {
	t, err := d.table(tableName)
	if err != nil {
		return err
	}
	var undos []func()
	for _, id := range ids {
		if raw, ok := t.rows[id]; ok && raw.Status() == core.StatusDeleted {
			undos = append(undos, t.remove(id))
		}
	}
	if err := d.persist(); err != nil {
		for _, undo := range slices.Backward(undos) {
			undo()
		}
		return err
	}
	for _, id := range ids {
		d.sent.Unmark(tableName, id)
	}
	return nil
}

// UnsafeResetDatabase drops every record and local value.
func (d *Driver) UnsafeResetDatabase(ctx context.Context) error {
	return d.SetUpWithSchema(ctx)
}

// GetLocal returns the local storage value for key, or nil.
func (d *Driver) GetLocal(_ context.Context, key string) (*string, error) {
	v, ok := d.local[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// SetLocal stores value under key.
func (d *Driver) SetLocal(_ context.Context, key, value string) error {
	prev, had := d.local[key]
	d.local[key] = value
	if err := d.persist(); err != nil {
		if had {
			d.local[key] = prev
		} else {
			delete(d.local, key)
		}
		return err
	}
	return nil
}

// RemoveLocal deletes key.
func (d *Driver) RemoveLocal(_ context.Context, key string) error {
	prev, had := d.local[key]
	if !had {
		return nil
	}
	delete(d.local, key)
	if err := d.persist(); err != nil {
		d.local[key] = prev
		return err
	}
	return nil
}

// UnsafeExecute hands a copy of every table to work.Documents and keeps the
// result if it succeeds. New ids are appended in sorted order.
func (d *Driver) UnsafeExecute(_ context.Context, work adapter.UnsafeWork) error {
	if len(work.SQL) > 0 {
		return fmt.Errorf("%w: sql work on the document store", core.ErrUnsupported)
	}
	if work.Documents == nil {
		return nil
	}

	docs := make(map[string]map[string]core.RawRecord, len(d.tables))
	for name, t := range d.tables {
		docs[name] = t.clone().rows
	}
	if err := work.Documents(docs); err != nil {
		return err
	}

	next := make(map[string]*table, len(docs))
	for name, rows := range docs {
		t := newTable()
		t.rows = rows
		if prev, ok := d.tables[name]; ok {
			for _, id := range prev.order {
				if _, kept := rows[id]; kept {
					t.order = append(t.order, id)
				}
			}
		}
		var added []string
		for id := range rows {
			if prev, ok := d.tables[name]; !ok || prev.rows[id] == nil {
				added = append(added, id)
			}
		}
		slices.Sort(added)
		t.order = append(t.order, added...)
		next[name] = t
	}

	prev := d.tables
	d.tables = next
	if err := d.persist(); err != nil {
		d.tables = prev
		return err
	}
	for name, t := range prev {
		kept, ok := next[name]
		for id := range t.rows {
			if !ok || kept.rows[id] == nil {
				d.sent.Unmark(name, id)
			}
		}
	}
	return nil
}

// Close persists the store.
func (d *Driver) Close() error {
	return d.persist()
}
