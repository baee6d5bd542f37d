package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/leapdb/pkg/adapter"
	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/observe"
	"github.com/leapstack-labs/leapdb/pkg/schema"
	"golang.org/x/sync/semaphore"
)

// Database orchestrates the collections of one adapter.
type Database struct {
	adapter adapter.Adapter
	schema  *schema.AppSchema
	logger  *slog.Logger
	devMode bool

	collections map[string]*Collection

	// writer serializes writers. Waiters are admitted in FIFO order.
	writer *semaphore.Weighted

	// resolveMu keeps adapter calls and identity cache updates in step, so
	// a bare id row always refers to a cached record.
	resolveMu sync.Mutex

	resetCount atomic.Int64
	resets     observe.Subject[int64]

	local *LocalStorage
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(db *Database) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// WithDevMode enables development diagnostics.
func WithDevMode(on bool) Option {
	return func(db *Database) {
		db.devMode = on
	}
}

// New wraps a ready adapter. It fails with adapter.ErrNotReady when a
// reports that its storage has not been set up; use Open for those.
func New(a adapter.Adapter, opts ...Option) (*Database, error) {
	if r, ok := a.(adapter.Readiness); ok && !r.Ready() {
		return nil, fmt.Errorf("%w: open it with database.Open", adapter.ErrNotReady)
	}
	return newDatabase(a, opts...), nil
}

func newDatabase(a adapter.Adapter, opts ...Option) *Database {
	db := &Database{
		adapter:     a,
		schema:      a.Schema(),
		logger:      slog.New(slog.DiscardHandler),
		collections: make(map[string]*Collection),
		writer:      semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(db)
	}
	for _, t := range db.schema.Tables() {
		db.collections[t.Name] = newCollection(db, t)
	}
	db.local = &LocalStorage{db: db}
	return db
}

// Open wraps a and prepares its storage. Adapters implementing
// adapter.SchemaSetup are asked for their schema state and then migrated
// when the migrations cover the stored version, or recreated otherwise.
func Open(ctx context.Context, a adapter.Adapter, opts ...Option) (*Database, error) {
	db := newDatabase(a, opts...)
	setup, ok := a.(adapter.SchemaSetup)
	if !ok {
		return db, nil
	}

	signal, err := setup.Initialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize adapter: %w", err)
	}
	db.logger.Debug("adapter initialized", "signal", signal.Kind.String(), "version", signal.DatabaseVersion)

	switch signal.Kind {
	case core.SchemaReady:
		return db, nil
	case core.SchemaNeedsMigration:
		if setup.CanMigrate(signal.DatabaseVersion) {
			if err := setup.SetUpWithMigrations(ctx, signal.DatabaseVersion); err != nil {
				return nil, fmt.Errorf("failed to migrate database from version %d: %w", signal.DatabaseVersion, err)
			}
			return db, nil
		}
		db.logger.Warn("no migrations cover the stored schema, recreating database",
			"from", signal.DatabaseVersion, "to", db.schema.Version)
	}
	if err := setup.SetUpWithSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}
	return db, nil
}

// Adapter returns the underlying adapter.
func (db *Database) Adapter() adapter.Adapter {
	return db.adapter
}

// Schema returns the app schema.
func (db *Database) Schema() *schema.AppSchema {
	return db.schema
}

// Get returns the collection for table, or nil if the schema has no such
// table.
func (db *Database) Get(table string) *Collection {
	return db.collections[table]
}

// Collection returns the collection for table.
func (db *Database) Collection(table string) (*Collection, error) {
	c, ok := db.collections[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	return c, nil
}

// Local returns the local key/value storage.
func (db *Database) Local() *LocalStorage {
	return db.local
}

// ResetCount returns the number of completed UnsafeResetDatabase calls.
func (db *Database) ResetCount() int64 {
	return db.resetCount.Load()
}

// OnReset registers fn to run after every database reset.
func (db *Database) OnReset(fn func()) (unsubscribe func()) {
	return db.resets.Subscribe(func(int64) { fn() })
}

// WithChangesForTables subscribes fn to the change sets of the given
// tables. Change sets are delivered one table at a time, in batch order.
func (db *Database) WithChangesForTables(tables []string, fn func(table string, changes []Change)) (unsubscribe func(), err error) {
	unsubs := make([]func(), 0, len(tables))
	seen := make(map[string]bool, len(tables))
	for _, table := range tables {
		if seen[table] {
			continue
		}
		seen[table] = true
		c, err := db.Collection(table)
		if err != nil {
			for _, u := range unsubs {
				u()
			}
			return nil, err
		}
		unsubs = append(unsubs, c.changes.Subscribe(func(changes []Change) {
			fn(table, changes)
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}, nil
}

// Batch applies the prepared operations of records atomically. It must be
// called inside a writer. Either every operation is applied, or none is
// and the records keep their state from before preparation.
func (db *Database) Batch(ctx context.Context, records ...*Record) error {
	tok := writerFrom(ctx, db)
	core.Invariant(tok != nil, "batch called outside a writer")
	core.Invariant(!tok.readOnly, "batch called inside a reader")

	if len(records) == 0 {
		return nil
	}

	ops := make([]core.BatchOperation, 0, len(records))
	seen := make(map[*Record]bool, len(records))
	for _, r := range records {
		if r == nil {
			return errors.New("batch: nil record")
		}
		if seen[r] {
			return fmt.Errorf("batch: record %s#%s appears more than once", r.Table(), r.ID())
		}
		seen[r] = true
		op, ok := r.batchOperation()
		if !ok {
			return fmt.Errorf("batch: record %s#%s has no prepared operation", r.Table(), r.ID())
		}
		ops = append(ops, op)
	}

	// Once the backend has the batch the caches must follow it, so the
	// call is not cancelled with ctx.
	db.resolveMu.Lock()
	if err := db.adapter.Batch(context.WithoutCancel(ctx), ops); err != nil {
		db.resolveMu.Unlock()
		for _, r := range records {
			r.revert()
		}
		return fmt.Errorf("failed to apply batch: %w", err)
	}

	var order []*Collection
	pending := make(map[*Collection][]Change)
	for _, r := range records {
		change := r.commit()
		c := r.collection
		c.applyChange(change)
		if _, ok := pending[c]; !ok {
			order = append(order, c)
		}
		pending[c] = append(pending[c], change)
	}
	db.resolveMu.Unlock()

	db.logger.Debug("batch applied", "operations", len(ops))
	for _, c := range order {
		c.notify(pending[c])
	}
	return nil
}

// UnsafeResetDatabase drops every record and local value, clears the
// identity caches and notifies reset listeners. Records held by callers
// are invalid afterwards.
func (db *Database) UnsafeResetDatabase(ctx context.Context) error {
	tok := writerFrom(ctx, db)
	core.Invariant(tok != nil && !tok.readOnly, "UnsafeResetDatabase called outside a writer")

	db.resolveMu.Lock()
	err := db.adapter.UnsafeResetDatabase(context.WithoutCancel(ctx))
	if err == nil {
		for _, c := range db.collections {
			c.cache.Clear()
		}
	}
	db.resolveMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}

	n := db.resetCount.Add(1)
	db.logger.Info("database reset", "count", n)
	db.resets.Next(n)
	return nil
}

// Close closes the adapter.
func (db *Database) Close() error {
	if err := db.adapter.Close(); err != nil {
		return fmt.Errorf("failed to close adapter: %w", err)
	}
	return nil
}
