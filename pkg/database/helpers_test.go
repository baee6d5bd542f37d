package database

import (
	"context"
	"testing"
	"time"

	"github.com/leapstack-labs/leapdb/internal/testutil"
	"github.com/leapstack-labs/leapdb/pkg/adapter"
	"github.com/leapstack-labs/leapdb/pkg/adapters/memory"
	"github.com/leapstack-labs/leapdb/pkg/adapters/sqlite"
	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/schema"
	"github.com/stretchr/testify/require"
)

func testSchema() *schema.AppSchema {
	return schema.MustAppSchema(1,
		schema.Table("projects",
			schema.StringColumn("name"),
		).WithAssociation("tasks", schema.HasManyForeignKey("project_id")),
		schema.Table("tasks",
			schema.StringColumn("title"),
			schema.StringColumn("project_id").Optional().Indexed(),
			schema.NumberColumn("priority"),
			schema.BoolColumn("done"),
			schema.StringColumn("meta"),
			schema.NumberColumn("due_at").Optional(),
			schema.NumberColumn("created_at"),
			schema.NumberColumn("updated_at"),
		).WithAssociation("projects", schema.BelongsToKey("project_id")),
	)
}

func openMemory(t *testing.T, cfg core.AdapterConfig, opts adapter.Options) adapter.Adapter {
	t.Helper()
	a, err := memory.New(cfg, opts)
	require.NoError(t, err)
	return a
}

func openSQLite(t *testing.T, cfg core.AdapterConfig, opts adapter.Options) adapter.Adapter {
	t.Helper()
	a, err := sqlite.New(cfg, opts)
	require.NoError(t, err)
	return a
}

var backends = []struct {
	name        string
	open        func(t *testing.T, cfg core.AdapterConfig, opts adapter.Options) adapter.Adapter
	synchronous bool
}{
	{name: "memory", open: openMemory},
	{name: "memory synchronous", open: openMemory, synchronous: true},
	{name: "sqlite", open: openSQLite},
	{name: "sqlite synchronous", open: openSQLite, synchronous: true},
}

// forEachBackend runs fn against a freshly opened database per backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, db *Database)) {
	t.Helper()
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			a := b.open(t, core.AdapterConfig{Synchronous: b.synchronous}, adapter.Options{
				Schema: testSchema(),
				Logger: testutil.NewTestLogger(t),
			})
			db := openDatabase(t, a)
			fn(t, db)
		})
	}
}

func openDatabase(t *testing.T, a adapter.Adapter) *Database {
	t.Helper()
	db, err := Open(context.Background(), a, WithLogger(testutil.NewTestLogger(t)), WithDevMode(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func write(t *testing.T, db *Database, fn func(ctx context.Context) error) {
	t.Helper()
	require.NoError(t, db.Write(context.Background(), fn))
}

func createTask(t *testing.T, db *Database, title string, priority float64) *Record {
	t.Helper()
	var rec *Record
	write(t, db, func(ctx context.Context) error {
		var err error
		rec, err = db.Get("tasks").Create(ctx, func(r *Record) {
			r.Set("title", title)
			r.Set("priority", priority)
		})
		return err
	})
	return rec
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for emission")
	}
	var zero T
	return zero
}

func observeRecords(t *testing.T, q *Query) <-chan []*Record {
	t.Helper()
	ch := make(chan []*Record, 16)
	unsubscribe := q.Observe(func(records []*Record) { ch <- records })
	t.Cleanup(unsubscribe)
	return ch
}

func ids(records []*Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID()
	}
	return out
}

func mustNew(t *testing.T, a adapter.Adapter) *Database {
	t.Helper()
	db, err := New(a)
	require.NoError(t, err)
	return db
}
