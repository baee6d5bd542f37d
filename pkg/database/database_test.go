package database

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/leapdb/internal/testutil"
	"github.com/leapstack-labs/leapdb/pkg/adapter"
	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/query"
	"github.com/leapstack-labs/leapdb/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type setupAdapter struct {
	adapter.Adapter
	schema     *schema.AppSchema
	signal     core.SchemaSignal
	canMigrate bool
	calls      []string
}

func (a *setupAdapter) Schema() *schema.AppSchema { return a.schema }

func (a *setupAdapter) Initialize(context.Context) (core.SchemaSignal, error) {
	a.calls = append(a.calls, "initialize")
	return a.signal, nil
}

func (a *setupAdapter) SetUpWithSchema(context.Context) error {
	a.calls = append(a.calls, "schema")
	return nil
}

func (a *setupAdapter) SetUpWithMigrations(_ context.Context, from int) error {
	a.calls = append(a.calls, "migrations")
	return nil
}

func (a *setupAdapter) CanMigrate(int) bool { return a.canMigrate }

func TestOpen_InterpretsSchemaSignal(t *testing.T) {
	tests := []struct {
		name       string
		signal     core.SchemaSignal
		canMigrate bool
		want       []string
		warns      []string
	}{
		{
			name:   "ready",
			signal: core.SchemaSignal{Kind: core.SchemaReady},
			want:   []string{"initialize"},
		},
		{
			name:   "needs setup",
			signal: core.SchemaSignal{Kind: core.SchemaNeedsSetup},
			want:   []string{"initialize", "schema"},
		},
		{
			name:       "needs migration",
			signal:     core.SchemaSignal{Kind: core.SchemaNeedsMigration, DatabaseVersion: 1},
			canMigrate: true,
			want:       []string{"initialize", "migrations"},
		},
		{
			name:   "migration not covered",
			signal: core.SchemaSignal{Kind: core.SchemaNeedsMigration, DatabaseVersion: 1},
			want:   []string{"initialize", "schema"},
			warns:  []string{"no migrations cover the stored schema, recreating database"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &setupAdapter{schema: testSchema(), signal: tt.signal, canMigrate: tt.canMigrate}
			logger, logs := testutil.NewRecorder()
			db, err := Open(context.Background(), a, WithLogger(logger))
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.calls)
			assert.Equal(t, tt.warns, logs.Messages())
			assert.NotNil(t, db.Get("tasks"))
			assert.Nil(t, db.Get("missing"))
		})
	}
}

func TestOpen_PersistentSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	ctx := context.Background()

	v1 := testSchema()
	a := openSQLite(t, core.AdapterConfig{Path: path}, adapter.Options{Schema: v1})
	db, err := Open(ctx, a)
	require.NoError(t, err)
	rec := createTask(t, db, "persisted", 1)
	require.NoError(t, db.Close())

	tasks, _ := v1.Table("tasks")
	v2Tasks := schema.Table("tasks", append(slices.Clone(tasks.Columns), schema.StringColumn("notes"))...).
		WithAssociation("projects", schema.BelongsToKey("project_id"))
	projects, _ := v1.Table("projects")
	v2 := schema.MustAppSchema(2, projects, v2Tasks)
	migrations, err := schema.NewMigrations(schema.Migration{
		ToVersion: 2,
		Steps:     []schema.MigrationStep{schema.AddColumns("tasks", schema.StringColumn("notes"))},
	})
	require.NoError(t, err)

	a = openSQLite(t, core.AdapterConfig{Path: path}, adapter.Options{Schema: v2, Migrations: migrations})
	db, err = Open(ctx, a)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	found, err := db.Get("tasks").Find(ctx, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, "persisted", found.Get("title"))
	assert.Equal(t, "", found.Get("notes"))
}

func TestFind(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		rec := createTask(t, db, "a", 1)

		found, err := db.Get("tasks").Find(ctx, rec.ID())
		require.NoError(t, err)
		assert.Same(t, rec, found)

		_, err = db.Get("tasks").Find(ctx, "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrNotFound))
		var nf *core.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "tasks", nf.Table)
		assert.Equal(t, "missing", nf.ID)
	})
}

func TestFind_PopulatesCacheOnFirstCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	ctx := context.Background()

	db, err := Open(ctx, openSQLite(t, core.AdapterConfig{Path: path}, adapter.Options{Schema: testSchema()}))
	require.NoError(t, err)
	id := createTask(t, db, "a", 1).ID()
	require.NoError(t, db.Close())

	db = openDatabase(t, openSQLite(t, core.AdapterConfig{Path: path}, adapter.Options{Schema: testSchema()}))
	tasks := db.Get("tasks")
	assert.Equal(t, 0, tasks.cache.Len())

	first, err := tasks.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, tasks.cache.Len())

	second, err := tasks.Find(ctx, id)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestQuery_IdentityAcrossFetches(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		createTask(t, db, "a", 1)
		createTask(t, db, "b", 2)

		q := db.Get("tasks").Query()
		first, err := q.Fetch(ctx)
		require.NoError(t, err)
		second, err := q.Fetch(ctx)
		require.NoError(t, err)

		require.Len(t, first, 2)
		assert.ElementsMatch(t, first, second)
		for _, r := range first {
			found, err := db.Get("tasks").Find(ctx, r.ID())
			require.NoError(t, err)
			assert.Same(t, r, found)
		}
	})
}

func TestQuery_FiltersAndCounts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		createTask(t, db, "low", 1)
		high := createTask(t, db, "high", 5)
		deleted := createTask(t, db, "gone", 9)
		write(t, db, func(ctx context.Context) error { return deleted.MarkAsDeleted(ctx) })

		q := db.Get("tasks").Query(query.Where("priority", query.Gt(2)))
		records, err := q.Fetch(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{high.ID()}, ids(records))

		n, err := q.FetchCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		sorted, err := db.Get("tasks").Query(query.SortBy("priority", query.Desc), query.Take(1)).FetchIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{high.ID()}, sorted)

		deletedIDs, err := db.Adapter().GetDeletedRecords(ctx, "tasks")
		require.NoError(t, err)
		assert.Equal(t, []string{deleted.ID()}, deletedIDs)
	})
}

func TestQuery_BuildErrorSurfacesOnFetch(t *testing.T) {
	db := mustNew(t, &setupAdapter{schema: testSchema()})
	q := db.Get("tasks").Query(query.Skip(1))
	require.Error(t, q.Err())

	_, err := q.Fetch(context.Background())
	assert.ErrorIs(t, err, q.Err())
}

func TestQuery_Extend(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		createTask(t, db, "a", 1)
		b := createTask(t, db, "b", 2)

		base := db.Get("tasks").Query(query.Where("priority", query.Gte(1)))
		extended := base.Extend(query.Where("title", "b"))

		all, err := base.FetchIDs(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		got, err := extended.FetchIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{b.ID()}, got)
	})
}

func TestQuery_Join(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		var project, task *Record
		write(t, db, func(ctx context.Context) error {
			project = db.Get("projects").PrepareCreate(func(r *Record) { r.Set("name", "alpha") })
			task = db.Get("tasks").PrepareCreate(func(r *Record) {
				r.Set("title", "in alpha")
				r.Set("project_id", project.ID())
			})
			other := db.Get("tasks").PrepareCreate(func(r *Record) { r.Set("title", "orphan") })
			return db.Batch(ctx, project, task, other)
		})

		got, err := db.Get("tasks").Query(query.On("projects", query.Where("name", "alpha"))).FetchIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{task.ID()}, got)
	})
}

func TestBatch_RequiresWriter(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		r := db.Get("tasks").PrepareCreate(nil)

		assert.Panics(t, func() { _ = db.Batch(context.Background(), r) })
		assert.Panics(t, func() {
			_ = db.Read(context.Background(), func(ctx context.Context) error {
				return db.Batch(ctx, r)
			})
		})
	})
}

func TestBatch_Validation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		rec := createTask(t, db, "a", 1)

		tests := []struct {
			name    string
			records func() []*Record
			wantErr string
		}{
			{
				name:    "unprepared",
				records: func() []*Record { return []*Record{rec} },
				wantErr: "has no prepared operation",
			},
			{
				name: "duplicate",
				records: func() []*Record {
					r := db.Get("tasks").PrepareCreate(nil)
					return []*Record{r, r}
				},
				wantErr: "appears more than once",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := db.Write(context.Background(), func(ctx context.Context) error {
					return db.Batch(ctx, tt.records()...)
				})
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			})
		}
	})
}

func TestBatch_Atomicity(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		tasks := db.Get("tasks")
		rec := createTask(t, db, "original", 1)

		var changes int
		unsubscribe := tasks.SubscribeToChanges(func([]Change) { changes++ })
		defer unsubscribe()

		err := db.Write(ctx, func(ctx context.Context) error {
			update := rec.PrepareUpdate(func(r *Record) { r.Set("title", "changed") })
			fresh := tasks.PrepareCreate(func(r *Record) { r.Set("title", "fresh") })
			clash := tasks.PrepareCreateFromDirtyRaw(map[string]any{"id": rec.ID(), "title": "clash"})
			return db.Batch(ctx, update, fresh, clash)
		})
		require.Error(t, err)

		assert.Equal(t, "original", rec.Get("title"))
		assert.Equal(t, 0, changes)

		n, err := tasks.Query().FetchCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		records, err := tasks.Query(query.Where("title", "changed")).Fetch(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)

		// The record is usable again after the failed batch.
		write(t, db, func(ctx context.Context) error {
			return rec.Update(ctx, func(r *Record) { r.Set("title", "retried") })
		})
		assert.Equal(t, "retried", rec.Get("title"))
	})
}

func TestUnsafeResetDatabase(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		createTask(t, db, "a", 1)
		require.NoError(t, db.Local().Set(ctx, "k", "v"))

		var resets int
		unsubscribe := db.OnReset(func() { resets++ })
		defer unsubscribe()

		assert.Panics(t, func() { _ = db.UnsafeResetDatabase(ctx) })

		write(t, db, db.UnsafeResetDatabase)
		assert.Equal(t, int64(1), db.ResetCount())
		assert.Equal(t, 1, resets)
		assert.Equal(t, 0, db.Get("tasks").cache.Len())

		n, err := db.Get("tasks").Query().FetchCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		_, ok, err := db.Local().Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)

		createTask(t, db, "after reset", 1)
	})
}

func TestWrite_Serializes(t *testing.T) {
	db := mustNew(t, &setupAdapter{schema: testSchema()})
	ctx := context.Background()

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Write(ctx, func(context.Context) error {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestWrite_Reentrant(t *testing.T) {
	db := mustNew(t, &setupAdapter{schema: testSchema()})
	var inner bool
	err := db.Write(context.Background(), func(ctx context.Context) error {
		return db.Write(ctx, func(ctx context.Context) error {
			return db.Read(ctx, func(context.Context) error {
				inner = true
				return nil
			})
		})
	})
	require.NoError(t, err)
	assert.True(t, inner)
}

func TestWrite_InsideReaderPanics(t *testing.T) {
	db := mustNew(t, &setupAdapter{schema: testSchema()})
	assert.Panics(t, func() {
		_ = db.Read(context.Background(), func(ctx context.Context) error {
			return db.Write(ctx, func(context.Context) error { return nil })
		})
	})
}

func TestWrite_CancelledWhileWaiting(t *testing.T) {
	db := mustNew(t, &setupAdapter{schema: testSchema()})
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = db.Write(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := db.Write(ctx, func(context.Context) error {
		t.Error("writer ran after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-done
}

func TestWithChangesForTables(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		var tables []string
		unsubscribe, err := db.WithChangesForTables([]string{"tasks", "projects", "tasks"}, func(table string, changes []Change) {
			tables = append(tables, table)
		})
		require.NoError(t, err)

		write(t, db, func(ctx context.Context) error {
			p := db.Get("projects").PrepareCreate(nil)
			task := db.Get("tasks").PrepareCreate(nil)
			return db.Batch(ctx, task, p)
		})
		assert.Equal(t, []string{"tasks", "projects"}, tables)

		unsubscribe()
		createTask(t, db, "unobserved", 1)
		assert.Len(t, tables, 2)

		_, err = db.WithChangesForTables([]string{"missing"}, func(string, []Change) {})
		assert.Error(t, err)
	})
}

func TestNew_RequiresPreparedStorage(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			a := b.open(t, core.AdapterConfig{Synchronous: b.synchronous}, adapter.Options{Schema: testSchema()})

			_, err := New(a)
			require.ErrorIs(t, err, adapter.ErrNotReady)

			openDatabase(t, a)

			db, err := New(a)
			require.NoError(t, err)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err = db.Get("tasks").Find(ctx, "missing")
			var nf *core.NotFoundError
			assert.ErrorAs(t, err, &nf)
		})
	}
}
