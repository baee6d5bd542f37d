package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapdb/internal/testutil"
	"github.com/leapstack-labs/leapdb/pkg/adapter"
	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/query"
	"github.com/leapstack-labs/leapdb/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDriver(t *testing.T, cfg core.AdapterConfig, s *schema.AppSchema, m *schema.Migrations) *Driver {
	t.Helper()
	d, err := Open(cfg, adapter.Options{Schema: s, Migrations: m, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func setUpDriver(t *testing.T) *Driver {
	t.Helper()
	ctx := context.Background()
	d := openDriver(t, core.AdapterConfig{Type: "sqlite"}, testSchema(t), nil)
	signal, err := d.Initialize(ctx)
	require.NoError(t, err)
	require.Equal(t, core.SchemaNeedsSetup, signal.Kind)
	require.NoError(t, d.SetUpWithSchema(ctx))
	return d
}

func taskRaw(t *testing.T, s *schema.AppSchema, fields map[string]any) core.RawRecord {
	t.Helper()
	tasks, _ := s.Table("tasks")
	return schema.SanitizedRaw(tasks, fields)
}

func createOp(raw core.RawRecord) core.BatchOperation {
	return core.BatchOperation{Type: core.OpCreate, Table: "tasks", ID: raw.ID(), Raw: raw}
}

func TestDriver_InitializeAfterSetUp(t *testing.T) {
	ctx := context.Background()
	d := setUpDriver(t)

	signal, err := d.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.SchemaReady, signal.Kind)
	assert.Equal(t, 1, signal.DatabaseVersion)
}

func TestDriver_FindSendsPayloadOnce(t *testing.T) {
	ctx := context.Background()
	d := setUpDriver(t)
	raw := taskRaw(t, d.schema, map[string]any{"id": "t1", "title": "write", "priority": 2, "done": true})
	require.NoError(t, d.Batch(ctx, []core.BatchOperation{createOp(raw)}))

	row, err := d.Find(ctx, "tasks", "t1")
	require.NoError(t, err)
	assert.True(t, row.IsBareID(), "created records are already held by the caller")

	d.sent.Clear()
	row, err = d.Find(ctx, "tasks", "t1")
	require.NoError(t, err)
	require.False(t, row.IsBareID())
	assert.Equal(t, raw, row.Raw)

	row, err = d.Find(ctx, "tasks", "t1")
	require.NoError(t, err)
	assert.True(t, row.IsBareID())

	missing, err := d.Find(ctx, "tasks", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = d.Find(ctx, "missing", "t1")
	assert.EqualError(t, err, "unknown table missing")
}

func TestDriver_QueryAndCount(t *testing.T) {
	ctx := context.Background()
	d := setUpDriver(t)
	s := d.schema
	projects, _ := s.Table("projects")

	ops := []core.BatchOperation{
		{Type: core.OpCreate, Table: "projects", ID: "p1", Raw: schema.SanitizedRaw(projects, map[string]any{"id": "p1", "name": "home"})},
		createOp(taskRaw(t, s, map[string]any{"id": "t1", "title": "a", "project_id": "p1", "priority": 3})),
		createOp(taskRaw(t, s, map[string]any{"id": "t2", "title": "b", "project_id": "p1", "done": true})),
		createOp(taskRaw(t, s, map[string]any{"id": "t3", "title": "c", "priority": 1})),
	}
	require.NoError(t, d.Batch(ctx, ops))
	d.sent.Clear()

	tests := []struct {
		name    string
		clauses []query.Clause
		want    []string
	}{
		{name: "all", want: []string{"t1", "t2", "t3"}},
		{name: "boolean", clauses: []query.Clause{query.Where("done", true)}, want: []string{"t2"}},
		{name: "null excluded from ordering", clauses: []query.Clause{query.Where("priority", query.Gte(1))}, want: []string{"t1", "t3"}},
		{name: "sorted nulls first", clauses: []query.Clause{query.SortBy("priority", query.Asc)}, want: []string{"t2", "t3", "t1"}},
		{name: "join", clauses: []query.Clause{query.On("projects", query.Where("name", "home")), query.SortBy("title", query.Asc)}, want: []string{"t1", "t2"}},
		{name: "page", clauses: []query.Clause{query.SortBy("title", query.Desc), query.Take(1), query.Skip(1)}, want: []string{"t2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := query.MustBuild(tt.clauses...)
			rows, err := d.Query(ctx, "tasks", q)
			require.NoError(t, err)
			ids := make([]string, len(rows))
			for i, r := range rows {
				ids[i] = r.ID
			}
			if len(tt.clauses) > 0 && q.SortBy() != nil {
				assert.Equal(t, tt.want, ids)
			} else {
				assert.ElementsMatch(t, tt.want, ids)
			}

			n, err := d.Count(ctx, "tasks", q)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), n)
		})
	}
}

func TestDriver_BatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	d := setUpDriver(t)
	first := taskRaw(t, d.schema, map[string]any{"id": "t1"})
	require.NoError(t, d.Batch(ctx, []core.BatchOperation{createOp(first)}))

	second := taskRaw(t, d.schema, map[string]any{"id": "t2"})
	err := d.Batch(ctx, []core.BatchOperation{
		createOp(second),
		createOp(first),
	})
	require.Error(t, err)

	n, err := d.Count(ctx, "tasks", query.MustBuild())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, d.sent.IsSent("tasks", "t2"), "failed batch leaves the sent set untouched")
}

func TestDriver_DeleteLifecycle(t *testing.T) {
	ctx := context.Background()
	d := setUpDriver(t)
	raw := taskRaw(t, d.schema, map[string]any{"id": "t1", "title": "a"})
	require.NoError(t, d.Batch(ctx, []core.BatchOperation{createOp(raw)}))

	updated := raw.Clone()
	updated["title"] = "b"
	updated["_status"] = "updated"
	require.NoError(t, d.Batch(ctx, []core.BatchOperation{
		{Type: core.OpUpdate, Table: "tasks", ID: "t1", Raw: updated},
		{Type: core.OpMarkAsDeleted, Table: "tasks", ID: "t1"},
	}))
	assert.False(t, d.sent.IsSent("tasks", "t1"))

	ids, err := d.GetDeletedRecords(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, ids)

	row, err := d.Find(ctx, "tasks", "t1")
	require.NoError(t, err)
	assert.Equal(t, "b", row.Raw["title"])
	assert.Equal(t, "deleted", row.Raw["_status"])

	require.NoError(t, d.DestroyDeletedRecords(ctx, "tasks", ids))
	d.sent.Clear()
	row, err = d.Find(ctx, "tasks", "t1")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestDriver_LocalStorage(t *testing.T) {
	ctx := context.Background()
	d := setUpDriver(t)

	v, err := d.GetLocal(ctx, "token")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, d.SetLocal(ctx, "token", "abc"))
	require.NoError(t, d.SetLocal(ctx, "token", "def"))
	v, err = d.GetLocal(ctx, "token")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "def", *v)

	require.NoError(t, d.RemoveLocal(ctx, "token"))
	v, err = d.GetLocal(ctx, "token")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDriver_UnsafeResetDatabase(t *testing.T) {
	ctx := context.Background()
	d := setUpDriver(t)
	require.NoError(t, d.Batch(ctx, []core.BatchOperation{createOp(taskRaw(t, d.schema, map[string]any{"id": "t1"}))}))
	require.NoError(t, d.SetLocal(ctx, "k", "v"))

	require.NoError(t, d.UnsafeResetDatabase(ctx))

	n, err := d.Count(ctx, "tasks", query.MustBuild())
	require.NoError(t, err)
	assert.Zero(t, n)
	v, err := d.GetLocal(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.False(t, d.sent.IsSent("tasks", "t1"))
}

func TestDriver_UnsafeExecute(t *testing.T) {
	ctx := context.Background()
	d := setUpDriver(t)
	require.NoError(t, d.Batch(ctx, []core.BatchOperation{createOp(taskRaw(t, d.schema, map[string]any{"id": "t1"}))}))

	err := d.UnsafeExecute(ctx, adapter.UnsafeWork{SQL: []adapter.Statement{
		{Query: `update "tasks" set "title" = ? where "id" = ?`, Args: []any{"raw", "t1"}},
	}})
	require.NoError(t, err)

	d.sent.Clear()
	row, err := d.Find(ctx, "tasks", "t1")
	require.NoError(t, err)
	assert.Equal(t, "raw", row.Raw["title"])

	err = d.UnsafeExecute(ctx, adapter.UnsafeWork{Documents: func(map[string]map[string]core.RawRecord) error { return nil }})
	assert.ErrorIs(t, err, core.ErrUnsupported)
}

func TestDriver_Migrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app.db")
	cfg := core.AdapterConfig{Type: "sqlite", Path: path}

	v1 := testSchema(t)
	d1 := openDriver(t, cfg, v1, nil)
	_, err := d1.Initialize(ctx)
	require.NoError(t, err)
	require.NoError(t, d1.SetUpWithSchema(ctx))
	require.NoError(t, d1.Batch(ctx, []core.BatchOperation{createOp(taskRaw(t, v1, map[string]any{"id": "t1", "title": "old"}))}))
	require.NoError(t, d1.Close())

	v2, err := schema.NewAppSchema(2,
		schema.Table("projects", schema.StringColumn("name")).
			WithAssociation("tasks", schema.HasManyForeignKey("project_id")),
		schema.Table("tasks",
			schema.StringColumn("title"),
			schema.StringColumn("project_id").Indexed(),
			schema.NumberColumn("priority").Optional(),
			schema.BoolColumn("done"),
			schema.NumberColumn("estimate").Indexed(),
		).WithAssociation("projects", schema.BelongsToKey("project_id")),
		schema.Table("tags", schema.StringColumn("label")),
	)
	require.NoError(t, err)
	migrations, err := schema.NewMigrations(schema.Migration{ToVersion: 2, Steps: []schema.MigrationStep{
		schema.AddColumns("tasks", schema.NumberColumn("estimate").Indexed()),
		schema.CreateTable(schema.Table("tags", schema.StringColumn("label"))),
	}})
	require.NoError(t, err)

	d2 := openDriver(t, cfg, v2, migrations)
	signal, err := d2.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.SchemaNeedsMigration, signal.Kind)
	assert.Equal(t, 1, signal.DatabaseVersion)

	require.NoError(t, d2.SetUpWithMigrations(ctx, 1))
	signal, err = d2.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.SchemaReady, signal.Kind)

	row, err := d2.Find(ctx, "tasks", "t1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "old", row.Raw["title"])
	assert.Equal(t, 0.0, row.Raw["estimate"])

	n, err := d2.Count(ctx, "tags", query.MustBuild())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		want    Params
		wantErr string
	}{
		{name: "empty"},
		{name: "values", raw: map[string]any{"journal_mode": "WAL", "busy_timeout": "5000"}, want: Params{JournalMode: "wal", BusyTimeout: 5000}},
		{name: "unknown key", raw: map[string]any{"cache": 1}, wantErr: "failed to parse sqlite params"},
		{name: "bad journal mode", raw: map[string]any{"journal_mode": "wal; drop table x"}, wantErr: "unknown journal_mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParams(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
