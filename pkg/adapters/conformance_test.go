// Package adapters holds tests that hold every storage backend to the same
// semantics. Backends live in subdirectories.
package adapters

import (
	"context"
	"testing"

	"github.com/leapstack-labs/leapdb/internal/testutil"
	"github.com/leapstack-labs/leapdb/pkg/adapter"
	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/matcher"
	"github.com/leapstack-labs/leapdb/pkg/query"
	"github.com/leapstack-labs/leapdb/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/leapdb/pkg/adapters/memory"
	_ "github.com/leapstack-labs/leapdb/pkg/adapters/sqlite"
)

func conformanceSchema(t *testing.T) *schema.AppSchema {
	t.Helper()
	return schema.MustAppSchema(1,
		schema.Table("tasks",
			schema.StringColumn("title"),
			schema.StringColumn("project_id").Indexed(),
			schema.NumberColumn("priority").Optional(),
			schema.BoolColumn("done"),
		),
	)
}

var corpus = []map[string]any{
	{"id": "t1", "title": "apple", "priority": 1, "done": true, "project_id": "p1"},
	{"id": "t2", "title": "Banana", "priority": 2.5, "done": false, "project_id": "p2"},
	{"id": "t3", "title": "cherry pie", "done": false},
	{"id": "t4", "title": "", "priority": -1, "done": true, "project_id": "p1"},
	{"id": "t5", "title": "apple tart", "priority": 10, "project_id": "p3"},
}

var corpusQueries = map[string][]query.Clause{
	"eq":                 {query.Where("title", "apple")},
	"not eq":             {query.Where("title", query.NotEq("apple"))},
	"eq null":            {query.Where("priority", nil)},
	"gt":                 {query.Where("priority", query.Gt(1))},
	"gte":                {query.Where("priority", query.Gte(1))},
	"lt":                 {query.Where("priority", query.Lt(2.5))},
	"lte":                {query.Where("priority", query.Lte(2.5))},
	"weak gt":            {query.Where("priority", query.WeakGt(1))},
	"weak gt null":       {query.Where("priority", query.WeakGt(nil))},
	"one of":             {query.Where("project_id", query.OneOf("p1", "p3"))},
	"not in":             {query.Where("project_id", query.NotIn("p1"))},
	"between":            {query.Where("priority", query.Between(1, 3))},
	"like prefix":        {query.Where("title", query.Like("apple%"))},
	"like folds case":    {query.Where("title", query.Like("%PIE"))},
	"like single char":   {query.Where("title", query.Like("_pple"))},
	"not like":           {query.Where("title", query.NotLike("a%"))},
	"includes":           {query.Where("title", query.Includes("an"))},
	"bool":               {query.Where("done", true)},
	"not bool":           {query.Where("done", query.NotEq(true))},
	"number vs text":     {query.Where("priority", query.Lt(query.Column("title")))},
	"or":                 {query.Or(query.Where("title", query.Like("b%")), query.Where("priority", query.Gt(5)))},
	"and":                {query.And(query.Where("done", true), query.Where("priority", query.Lt(5)))},
	"empty project id":   {query.Where("project_id", "")},
	"multiple top-level": {query.Where("done", false), query.Where("priority", query.NotEq(nil))},
}

type backend struct {
	name        string
	typ         string
	synchronous bool
}

var backends = []backend{
	{name: "sqlite", typ: "sqlite"},
	{name: "sqlite synchronous", typ: "sqlite", synchronous: true},
	{name: "memory", typ: "memory"},
	{name: "memory synchronous", typ: "memory", synchronous: true},
}

func openBackend(t *testing.T, b backend, s *schema.AppSchema) adapter.Adapter {
	t.Helper()
	ctx := context.Background()
	a, err := adapter.NewAdapter(core.AdapterConfig{Type: b.typ, Synchronous: b.synchronous}, adapter.Options{
		Schema: s,
		Logger: testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	setup, ok := a.(adapter.SchemaSetup)
	require.True(t, ok)
	signal, err := setup.Initialize(ctx)
	require.NoError(t, err)
	require.Equal(t, core.SchemaNeedsSetup, signal.Kind)
	require.NoError(t, setup.SetUpWithSchema(ctx))
	return a
}

func seedCorpus(t *testing.T, a adapter.Adapter, s *schema.AppSchema) []core.RawRecord {
	t.Helper()
	tasks, _ := s.Table("tasks")
	raws := make([]core.RawRecord, len(corpus))
	ops := make([]core.BatchOperation, len(corpus))
	for i, fields := range corpus {
		raws[i] = schema.SanitizedRaw(tasks, fields)
		ops[i] = core.BatchOperation{Type: core.OpCreate, Table: "tasks", ID: raws[i].ID(), Raw: raws[i]}
	}
	require.NoError(t, a.Batch(context.Background(), ops))
	return raws
}

func TestBackendsAgreeWithMatcher(t *testing.T) {
	s := conformanceSchema(t)

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			a := openBackend(t, b, s)
			raws := seedCorpus(t, a, s)

			for name, clauses := range corpusQueries {
				t.Run(name, func(t *testing.T) {
					q := query.MustBuild(clauses...)
					match, err := matcher.Encode(q)
					require.NoError(t, err)

					var want []string
					for _, raw := range raws {
						if match(raw) {
							want = append(want, raw.ID())
						}
					}

					rows, err := a.Query(context.Background(), "tasks", q)
					require.NoError(t, err)
					got := make([]string, len(rows))
					for i, r := range rows {
						got[i] = r.ID
					}
					assert.ElementsMatch(t, want, got)

					n, err := a.Count(context.Background(), "tasks", q)
					require.NoError(t, err)
					assert.Equal(t, len(want), n)
				})
			}
		})
	}
}

func TestBackendsAgreeOnOrder(t *testing.T) {
	s := conformanceSchema(t)
	q := query.MustBuild(query.SortBy("priority", query.Desc), query.Take(3), query.Skip(1))

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			a := openBackend(t, b, s)
			seedCorpus(t, a, s)

			rows, err := a.Query(context.Background(), "tasks", q)
			require.NoError(t, err)
			got := make([]string, len(rows))
			for i, r := range rows {
				got[i] = r.ID
			}
			assert.Equal(t, []string{"t2", "t1", "t4"}, got)
		})
	}
}

func TestBackendsBatchAtomicity(t *testing.T) {
	s := conformanceSchema(t)
	tasks, _ := s.Table("tasks")

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			a := openBackend(t, b, s)
			seedCorpus(t, a, s)

			fresh := schema.SanitizedRaw(tasks, map[string]any{"id": "t9"})
			dup := schema.SanitizedRaw(tasks, map[string]any{"id": "t1"})
			err := a.Batch(ctx, []core.BatchOperation{
				{Type: core.OpMarkAsDeleted, Table: "tasks", ID: "t2"},
				{Type: core.OpCreate, Table: "tasks", ID: "t9", Raw: fresh},
				{Type: core.OpCreate, Table: "tasks", ID: "t1", Raw: dup},
			})
			require.Error(t, err)

			n, err := a.Count(ctx, "tasks", query.MustBuild())
			require.NoError(t, err)
			assert.Equal(t, len(corpus), n)

			deleted, err := a.GetDeletedRecords(ctx, "tasks")
			require.NoError(t, err)
			assert.Empty(t, deleted)

			row, err := a.Find(ctx, "tasks", "t9")
			require.NoError(t, err)
			assert.Nil(t, row)
		})
	}
}

func TestBackendsLocalStorage(t *testing.T) {
	s := conformanceSchema(t)

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			a := openBackend(t, b, s)

			require.NoError(t, a.SetLocal(ctx, "k", "v1"))
			v, err := a.GetLocal(ctx, "k")
			require.NoError(t, err)
			require.NotNil(t, v)
			assert.Equal(t, "v1", *v)

			require.NoError(t, a.RemoveLocal(ctx, "k"))
			v, err = a.GetLocal(ctx, "k")
			require.NoError(t, err)
			assert.Nil(t, v)
		})
	}
}
