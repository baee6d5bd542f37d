package query

import (
	"testing"

	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexed(cols ...string) func(string) bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return func(col string) bool { return set[col] }
}

func lefts(t *testing.T, clauses []Clause) []string {
	t.Helper()
	out := make([]string, len(clauses))
	for i, c := range clauses {
		switch x := c.(type) {
		case WhereClause:
			out[i] = x.Left()
		case OnClause:
			out[i] = "on:" + x.Table()
		default:
			out[i] = string(c.Kind())
		}
	}
	return out
}

func TestOptimize_IndexedFirst(t *testing.T) {
	desc := MustBuild(Where("status", "open"), Where("indexed_col_i", "x"))

	got := Optimize(desc.Where(), OptimizeOptions{IsIndexed: indexed("indexed_col_i")})

	assert.Equal(t, []string{"indexed_col_i", "status"}, lefts(t, got))
}

func TestOptimize_CostOrder(t *testing.T) {
	big := make([]any, 40)
	for i := range big {
		big[i] = i
	}
	desc := MustBuild(
		On("projects", Where("name", "x")),
		Where("tags", OneOf(big...)),
		Where("title", "t"),
		Where("priority", Gt(1)),
		Where("owner", "me"),
	)

	got := Optimize(desc.Where(), OptimizeOptions{IsIndexed: indexed("priority", "owner", "tags")})

	assert.Equal(t, []string{"owner", "priority", "title", "tags", "on:projects"}, lefts(t, got))
}

func TestOptimize_FixedPositions(t *testing.T) {
	desc := MustBuild(
		Where("title", "t"),
		Or(Where("a", 1), Where("b", 2)),
		Where("owner", "me"),
		SQL("1 = 1"),
		Where("done", false),
	)

	got := Optimize(desc.Where(), OptimizeOptions{IsIndexed: indexed("owner")})

	assert.Equal(t, []string{"owner", "or", "title", "sql", "done"}, lefts(t, got))
}

func TestOptimize_FlattensAndSplices(t *testing.T) {
	desc := MustBuild(
		And(Where("a", 1), And(Where("b", 2), Where("c", 3))),
		Or(Where("d", 4)),
		Or(And(Where("e", 5))),
	)

	got := Optimize(desc.Where(), OptimizeOptions{})

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, lefts(t, got))
}

func TestOptimize_MergesSingleRowJoins(t *testing.T) {
	desc := MustBuild(
		On("projects", Where("name", "x")),
		On("comments", Where("body", "a")),
		On("projects", Where("archived", false)),
		On("comments", Where("body", "b")),
	)

	got := Optimize(desc.Where(), OptimizeOptions{
		SingleRowJoin: func(table string) bool { return table == "projects" },
	})

	require.Len(t, got, 3)
	assert.Equal(t, []string{"on:projects", "on:comments", "on:comments"}, lefts(t, got))
	assert.Len(t, got[0].(OnClause).Conditions(), 2)
}

func TestOptimize_DoesNotMutateInput(t *testing.T) {
	desc := MustBuild(Where("title", "t"), Where("owner", "me"))
	before := lefts(t, desc.Where())

	opt := OptimizeDescription(desc, OptimizeOptions{IsIndexed: indexed("owner")})

	assert.Equal(t, before, lefts(t, desc.Where()))
	assert.Equal(t, []string{"owner", "title"}, lefts(t, opt.Where()))
}

func TestWithoutDeleted(t *testing.T) {
	desc := MustBuild(
		NestedJoin("projects", "teams"),
		JoinTables("tags"),
		Where("title", "t"),
		On("projects", On("teams", Where("name", "core"))),
		Or(Where("a", 1), On("tags", Where("name", "x"))),
	)

	once := WithoutDeleted(desc)
	where := once.Where()
	require.Len(t, where, 4)

	last := where[3].(WhereClause)
	assert.Equal(t, core.ColumnStatus, last.Left())
	assert.Equal(t, OpNotEq, last.Comparison().Operator())
	assert.Equal(t, "deleted", last.Comparison().Value())

	projects := where[1].(OnClause).Conditions()
	require.Len(t, projects, 2)
	teams := projects[0].(OnClause).Conditions()
	require.Len(t, teams, 2)
	assert.Equal(t, core.ColumnStatus, teams[1].(WhereClause).Left())

	tags := where[2].(OrClause).Conditions()[1].(OnClause).Conditions()
	assert.Len(t, tags, 2)

	// The original is untouched.
	assert.Len(t, desc.Where(), 3)
}

func TestWithoutDeleted_NotIdempotent(t *testing.T) {
	desc := MustBuild(Where("title", "t"), On("projects", Where("name", "x")))

	twice := WithoutDeleted(WithoutDeleted(desc))
	where := twice.Where()

	require.Len(t, where, 4)
	assert.Equal(t, core.ColumnStatus, where[2].(WhereClause).Left())
	assert.Equal(t, core.ColumnStatus, where[3].(WhereClause).Left())
	assert.Len(t, where[1].(OnClause).Conditions(), 3)
}
