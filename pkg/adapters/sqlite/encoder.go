package sqlite

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/query"
	"github.com/leapstack-labs/leapdb/pkg/schema"
)

// encoder turns a query description into a parameterized select.
// Identifiers are validated by query.Build and schema.NewAppSchema, so they
// are quoted but never escaped.
type encoder struct {
	schema  *schema.AppSchema
	args    []any
	aliases int
}

// EncodeQuery returns the select for the rows of table matching q.
func EncodeQuery(s *schema.AppSchema, table string, q *query.Description) (string, []any, error) {
	e := &encoder{schema: s}
	sql, err := e.selectRows(table, q)
	if err != nil {
		return "", nil, err
	}
	return sql, e.args, nil
}

// EncodeCount returns the select counting the rows of table matching q.
func EncodeCount(s *schema.AppSchema, table string, q *query.Description) (string, []any, error) {
	e := &encoder{schema: s}
	sql, err := e.selectRows(table, q)
	if err != nil {
		return "", nil, err
	}
	return "select count(*) as count from (" + sql + ")", e.args, nil
}

func quote(name string) string {
	return `"` + name + `"`
}

// bind maps a value onto what the store holds: booleans are 1 and 0.
func bind(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func (e *encoder) arg(v any) string {
	e.args = append(e.args, bind(v))
	return "?"
}

func (e *encoder) selectRows(table string, q *query.Description) (string, error) {
	if _, ok := e.schema.Table(table); !ok {
		return "", fmt.Errorf("unknown table %s", table)
	}
	qual := quote(table)

	var b strings.Builder
	b.WriteString("select ")
	b.WriteString(qual)
	b.WriteString(".* from ")
	b.WriteString(qual)

	if where := q.Where(); len(where) > 0 {
		conds, err := e.conditions(qual, table, where, " and ")
		if err != nil {
			return "", err
		}
		b.WriteString(" where ")
		b.WriteString(conds)
	}

	if sorts := q.SortBy(); len(sorts) > 0 {
		b.WriteString(" order by ")
		for i, s := range sorts {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(qual + "." + quote(s.Column) + " " + string(s.Order))
		}
	}

	if take, ok := q.Take(); ok {
		b.WriteString(" limit " + e.arg(int64(take)))
		if skip, ok := q.Skip(); ok {
			b.WriteString(" offset " + e.arg(int64(skip)))
		}
	}
	return b.String(), nil
}

func (e *encoder) conditions(qual, table string, clauses []query.Clause, sep string) (string, error) {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		s, err := e.clause(qual, table, c)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep), nil
}

func (e *encoder) clause(qual, table string, c query.Clause) (string, error) {
	switch x := c.(type) {
	case query.WhereClause:
		return e.where(qual, x), nil
	case query.AndClause:
		conds := x.Conditions()
		if len(conds) == 0 {
			return "1", nil
		}
		s, err := e.conditions(qual, table, conds, " and ")
		return "(" + s + ")", err
	case query.OrClause:
		conds := x.Conditions()
		if len(conds) == 0 {
			return "0", nil
		}
		s, err := e.conditions(qual, table, conds, " or ")
		return "(" + s + ")", err
	case query.OnClause:
		return e.on(qual, table, x)
	case query.SQLClause:
		for _, a := range x.Args() {
			e.args = append(e.args, bind(a))
		}
		return "(" + x.Expr() + ")", nil
	case query.NativeClause:
		return "", fmt.Errorf("%w: native(%s) on sqlite", core.ErrUnsupported, x.Name())
	}
	return "", fmt.Errorf("%w: %s() in a where list", core.ErrUnsupported, c.Kind())
}

// on encodes a join as a membership test against a subquery on the
// associated table.
func (e *encoder) on(qual, table string, on query.OnClause) (string, error) {
	t, ok := e.schema.Table(table)
	if !ok {
		return "", fmt.Errorf("unknown table %s", table)
	}
	assoc, ok := t.Association(on.Table())
	if !ok {
		return "", fmt.Errorf("no association from %s to %s", table, on.Table())
	}

	e.aliases++
	alias := quote(fmt.Sprintf("j%d", e.aliases))

	var local, remote string
	switch assoc.Kind {
	case schema.BelongsTo:
		local, remote = assoc.Key, core.ColumnID
	case schema.HasMany:
		local, remote = core.ColumnID, assoc.ForeignKey
	default:
		return "", fmt.Errorf("unknown association kind %q", assoc.Kind)
	}

	conds := "1"
	if inner := on.Conditions(); len(inner) > 0 {
		s, err := e.conditions(alias, on.Table(), inner, " and ")
		if err != nil {
			return "", err
		}
		conds = s
	}
	return fmt.Sprintf("%s.%s in (select %s.%s from %s %s where %s)",
		qual, quote(local), alias, quote(remote), quote(on.Table()), alias, conds), nil
}

func (e *encoder) where(qual string, w query.WhereClause) string {
	left := qual + "." + quote(w.Left())
	cmp := w.Comparison()
	right := func() string {
		if col, ok := cmp.Column(); ok {
			return qual + "." + quote(col)
		}
		return e.arg(cmp.Value())
	}

	switch cmp.Operator() {
	case query.OpEq:
		return left + " is " + right()
	case query.OpNotEq:
		return left + " is not " + right()
	case query.OpGt:
		return left + " > " + right()
	case query.OpGte:
		return left + " >= " + right()
	case query.OpLt:
		return left + " < " + right()
	case query.OpLte:
		return left + " <= " + right()
	case query.OpWeakGt:
		r1 := right()
		r2 := right()
		return "(" + left + " > " + r1 + " or (" + left + " is not null and " + r2 + " is null))"
	case query.OpOneOf:
		values := cmp.Values()
		if len(values) == 0 {
			return "0"
		}
		return left + " in (" + e.list(values) + ")"
	case query.OpNotIn:
		values := cmp.Values()
		if len(values) == 0 {
			return left + " is not null"
		}
		return "(" + left + " is not null and " + left + " not in (" + e.list(values) + "))"
	case query.OpBetween:
		values := cmp.Values()
		lo := e.arg(values[0])
		hi := e.arg(values[1])
		return left + " between " + lo + " and " + hi
	case query.OpLike:
		return "(typeof(" + left + ") = 'text' and " + left + " like " + right() + ")"
	case query.OpNotLike:
		return "(typeof(" + left + ") = 'text' and " + left + " not like " + right() + ")"
	case query.OpIncludes:
		return "(typeof(" + left + ") = 'text' and instr(" + left + ", " + right() + ") > 0)"
	}
	return "0"
}

func (e *encoder) list(values []any) string {
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = e.arg(v)
	}
	return strings.Join(marks, ", ")
}
