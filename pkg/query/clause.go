package query

import (
	"slices"

	"github.com/leapstack-labs/leapdb/pkg/core"
)

// Kind identifies a clause type.
type Kind string

// Clause kinds.
const (
	KindWhere      Kind = "where"
	KindAnd        Kind = "and"
	KindOr         Kind = "or"
	KindOn         Kind = "on"
	KindSortBy     Kind = "sortBy"
	KindTake       Kind = "take"
	KindSkip       Kind = "skip"
	KindJoinTables Kind = "joinTables"
	KindNestedJoin Kind = "nestedJoinTable"
	KindSQL        Kind = "sql"
	KindNative     Kind = "native"
)

// nestable lists the kinds that may appear inside And, Or and On.
var nestable = map[Kind]bool{
	KindWhere:  true,
	KindAnd:    true,
	KindOr:     true,
	KindOn:     true,
	KindSQL:    true,
	KindNative: true,
}

// Clause is one element of a query. The set of implementations is closed.
type Clause interface {
	Kind() Kind
	isClause()
}

// SortOrder is the direction of a SortBy clause.
type SortOrder string

// Sort orders.
const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// WhereClause compares a column against a value or another column.
type WhereClause struct {
	left string
	cmp  Comparison
}

func (WhereClause) Kind() Kind { return KindWhere }
func (WhereClause) isClause()  {}

// Left returns the compared column.
func (w WhereClause) Left() string { return w.left }

// Comparison returns the operator and right-hand side.
func (w WhereClause) Comparison() Comparison { return w.cmp }

// AndClause matches when every condition matches.
type AndClause struct {
	conditions []Clause
}

func (AndClause) Kind() Kind { return KindAnd }
func (AndClause) isClause()  {}

// Conditions returns a copy of the grouped conditions.
func (a AndClause) Conditions() []Clause { return slices.Clone(a.conditions) }

// OrClause matches when any condition matches.
type OrClause struct {
	conditions []Clause
}

func (OrClause) Kind() Kind { return KindOr }
func (OrClause) isClause()  {}

// Conditions returns a copy of the grouped conditions.
func (o OrClause) Conditions() []Clause { return slices.Clone(o.conditions) }

// OnClause matches when a record joined through a foreign key association
// satisfies all conditions.
type OnClause struct {
	table      string
	conditions []Clause
}

func (OnClause) Kind() Kind { return KindOn }
func (OnClause) isClause()  {}

// Table returns the joined table.
func (o OnClause) Table() string { return o.table }

// Conditions returns a copy of the conditions on the joined table.
func (o OnClause) Conditions() []Clause { return slices.Clone(o.conditions) }

// SortByClause orders results by a column.
type SortByClause struct {
	column string
	order  SortOrder
}

func (SortByClause) Kind() Kind { return KindSortBy }
func (SortByClause) isClause()  {}

// TakeClause limits the number of results.
type TakeClause struct {
	count int
}

func (TakeClause) Kind() Kind { return KindTake }
func (TakeClause) isClause()  {}

// SkipClause offsets the results. It requires a TakeClause.
type SkipClause struct {
	count int
}

func (SkipClause) Kind() Kind { return KindSkip }
func (SkipClause) isClause()  {}

// JoinTablesClause declares tables joined by On clauses nested in And or Or.
type JoinTablesClause struct {
	tables []string
}

func (JoinTablesClause) Kind() Kind { return KindJoinTables }
func (JoinTablesClause) isClause()  {}

// NestedJoinClause declares that On(to) may appear inside On(from).
type NestedJoinClause struct {
	from string
	to   string
}

func (NestedJoinClause) Kind() Kind { return KindNestedJoin }
func (NestedJoinClause) isClause()  {}

// SQLClause is an opaque expression for relational backends.
type SQLClause struct {
	expr string
	args []any
}

func (SQLClause) Kind() Kind { return KindSQL }
func (SQLClause) isClause()  {}

// Expr returns the raw SQL expression.
func (s SQLClause) Expr() string { return s.expr }

// Args returns a copy of the bound arguments.
func (s SQLClause) Args() []any { return slices.Clone(s.args) }

// NativeClause is an opaque predicate for in-process backends.
type NativeClause struct {
	name string
	fn   func(core.RawRecord) bool
}

func (NativeClause) Kind() Kind { return KindNative }
func (NativeClause) isClause()  {}

// Name returns the label used in logs and errors.
func (n NativeClause) Name() string { return n.name }

// Match evaluates the predicate against a raw record.
func (n NativeClause) Match(raw core.RawRecord) bool { return n.fn(raw) }

// SortClause is the built form of SortBy.
type SortClause struct {
	Column string
	Order  SortOrder
}

// NestedJoinPair is the built form of NestedJoin.
type NestedJoinPair struct {
	From string
	To   string
}

// Where compares column with v. A Comparison built with Eq, Gt, OneOf and
// friends selects the operator; any other value means equality.
func Where(column string, v any) Clause {
	cmp, ok := v.(Comparison)
	if !ok {
		cmp = Eq(v)
	}
	return WhereClause{left: column, cmp: cmp}
}

// And groups conditions that must all match.
func And(conditions ...Clause) Clause {
	return AndClause{conditions: slices.Clone(conditions)}
}

// Or groups conditions of which at least one must match.
func Or(conditions ...Clause) Clause {
	return OrClause{conditions: slices.Clone(conditions)}
}

// On scopes conditions to a table joined by one association.
func On(table string, conditions ...Clause) Clause {
	return OnClause{table: table, conditions: slices.Clone(conditions)}
}

// OnColumn is shorthand for On(table, Where(column, v)).
func OnColumn(table, column string, v any) Clause {
	return On(table, Where(column, v))
}

// SortBy orders results by column.
func SortBy(column string, order SortOrder) Clause {
	return SortByClause{column: column, order: order}
}

// Take limits results to n records.
func Take(n int) Clause {
	return TakeClause{count: n}
}

// Skip drops the first n records.
func Skip(n int) Clause {
	return SkipClause{count: n}
}

// JoinTables registers tables referenced by On clauses inside And or Or.
func JoinTables(tables ...string) Clause {
	return JoinTablesClause{tables: slices.Clone(tables)}
}

// NestedJoin registers an On(to) nested inside On(from).
func NestedJoin(from, to string) Clause {
	return NestedJoinClause{from: from, to: to}
}

// SQL embeds a raw expression with bound arguments. Relational backends only.
func SQL(expr string, args ...any) Clause {
	return SQLClause{expr: expr, args: slices.Clone(args)}
}

// Native embeds a Go predicate. In-process backends only.
func Native(name string, fn func(core.RawRecord) bool) Clause {
	return NativeClause{name: name, fn: fn}
}
