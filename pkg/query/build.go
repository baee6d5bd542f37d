package query

import (
	"fmt"
	"slices"
)

// Build validates clauses and partitions them into a Description.
//
// And, Or and On may only nest where, and, or, on, sql and native clauses.
// Every identifier must pass CheckName. An On nested inside And or Or must be
// declared with JoinTables, and an On nested inside another On must be
// declared with NestedJoin.
func Build(clauses ...Clause) (*Description, error) {
	b := &builder{
		declaredJoins:  make(map[string]bool),
		declaredNested: make(map[NestedJoinPair]bool),
		joinSeen:       make(map[string]bool),
	}

	// Declarations may follow the clauses that rely on them.
	var conditions []Clause
	for i, c := range clauses {
		if c == nil {
			return nil, invalid("clause %d is nil", i)
		}
		switch x := c.(type) {
		case JoinTablesClause:
			for _, t := range x.tables {
				if err := CheckName(t); err != nil {
					return nil, err
				}
				b.declaredJoins[t] = true
				b.addJoinTable(t)
			}
		case NestedJoinClause:
			if err := CheckName(x.from); err != nil {
				return nil, err
			}
			if err := CheckName(x.to); err != nil {
				return nil, err
			}
			pair := NestedJoinPair{From: x.from, To: x.to}
			if !b.declaredNested[pair] {
				b.declaredNested[pair] = true
				b.desc.nestedJoinTables = append(b.desc.nestedJoinTables, pair)
			}
		case SortByClause:
			if err := CheckName(x.column); err != nil {
				return nil, err
			}
			if x.order != Asc && x.order != Desc {
				return nil, invalid("sort order must be asc or desc, got %q", x.order)
			}
			b.desc.sortBy = append(b.desc.sortBy, SortClause{Column: x.column, Order: x.order})
		case TakeClause:
			if x.count < 0 {
				return nil, invalid("take() must not be negative")
			}
			b.desc.take, b.desc.hasTake = x.count, true
		case SkipClause:
			if x.count < 0 {
				return nil, invalid("skip() must not be negative")
			}
			b.desc.skip, b.desc.hasSkip = x.count, true
		default:
			conditions = append(conditions, c)
		}
	}

	if b.desc.hasSkip && !b.desc.hasTake {
		return nil, invalid("skip() requires take()")
	}

	where := make([]Clause, 0, len(conditions))
	for _, c := range conditions {
		nc, err := b.normalize(c, scope{})
		if err != nil {
			return nil, err
		}
		where = append(where, nc)
	}
	b.desc.where = where

	return &b.desc, nil
}

// MustBuild is Build that panics on invalid clauses.
func MustBuild(clauses ...Clause) *Description {
	d, err := Build(clauses...)
	if err != nil {
		panic(err)
	}
	return d
}

type builder struct {
	desc           Description
	declaredJoins  map[string]bool
	declaredNested map[NestedJoinPair]bool
	joinSeen       map[string]bool
}

// scope tracks where a clause sits while normalizing.
type scope struct {
	onTable string
	inGroup bool
}

func (b *builder) addJoinTable(t string) {
	if !b.joinSeen[t] {
		b.joinSeen[t] = true
		b.desc.joinTables = append(b.desc.joinTables, t)
	}
}

func (b *builder) normalize(c Clause, s scope) (Clause, error) {
	switch x := c.(type) {
	case WhereClause:
		if err := CheckName(x.left); err != nil {
			return nil, err
		}
		cmp, err := x.cmp.normalize()
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", x.left, err)
		}
		return WhereClause{left: x.left, cmp: cmp}, nil

	case AndClause:
		conds, err := b.normalizeNested(KindAnd, x.conditions, scope{onTable: s.onTable, inGroup: true})
		if err != nil {
			return nil, err
		}
		return AndClause{conditions: conds}, nil

	case OrClause:
		conds, err := b.normalizeNested(KindOr, x.conditions, scope{onTable: s.onTable, inGroup: true})
		if err != nil {
			return nil, err
		}
		return OrClause{conditions: conds}, nil

	case OnClause:
		if err := CheckName(x.table); err != nil {
			return nil, err
		}
		switch {
		case s.onTable != "":
			if !b.declaredNested[NestedJoinPair{From: s.onTable, To: x.table}] {
				return nil, invalid("on(%s) inside on(%s) requires nestedJoin(%q, %q)", x.table, s.onTable, s.onTable, x.table)
			}
		case s.inGroup:
			if !b.declaredJoins[x.table] {
				return nil, invalid("on(%s) inside and()/or() requires joinTables(%q)", x.table, x.table)
			}
		}
		b.addJoinTable(x.table)
		conds, err := b.normalizeNested(KindOn, x.conditions, scope{onTable: x.table})
		if err != nil {
			return nil, err
		}
		return OnClause{table: x.table, conditions: conds}, nil

	case SQLClause:
		if x.expr == "" {
			return nil, invalid("sql() expression is empty")
		}
		args := make([]any, len(x.args))
		for i, a := range x.args {
			v, err := NormalizeValue(a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return SQLClause{expr: x.expr, args: args}, nil

	case NativeClause:
		if x.fn == nil {
			return nil, invalid("native(%s) has no predicate", x.name)
		}
		return x, nil
	}
	return nil, invalid("%s() is not a condition", c.Kind())
}

func (b *builder) normalizeNested(parent Kind, conditions []Clause, s scope) ([]Clause, error) {
	out := make([]Clause, 0, len(conditions))
	for _, c := range conditions {
		if c == nil {
			return nil, invalid("%s() contains a nil clause", parent)
		}
		if !nestable[c.Kind()] {
			allowed := []string{"where", "and", "or", "on", "sql", "native"}
			return nil, invalid("%s() can only contain %v, got %s()", parent, allowed, c.Kind())
		}
		nc, err := b.normalize(c, s)
		if err != nil {
			return nil, err
		}
		out = append(out, nc)
	}
	return slices.Clip(out), nil
}
