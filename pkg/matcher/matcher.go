package matcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/query"
)

// ErrUnsupportedClause is returned for clauses a matcher cannot evaluate.
var ErrUnsupportedClause = errors.New("clause cannot be evaluated in process")

// Matcher reports whether a raw record satisfies a query's conditions.
type Matcher func(core.RawRecord) bool

// Encode compiles the conditions of d into a Matcher. Queries with joins or
// raw clauses are rejected. Sort, take and skip are ignored: callers decide
// whether a shaped query can be re-filtered locally.
func Encode(d *query.Description) (Matcher, error) {
	if d.HasJoins() {
		return nil, fmt.Errorf("%w: query joins %v", ErrUnsupportedClause, d.JoinTables())
	}
	where := d.Where()
	if err := checkLocal(where); err != nil {
		return nil, err
	}
	return func(raw core.RawRecord) bool {
		ok, _ := evalAll(nil, "", where, raw)
		return ok
	}, nil
}

func checkLocal(clauses []query.Clause) error {
	for _, c := range clauses {
		switch x := c.(type) {
		case query.OnClause:
			return fmt.Errorf("%w: on(%s)", ErrUnsupportedClause, x.Table())
		case query.SQLClause, query.NativeClause:
			return fmt.Errorf("%w: %s()", ErrUnsupportedClause, c.Kind())
		case query.AndClause:
			if err := checkLocal(x.Conditions()); err != nil {
				return err
			}
		case query.OrClause:
			if err := checkLocal(x.Conditions()); err != nil {
				return err
			}
		}
	}
	return nil
}

// JoinResolver returns the rows of table to joined to a row of table from.
type JoinResolver func(from, to string, raw core.RawRecord) ([]core.RawRecord, error)

// Evaluator evaluates full where lists, including joins and native clauses.
type Evaluator struct {
	Join JoinResolver
}

// Match reports whether raw, a row of table, satisfies every clause.
func (e *Evaluator) Match(table string, where []query.Clause, raw core.RawRecord) (bool, error) {
	return evalAll(e, table, where, raw)
}

func evalAll(e *Evaluator, table string, clauses []query.Clause, raw core.RawRecord) (bool, error) {
	for _, c := range clauses {
		ok, err := eval(e, table, c, raw)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func eval(e *Evaluator, table string, c query.Clause, raw core.RawRecord) (bool, error) {
	switch x := c.(type) {
	case query.WhereClause:
		return MatchWhere(x, raw), nil
	case query.AndClause:
		return evalAll(e, table, x.Conditions(), raw)
	case query.OrClause:
		for _, sub := range x.Conditions() {
			ok, err := eval(e, table, sub, raw)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case query.OnClause:
		if e == nil || e.Join == nil {
			return false, fmt.Errorf("%w: on(%s)", ErrUnsupportedClause, x.Table())
		}
		rows, err := e.Join(table, x.Table(), raw)
		if err != nil {
			return false, err
		}
		conds := x.Conditions()
		for _, row := range rows {
			ok, err := evalAll(e, x.Table(), conds, row)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case query.NativeClause:
		if e == nil {
			return false, fmt.Errorf("%w: native(%s)", ErrUnsupportedClause, x.Name())
		}
		return x.Match(raw), nil
	case query.SQLClause:
		return false, fmt.Errorf("%w: sql()", ErrUnsupportedClause)
	}
	return false, fmt.Errorf("%w: %s()", ErrUnsupportedClause, c.Kind())
}

// MatchWhere evaluates a single comparison against raw.
// A missing column reads as null.
func MatchWhere(w query.WhereClause, raw core.RawRecord) bool {
	left := Normalize(raw[w.Left()])
	cmp := w.Comparison()

	var right any
	if col, ok := cmp.Column(); ok {
		right = Normalize(raw[col])
	} else {
		right = Normalize(cmp.Value())
	}

	switch cmp.Operator() {
	case query.OpEq:
		return equal(left, right)
	case query.OpNotEq:
		return !equal(left, right)
	case query.OpGt:
		return left != nil && right != nil && Compare(left, right) > 0
	case query.OpGte:
		return left != nil && right != nil && Compare(left, right) >= 0
	case query.OpWeakGt:
		if left != nil && right == nil {
			return true
		}
		return left != nil && right != nil && Compare(left, right) > 0
	case query.OpLt:
		return left != nil && right != nil && Compare(left, right) < 0
	case query.OpLte:
		return left != nil && right != nil && Compare(left, right) <= 0
	case query.OpOneOf:
		return left != nil && containsValue(cmp.Values(), left)
	case query.OpNotIn:
		return left != nil && !containsValue(cmp.Values(), left)
	case query.OpBetween:
		vs := cmp.Values()
		return left != nil && Compare(left, vs[0]) >= 0 && Compare(left, vs[1]) <= 0
	case query.OpLike:
		s, ok := left.(string)
		return ok && Like(s, cmp.Value().(string))
	case query.OpNotLike:
		s, ok := left.(string)
		return ok && !Like(s, cmp.Value().(string))
	case query.OpIncludes:
		s, ok := left.(string)
		return ok && strings.Contains(s, cmp.Value().(string))
	}
	return false
}

func containsValue(values []any, v any) bool {
	for _, x := range values {
		if equal(x, v) {
			return true
		}
	}
	return false
}
