package query

import "github.com/leapstack-labs/leapdb/pkg/core"

// notDeleted is the soft-delete filter.
func notDeleted() Clause {
	return WhereClause{
		left: core.ColumnStatus,
		cmp:  Comparison{op: OpNotEq, value: string(core.StatusDeleted)},
	}
}

// WithoutDeleted appends the soft-delete filter to the top-level where list
// and to the conditions of every On clause, nested ones included.
// It is not idempotent: each application adds another filter.
func WithoutDeleted(d *Description) *Description {
	where := addToOns(d.where)
	where = append(where, notDeleted())
	return d.withWhere(where)
}

func addToOns(clauses []Clause) []Clause {
	out := make([]Clause, len(clauses), len(clauses)+1)
	for i, c := range clauses {
		switch x := c.(type) {
		case OnClause:
			conds := addToOns(x.conditions)
			out[i] = OnClause{table: x.table, conditions: append(conds, notDeleted())}
		case AndClause:
			out[i] = AndClause{conditions: addToOns(x.conditions)}
		case OrClause:
			out[i] = OrClause{conditions: addToOns(x.conditions)}
		default:
			out[i] = c
		}
	}
	return out
}
