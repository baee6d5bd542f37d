package query

import "sort"

// DefaultLargeArrayThreshold is the oneOf/notIn size treated as expensive.
const DefaultLargeArrayThreshold = 32

// OptimizeOptions supplies the schema knowledge the optimizer needs.
type OptimizeOptions struct {
	// IsIndexed reports whether a column of the queried table is indexed.
	IsIndexed func(column string) bool
	// SingleRowJoin reports whether a record joins at most one row of table.
	// Only such On clauses are merged.
	SingleRowJoin func(table string) bool
	// LargeArrayThreshold overrides DefaultLargeArrayThreshold when positive.
	LargeArrayThreshold int
}

// Clause costs, lowest first.
const (
	costIndexedEq = iota + 1
	costIndexed
	costUnindexed
	costLargeArray
	costJoin
)

// Optimize reorders a top-level where list by estimated cost. It flattens
// single-child And/Or wrappers, splices top-level And groups, merges
// same-table On clauses for single-row joins, and keeps clauses it cannot
// cost (raw clauses, Or groups) at their original positions.
func Optimize(where []Clause, opts OptimizeOptions) []Clause {
	if opts.LargeArrayThreshold <= 0 {
		opts.LargeArrayThreshold = DefaultLargeArrayThreshold
	}

	flat := make([]Clause, 0, len(where))
	for _, c := range where {
		flat = spliceAnd(flat, flatten(c))
	}
	merged := mergeOns(flat, opts)

	fixed := make([]bool, len(merged))
	var movable []Clause
	for i, c := range merged {
		switch c.Kind() {
		case KindWhere, KindOn:
			movable = append(movable, c)
		default:
			fixed[i] = true
		}
	}

	sort.SliceStable(movable, func(i, j int) bool {
		return cost(movable[i], opts) < cost(movable[j], opts)
	})

	out := make([]Clause, len(merged))
	next := 0
	for i, c := range merged {
		if fixed[i] {
			out[i] = c
			continue
		}
		out[i] = movable[next]
		next++
	}
	return out
}

// OptimizeDescription applies Optimize to the where list of d.
func OptimizeDescription(d *Description, opts OptimizeOptions) *Description {
	return d.withWhere(Optimize(d.where, opts))
}

// flatten removes single-child And/Or wrappers at every depth.
func flatten(c Clause) Clause {
	switch x := c.(type) {
	case AndClause:
		if len(x.conditions) == 1 {
			return flatten(x.conditions[0])
		}
		return AndClause{conditions: flattenAll(x.conditions)}
	case OrClause:
		if len(x.conditions) == 1 {
			return flatten(x.conditions[0])
		}
		return OrClause{conditions: flattenAll(x.conditions)}
	case OnClause:
		return OnClause{table: x.table, conditions: flattenAll(x.conditions)}
	}
	return c
}

func flattenAll(cs []Clause) []Clause {
	out := make([]Clause, len(cs))
	for i, c := range cs {
		out[i] = flatten(c)
	}
	return out
}

// spliceAnd appends c to dst, inlining the members of a conjunction.
func spliceAnd(dst []Clause, c Clause) []Clause {
	and, ok := c.(AndClause)
	if !ok {
		return append(dst, c)
	}
	for _, sub := range and.conditions {
		dst = spliceAnd(dst, sub)
	}
	return dst
}

// mergeOns folds later top-level On clauses into the first On on the same
// table when the join yields at most one row per record.
func mergeOns(where []Clause, opts OptimizeOptions) []Clause {
	if opts.SingleRowJoin == nil {
		return where
	}
	first := make(map[string]int)
	out := make([]Clause, 0, len(where))
	for _, c := range where {
		on, ok := c.(OnClause)
		if !ok || !opts.SingleRowJoin(on.table) {
			out = append(out, c)
			continue
		}
		idx, seen := first[on.table]
		if !seen {
			first[on.table] = len(out)
			out = append(out, OnClause{table: on.table, conditions: on.Conditions()})
			continue
		}
		prev := out[idx].(OnClause)
		out[idx] = OnClause{table: prev.table, conditions: append(prev.conditions, on.conditions...)}
	}
	return out
}

func cost(c Clause, opts OptimizeOptions) int {
	w, ok := c.(WhereClause)
	if !ok {
		return costJoin
	}
	op := w.cmp.op
	if (op == OpOneOf || op == OpNotIn) && len(w.cmp.values) > opts.LargeArrayThreshold {
		return costLargeArray
	}
	if opts.IsIndexed != nil && opts.IsIndexed(w.left) {
		if op == OpEq {
			return costIndexedEq
		}
		return costIndexed
	}
	return costUnindexed
}
