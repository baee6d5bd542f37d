package query

import "slices"

// Description is a built, immutable query.
type Description struct {
	where            []Clause
	joinTables       []string
	nestedJoinTables []NestedJoinPair
	sortBy           []SortClause
	take             int
	hasTake          bool
	skip             int
	hasSkip          bool
}

// Where returns a copy of the top-level conditions.
func (d *Description) Where() []Clause { return slices.Clone(d.where) }

// JoinTables returns every table referenced by an On clause, deduplicated.
func (d *Description) JoinTables() []string { return slices.Clone(d.joinTables) }

// NestedJoinTables returns the declared nested joins.
func (d *Description) NestedJoinTables() []NestedJoinPair { return slices.Clone(d.nestedJoinTables) }

// SortBy returns the sort clauses in application order.
func (d *Description) SortBy() []SortClause { return slices.Clone(d.sortBy) }

// Take returns the limit, if any.
func (d *Description) Take() (int, bool) { return d.take, d.hasTake }

// Skip returns the offset, if any.
func (d *Description) Skip() (int, bool) { return d.skip, d.hasSkip }

// HasJoins reports whether any On clause is present.
func (d *Description) HasJoins() bool { return len(d.joinTables) > 0 }

// HasShaping reports whether sort, take or skip is present.
func (d *Description) HasShaping() bool {
	return len(d.sortBy) > 0 || d.hasTake || d.hasSkip
}

// HasRawClauses reports whether an SQL or Native clause appears at any depth.
func (d *Description) HasRawClauses() bool {
	return containsKind(d.where, KindSQL, KindNative)
}

// withWhere returns a copy of d with a different where list.
func (d *Description) withWhere(where []Clause) *Description {
	out := *d
	out.where = where
	out.joinTables = slices.Clone(d.joinTables)
	out.nestedJoinTables = slices.Clone(d.nestedJoinTables)
	out.sortBy = slices.Clone(d.sortBy)
	return &out
}

func containsKind(clauses []Clause, kinds ...Kind) bool {
	for _, c := range clauses {
		if slices.Contains(kinds, c.Kind()) {
			return true
		}
		switch x := c.(type) {
		case AndClause:
			if containsKind(x.conditions, kinds...) {
				return true
			}
		case OrClause:
			if containsKind(x.conditions, kinds...) {
				return true
			}
		case OnClause:
			if containsKind(x.conditions, kinds...) {
				return true
			}
		}
	}
	return false
}
