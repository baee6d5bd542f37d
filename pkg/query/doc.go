// Package query is the declarative query model.
//
// Callers compose clauses with the builder functions (Where, And, Or, On,
// SortBy, Take, Skip, ...) and pass them to Build, which validates them and
// partitions them into an immutable Description. Descriptions expose their
// contents only through accessors that return copies, so a built query can be
// shared between goroutines without synchronization.
//
// Optimize reorders a where list by estimated selectivity without changing
// the set of matching records. WithoutDeleted adds the soft-delete filter at
// every join depth.
package query
