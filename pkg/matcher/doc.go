// Package matcher evaluates query conditions against raw records in process.
//
// Encode compiles a join-free Description into a predicate used by live
// queries to re-filter changed records without going back to storage.
// Evaluator is the general form used by the document store: it also follows
// On clauses through a join resolver and runs Native clauses.
//
// Semantics follow the relational backend exactly: equality is null-safe,
// ordering comparisons never match null, and values order as
// null < numbers < text with booleans compared as 0 and 1.
package matcher
