// Package adapter defines the storage contract every backend implements and
// the plumbing shared by backends: the dispatched caller-side adapter, the
// registry of adapter factories, the already-sent record set and a
// database/sql helper.
//
// Concrete backends live in pkg/adapters/ subdirectories.
package adapter

import (
	"context"
	"errors"

	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/query"
	"github.com/leapstack-labs/leapdb/pkg/schema"
)

// Adapter is the caller-side view of a storage backend.
type Adapter interface {
	// Find returns the row for id, or nil when absent.
	Find(ctx context.Context, table, id string) (*core.Row, error)

	// Query returns the rows of table matching q.
	// Rows the caller already holds come back as bare ids.
	Query(ctx context.Context, table string, q *query.Description) ([]core.Row, error)

	// Count returns the number of rows of table matching q.
	Count(ctx context.Context, table string, q *query.Description) (int, error)

	// Batch applies ops atomically.
	Batch(ctx context.Context, ops []core.BatchOperation) error

	// GetDeletedRecords returns the ids of rows marked as deleted.
	GetDeletedRecords(ctx context.Context, table string) ([]string, error)

	// DestroyDeletedRecords removes the given rows if they are marked as deleted.
	DestroyDeletedRecords(ctx context.Context, table string, ids []string) error

	// UnsafeResetDatabase drops every record and recreates the schema.
	UnsafeResetDatabase(ctx context.Context) error

	// GetLocal returns the local storage value for key, or nil.
	GetLocal(ctx context.Context, key string) (*string, error)
	SetLocal(ctx context.Context, key, value string) error
	RemoveLocal(ctx context.Context, key string) error

	// UnsafeExecute runs backend-specific work atomically.
	UnsafeExecute(ctx context.Context, work UnsafeWork) error

	// Schema returns the app schema the adapter was opened with.
	Schema() *schema.AppSchema

	// Close releases the backend.
	Close() error
}

// SchemaSetup is implemented by adapters whose storage must be prepared
// before use.
type SchemaSetup interface {
	Initialize(ctx context.Context) (core.SchemaSignal, error)
	SetUpWithSchema(ctx context.Context) error
	SetUpWithMigrations(ctx context.Context, fromVersion int) error
	// CanMigrate reports whether migrations cover fromVersion up to the
	// current schema version.
	CanMigrate(fromVersion int) bool
}

// ErrNotReady is returned when storage is used before it has been prepared.
var ErrNotReady = errors.New("adapter storage is not set up")

// Readiness is implemented by adapters that know whether their storage has
// been prepared. Calls to an adapter that is not ready wait for setup.
type Readiness interface {
	Ready() bool
}

// Statement is one parameterized SQL statement.
type Statement struct {
	Query string
	Args  []any
}

// UnsafeWork is raw work for UnsafeExecute. Relational backends run SQL,
// document backends call Documents with their table contents.
type UnsafeWork struct {
	SQL       []Statement
	Documents func(tables map[string]map[string]core.RawRecord) error
}
