package adapter

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/dispatcher"
	"github.com/leapstack-labs/leapdb/pkg/query"
)

// Operation names carried in dispatcher requests.
const (
	OpInitialize            = "initialize"
	OpSetUpWithSchema       = "setUpWithSchema"
	OpSetUpWithMigrations   = "setUpWithMigrations"
	OpFind                  = "find"
	OpQuery                 = "query"
	OpCount                 = "count"
	OpBatch                 = "batch"
	OpGetDeletedRecords     = "getDeletedRecords"
	OpDestroyDeletedRecords = "destroyDeletedRecords"
	OpUnsafeResetDatabase   = "unsafeResetDatabase"
	OpGetLocal              = "getLocal"
	OpSetLocal              = "setLocal"
	OpRemoveLocal           = "removeLocal"
	OpUnsafeExecute         = "unsafeExecute"
	OpClose                 = "close"
)

// Driver is the boundary side of a backend. It runs on the worker that owns
// the storage and is only reached through a dispatcher connection.
type Driver interface {
	Initialize(ctx context.Context) (core.SchemaSignal, error)
	SetUpWithSchema(ctx context.Context) error
	SetUpWithMigrations(ctx context.Context, fromVersion int) error
	Find(ctx context.Context, table, id string) (*core.Row, error)
	Query(ctx context.Context, table string, q *query.Description) ([]core.Row, error)
	Count(ctx context.Context, table string, q *query.Description) (int, error)
	Batch(ctx context.Context, ops []core.BatchOperation) error
	GetDeletedRecords(ctx context.Context, table string) ([]string, error)
	DestroyDeletedRecords(ctx context.Context, table string, ids []string) error
	UnsafeResetDatabase(ctx context.Context) error
	GetLocal(ctx context.Context, key string) (*string, error)
	SetLocal(ctx context.Context, key, value string) error
	RemoveLocal(ctx context.Context, key string) error
	UnsafeExecute(ctx context.Context, work UnsafeWork) error
	Close() error
}

// HandlerFor exposes d as a dispatcher handler, decoding request payloads
// into typed driver calls.
func HandlerFor(d Driver) dispatcher.Handler {
	return dispatcher.HandlerFunc(func(ctx context.Context, op string, args []any) (any, error) {
		return handle(ctx, d, op, args)
	})
}

func handle(ctx context.Context, d Driver, op string, args []any) (any, error) {
	a := argReader{op: op, args: args}
	switch op {
	case OpInitialize:
		return d.Initialize(ctx)
	case OpSetUpWithSchema:
		return nil, d.SetUpWithSchema(ctx)
	case OpSetUpWithMigrations:
		from := argAt[int](&a, 0)
		if a.err != nil {
			return nil, a.err
		}
		return nil, d.SetUpWithMigrations(ctx, from)
	case OpFind:
		table, id := argAt[string](&a, 0), argAt[string](&a, 1)
		if a.err != nil {
			return nil, a.err
		}
		return d.Find(ctx, table, id)
	case OpQuery:
		table, q := argAt[string](&a, 0), argAt[*query.Description](&a, 1)
		if a.err != nil {
			return nil, a.err
		}
		return d.Query(ctx, table, q)
	case OpCount:
		table, q := argAt[string](&a, 0), argAt[*query.Description](&a, 1)
		if a.err != nil {
			return nil, a.err
		}
		return d.Count(ctx, table, q)
	case OpBatch:
		ops := argAt[[]core.BatchOperation](&a, 0)
		if a.err != nil {
			return nil, a.err
		}
		return nil, d.Batch(ctx, ops)
	case OpGetDeletedRecords:
		table := argAt[string](&a, 0)
		if a.err != nil {
			return nil, a.err
		}
		return d.GetDeletedRecords(ctx, table)
	case OpDestroyDeletedRecords:
		table, ids := argAt[string](&a, 0), argAt[[]string](&a, 1)
		if a.err != nil {
			return nil, a.err
		}
		return nil, d.DestroyDeletedRecords(ctx, table, ids)
	case OpUnsafeResetDatabase:
		return nil, d.UnsafeResetDatabase(ctx)
	case OpGetLocal:
		key := argAt[string](&a, 0)
		if a.err != nil {
			return nil, a.err
		}
		return d.GetLocal(ctx, key)
	case OpSetLocal:
		key, value := argAt[string](&a, 0), argAt[string](&a, 1)
		if a.err != nil {
			return nil, a.err
		}
		return nil, d.SetLocal(ctx, key, value)
	case OpRemoveLocal:
		key := argAt[string](&a, 0)
		if a.err != nil {
			return nil, a.err
		}
		return nil, d.RemoveLocal(ctx, key)
	case OpUnsafeExecute:
		work := argAt[UnsafeWork](&a, 0)
		if a.err != nil {
			return nil, a.err
		}
		return nil, d.UnsafeExecute(ctx, work)
	case OpClose:
		return nil, d.Close()
	}
	return nil, fmt.Errorf("unknown operation %q: %w", op, core.ErrUnsupported)
}

// argReader records the first decoding failure.
type argReader struct {
	op   string
	args []any
	err  error
}

func argAt[T any](a *argReader, i int) T {
	var zero T
	if a.err != nil {
		return zero
	}
	if i >= len(a.args) {
		a.err = fmt.Errorf("%s: missing argument %d", a.op, i)
		return zero
	}
	if a.args[i] == nil {
		return zero
	}
	v, ok := a.args[i].(T)
	if !ok {
		a.err = fmt.Errorf("%s: argument %d is %T, want %T", a.op, i, a.args[i], zero)
	}
	return v
}
