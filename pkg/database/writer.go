package database

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/leapdb/pkg/core"
)

type writerKey struct{}

// writerToken marks a context as running inside a writer or reader of db.
type writerToken struct {
	db       *Database
	readOnly bool
}

func writerFrom(ctx context.Context, db *Database) *writerToken {
	tok, _ := ctx.Value(writerKey{}).(*writerToken)
	if tok == nil || tok.db != db {
		return nil
	}
	return tok
}

// Write runs fn as a writer. Writers of one database never overlap: a
// writer started while another runs waits its turn. A Write nested in a
// writer's context runs immediately as part of the outer writer.
//
// Change notifications run synchronously inside the writer, so observers
// must not start writers of their own from a callback.
func (db *Database) Write(ctx context.Context, fn func(ctx context.Context) error) error {
	if tok := writerFrom(ctx, db); tok != nil {
		core.Invariant(!tok.readOnly, "writer started inside a reader")
		return fn(ctx)
	}
	return db.run(ctx, false, fn)
}

// Read runs fn serialized with writers. Batches inside a reader are
// refused.
func (db *Database) Read(ctx context.Context, fn func(ctx context.Context) error) error {
	if writerFrom(ctx, db) != nil {
		return fn(ctx)
	}
	return db.run(ctx, true, fn)
}

func (db *Database) run(ctx context.Context, readOnly bool, fn func(ctx context.Context) error) error {
	if err := db.writer.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to start writer: %w", err)
	}
	defer db.writer.Release(1)
	return fn(context.WithValue(ctx, writerKey{}, &writerToken{db: db, readOnly: readOnly}))
}
