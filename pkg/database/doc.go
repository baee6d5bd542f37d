// Package database is the entry point of LeapDB. A Database owns one
// adapter and a Collection per table. Collections resolve adapter rows
// into Records through an identity cache, so each (table, id) pair has at
// most one live Record, and broadcast change sets after every batch.
//
// All mutations run inside a writer:
//
//	err := db.Write(ctx, func(ctx context.Context) error {
//		_, err := db.Get("tasks").Create(ctx, func(r *database.Record) {
//			r.Set("title", "Write docs")
//		})
//		return err
//	})
//
// Queries can be fetched once or observed. Observers keep their results up
// to date as batches are applied.
package database
