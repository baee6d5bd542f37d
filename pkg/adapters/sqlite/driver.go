package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapdb/pkg/adapter"
	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/query"
	"github.com/leapstack-labs/leapdb/pkg/schema"

	_ "modernc.org/sqlite" // sqlite driver
)

// Driver is the boundary side of the relational backend. It is only called
// from the dispatcher worker that owns it.
type Driver struct {
	adapter.BaseSQLAdapter
	schema     *schema.AppSchema
	migrations *schema.Migrations
	sent       *adapter.SentRecords
}

var _ adapter.Driver = (*Driver)(nil)

// Open connects to the database at cfg.Path.
// Use ":memory:" or an empty path for an in-memory database.
func Open(cfg core.AdapterConfig, opts adapter.Options) (*Driver, error) {
	if opts.Schema == nil {
		return nil, fmt.Errorf("sqlite: schema not specified")
	}
	params, err := ParseParams(cfg.Params)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps :memory: databases alive and serializes
	// access the way the worker does.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	for _, pragma := range params.pragmas() {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &Driver{
		BaseSQLAdapter: adapter.BaseSQLAdapter{DB: db, Logger: logger},
		schema:         opts.Schema,
		migrations:     opts.Migrations,
		sent:           adapter.NewSentRecords(),
	}, nil
}

func (d *Driver) table(name string) (*schema.TableSchema, error) {
	t, ok := d.schema.Table(name)
	if !ok {
		return nil, fmt.Errorf("unknown table %s", name)
	}
	return t, nil
}

func (d *Driver) userVersion(ctx context.Context) (int, error) {
	var v int
	if err := d.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// Initialize reports whether the stored schema matches the app schema.
func (d *Driver) Initialize(ctx context.Context) (core.SchemaSignal, error) {
	if err := migrateInternal(d.DB); err != nil {
		return core.SchemaSignal{}, err
	}
	v, err := d.userVersion(ctx)
	if err != nil {
		return core.SchemaSignal{}, err
	}
	switch {
	case v == d.schema.Version:
		return core.SchemaSignal{Kind: core.SchemaReady, DatabaseVersion: v}, nil
	case v > 0 && v < d.schema.Version:
		return core.SchemaSignal{Kind: core.SchemaNeedsMigration, DatabaseVersion: v}, nil
	}
	return core.SchemaSignal{Kind: core.SchemaNeedsSetup, DatabaseVersion: v}, nil
}

// SetUpWithSchema drops every table and recreates the schema.
func (d *Driver) SetUpWithSchema(ctx context.Context) error {
	d.Logger.Info("setting up sqlite schema", "version", d.schema.Version)
	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		if err := dropAll(ctx, tx); err != nil {
			return err
		}
		for _, t := range d.schema.Tables() {
			if err := createTable(ctx, tx, t); err != nil {
				return err
			}
		}
		return setUserVersion(ctx, tx, d.schema.Version)
	})
	if err != nil {
		return fmt.Errorf("failed to set up schema: %w", err)
	}
	d.sent.Clear()
	return migrateInternal(d.DB)
}

// SetUpWithMigrations applies the migration steps from fromVersion. When the
// history does not cover the range the schema is recreated instead.
func (d *Driver) SetUpWithMigrations(ctx context.Context, fromVersion int) error {
	steps, ok := d.migrations.StepsBetween(fromVersion, d.schema.Version)
	if !ok {
		d.Logger.Warn("migrations do not cover database version, resetting", "from", fromVersion, "to", d.schema.Version)
		return d.SetUpWithSchema(ctx)
	}
	d.Logger.Info("migrating sqlite schema", "from", fromVersion, "to", d.schema.Version, "steps", len(steps))
	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		for _, step := range steps {
			if err := applyStep(ctx, tx, step); err != nil {
				return err
			}
		}
		return setUserVersion(ctx, tx, d.schema.Version)
	})
	if err != nil {
		return fmt.Errorf("failed to migrate from version %d: %w", fromVersion, err)
	}
	return nil
}

// Find returns the row for id. Rows already sent come back as bare ids.
func (d *Driver) Find(ctx context.Context, table, id string) (*core.Row, error) {
	t, err := d.table(table)
	if err != nil {
		return nil, err
	}
	if d.sent.IsSent(table, id) {
		row := core.IDRow(id)
		return &row, nil
	}
	rows, err := d.DB.QueryContext(ctx, "select * from "+quote(table)+" where "+quote(core.ColumnID)+" is ? limit 1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s#%s: %w", table, id, err)
	}
	raws, err := scanRaws(rows, t)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, nil
	}
	row := d.sent.Row(table, raws[0])
	return &row, nil
}

// Query returns the rows matching q.
func (d *Driver) Query(ctx context.Context, table string, q *query.Description) ([]core.Row, error) {
	t, err := d.table(table)
	if err != nil {
		return nil, err
	}
	sqlStr, args, err := EncodeQuery(d.schema, table, q)
	if err != nil {
		return nil, err
	}
	d.Logger.Debug("query", "table", table, "sql", sqlStr)
	rows, err := d.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	raws, err := scanRaws(rows, t)
	if err != nil {
		return nil, err
	}
	out := make([]core.Row, len(raws))
	for i, raw := range raws {
		out[i] = d.sent.Row(table, raw)
	}
	return out, nil
}

// Count returns the number of rows matching q.
func (d *Driver) Count(ctx context.Context, table string, q *query.Description) (int, error) {
	sqlStr, args, err := EncodeCount(d.schema, table, q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := d.DB.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// Batch applies ops in one transaction.
func (d *Driver) Batch(ctx context.Context, ops []core.BatchOperation) error {
	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		for _, op := range ops {
			if err := d.applyOp(ctx, tx, op); err != nil {
				return fmt.Errorf("%s %s#%s: %w", op.Type, op.Table, op.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply batch: %w", err)
	}
	d.sent.Apply(ops)
	return nil
}

func (d *Driver) applyOp(ctx context.Context, tx *sql.Tx, op core.BatchOperation) error {
	t, err := d.table(op.Table)
	if err != nil {
		return err
	}
	switch op.Type {
	case core.OpCreate:
		cols := storedColumns(t, op.Raw)
		marks := make([]string, len(cols))
		args := make([]any, len(cols))
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = quote(c)
			marks[i] = "?"
			args[i] = bind(op.Raw[c])
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf("insert into %s (%s) values (%s)",
			quote(t.Name), strings.Join(quoted, ", "), strings.Join(marks, ", ")), args...)
	case core.OpUpdate:
		cols := storedColumns(t, op.Raw)
		sets := make([]string, 0, len(cols))
		args := make([]any, 0, len(cols)+1)
		for _, c := range cols {
			if c == core.ColumnID {
				continue
			}
			sets = append(sets, quote(c)+" = ?")
			args = append(args, bind(op.Raw[c]))
		}
		args = append(args, op.ID)
		_, err = tx.ExecContext(ctx, fmt.Sprintf("update %s set %s where %s = ?",
			quote(t.Name), strings.Join(sets, ", "), quote(core.ColumnID)), args...)
	case core.OpMarkAsDeleted:
		_, err = tx.ExecContext(ctx, fmt.Sprintf("update %s set %s = ? where %s = ?",
			quote(t.Name), quote(core.ColumnStatus), quote(core.ColumnID)), string(core.StatusDeleted), op.ID)
	case core.OpDestroyPermanently:
		_, err = tx.ExecContext(ctx, fmt.Sprintf("delete from %s where %s = ?",
			quote(t.Name), quote(core.ColumnID)), op.ID)
	default:
		err = fmt.Errorf("unknown batch operation %q", op.Type)
	}
	return err
}

// GetDeletedRecords returns the ids of rows marked as deleted.
func (d *Driver) GetDeletedRecords(ctx context.Context, table string) ([]string, error) {
	if _, err := d.table(table); err != nil {
		return nil, err
	}
	rows, err := d.DB.QueryContext(ctx, fmt.Sprintf("select %s from %s where %s = ?",
		quote(core.ColumnID), quote(table), quote(core.ColumnStatus)), string(core.StatusDeleted))
	if err != nil {
		return nil, fmt.Errorf("failed to query deleted records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan deleted record: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deleted records: %w", err)
	}
	return ids, nil
}

// DestroyDeletedRecords permanently removes ids that are marked as deleted.
func (d *Driver) DestroyDeletedRecords(ctx context.Context, table string, ids []string) error {
	if _, err := d.table(table); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	marks := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, string(core.StatusDeleted))
	for i, id := range ids {
		marks[i] = "?"
		args = append(args, id)
	}
	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf("delete from %s where %s = ? and %s in (%s)",
			quote(table), quote(core.ColumnStatus), quote(core.ColumnID), strings.Join(marks, ", ")), args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to destroy deleted records: %w", err)
	}
	for _, id := range ids {
		d.sent.Unmark(table, id)
	}
	return nil
}

// UnsafeResetDatabase recreates the schema, dropping every record.
func (d *Driver) UnsafeResetDatabase(ctx context.Context) error {
	return d.SetUpWithSchema(ctx)
}

// GetLocal returns the local storage value for key, or nil.
func (d *Driver) GetLocal(ctx context.Context, key string) (*string, error) {
	var value string
	err := d.DB.QueryRowContext(ctx, "select value from local_storage where key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read local storage: %w", err)
	}
	return &value, nil
}

// SetLocal stores value under key.
func (d *Driver) SetLocal(ctx context.Context, key, value string) error {
	return d.Exec(ctx, "insert or replace into local_storage (key, value) values (?, ?)", key, value)
}

// RemoveLocal deletes key.
func (d *Driver) RemoveLocal(ctx context.Context, key string) error {
	return d.Exec(ctx, "delete from local_storage where key = ?", key)
}

// UnsafeExecute runs the SQL statements of work in one transaction.
func (d *Driver) UnsafeExecute(ctx context.Context, work adapter.UnsafeWork) error {
	if work.Documents != nil {
		return fmt.Errorf("%w: document work on sqlite", core.ErrUnsupported)
	}
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		for _, st := range work.SQL {
			if _, err := tx.ExecContext(ctx, st.Query, st.Args...); err != nil {
				return fmt.Errorf("failed to execute %q: %w", st.Query, err)
			}
		}
		return nil
	})
}
