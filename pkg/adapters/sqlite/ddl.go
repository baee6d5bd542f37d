package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/schema"
)

// dropAll drops every table, internal ones included.
func dropAll(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "select name from sqlite_master where type = 'table' and name not like 'sqlite_%'")
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("error iterating tables: %w", err)
	}
	_ = rows.Close()

	for _, name := range names {
		if _, err := tx.ExecContext(ctx, "drop table if exists "+quote(name)); err != nil {
			return fmt.Errorf("failed to drop %s: %w", name, err)
		}
	}
	return nil
}

// createTable creates t with its reserved columns and indexes. Columns carry
// no declared type so values keep the storage class they were written with.
func createTable(ctx context.Context, tx *sql.Tx, t *schema.TableSchema) error {
	cols := []string{
		quote(core.ColumnID) + " primary key",
		quote(core.ColumnChanged),
		quote(core.ColumnStatus),
		quote(core.ColumnLastModified),
	}
	for _, c := range t.Columns {
		cols = append(cols, quote(c.Name))
	}
	stmt := fmt.Sprintf("create table %s (%s)", quote(t.Name), strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t.Name, err)
	}

	if err := createIndex(ctx, tx, t.Name, core.ColumnStatus); err != nil {
		return err
	}
	for _, c := range t.Columns {
		if c.IsIndexed {
			if err := createIndex(ctx, tx, t.Name, c.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func createIndex(ctx context.Context, tx *sql.Tx, table, column string) error {
	stmt := fmt.Sprintf("create index if not exists %s on %s (%s)",
		quote(table+"_"+column), quote(table), quote(column))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to index %s.%s: %w", table, column, err)
	}
	return nil
}

func setUserVersion(ctx context.Context, tx *sql.Tx, version int) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

func applyStep(ctx context.Context, tx *sql.Tx, step schema.MigrationStep) error {
	switch step.Kind {
	case schema.StepCreateTable:
		return createTable(ctx, tx, step.Table)
	case schema.StepAddColumns:
		for _, c := range step.Columns {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("alter table %s add %s", quote(step.TableName), quote(c.Name))); err != nil {
				return fmt.Errorf("failed to add column %s.%s: %w", step.TableName, c.Name, err)
			}
			if def := c.Default(); def != nil {
				if _, err := tx.ExecContext(ctx, fmt.Sprintf("update %s set %s = ?", quote(step.TableName), quote(c.Name)), bind(def)); err != nil {
					return fmt.Errorf("failed to fill column %s.%s: %w", step.TableName, c.Name, err)
				}
			}
			if c.IsIndexed {
				if err := createIndex(ctx, tx, step.TableName, c.Name); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return fmt.Errorf("unknown migration step %q", step.Kind)
}

// storedColumns lists the columns of t written for raw, reserved first.
func storedColumns(t *schema.TableSchema, raw core.RawRecord) []string {
	cols := []string{core.ColumnID, core.ColumnChanged, core.ColumnStatus}
	if _, ok := raw[core.ColumnLastModified]; ok {
		cols = append(cols, core.ColumnLastModified)
	}
	for _, c := range t.Columns {
		cols = append(cols, c.Name)
	}
	return cols
}

// scanRaws reads every row into a sanitized raw record and closes rows.
func scanRaws(rows *sql.Rows, t *schema.TableSchema) ([]core.RawRecord, error) {
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	var out []core.RawRecord
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		dirty := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				dirty[c] = string(b)
				continue
			}
			dirty[c] = values[i]
		}
		out = append(out, schema.SanitizedRaw(t, dirty))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
