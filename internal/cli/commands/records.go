package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapdb/pkg/database"
	"github.com/leapstack-labs/leapdb/pkg/schema"
	"github.com/spf13/cobra"
)

// NewInsertCommand creates the insert command.
func NewInsertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "insert <table> column=value...",
		Short: "Create a record",
		Long: `Create a record in a table. Columns that are not given take their
default value. Prints the id of the new record.`,
		Example: `  leapdb insert tasks title="Write docs" priority=2 done=false`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, _, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			c, err := db.Collection(args[0])
			if err != nil {
				return err
			}
			values, err := parseAssignments(c.Schema(), args[1:])
			if err != nil {
				return err
			}

			var created *database.Record
			err = db.Write(ctx, func(ctx context.Context) error {
				created, err = c.Create(ctx, func(r *database.Record) {
					for col, v := range values {
						r.Set(col, v)
					}
				})
				return err
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), created.ID())
			return nil
		},
	}
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "update <table> <id> column=value...",
		Short:   "Update a record",
		Example: `  leapdb update tasks 3f2a... done=true`,
		Args:    cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, _, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			c, err := db.Collection(args[0])
			if err != nil {
				return err
			}
			values, err := parseAssignments(c.Schema(), args[2:])
			if err != nil {
				return err
			}

			return db.Write(ctx, func(ctx context.Context) error {
				r, err := c.Find(ctx, args[1])
				if err != nil {
					return err
				}
				return r.Update(ctx, func(r *database.Record) {
					for col, v := range values {
						r.Set(col, v)
					}
				})
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand() *cobra.Command {
	var permanent bool

	cmd := &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Mark a record as deleted",
		Long: `Mark a record as deleted so the deletion can be synced. With
--permanent the row is removed from storage instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, _, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			c, err := db.Collection(args[0])
			if err != nil {
				return err
			}
			return db.Write(ctx, func(ctx context.Context) error {
				r, err := c.Find(ctx, args[1])
				if err != nil {
					return err
				}
				if permanent {
					return r.DestroyPermanently(ctx)
				}
				return r.MarkAsDeleted(ctx)
			})
		},
	}

	cmd.Flags().BoolVar(&permanent, "permanent", false, "Remove the row instead of marking it deleted")
	return cmd
}

// parseAssignments parses column=value arguments against the table's
// column types.
func parseAssignments(t *schema.TableSchema, args []string) (map[string]any, error) {
	values := make(map[string]any, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid assignment %q (want column=value)", arg)
		}
		col, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("table %s has no column %q", t.Name, name)
		}
		v, err := parseColumnValue(col, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s.%s: %w", t.Name, name, err)
		}
		values[name] = v
	}
	return values, nil
}

func parseColumnValue(col schema.ColumnSchema, raw string) (any, error) {
	if raw == "null" {
		if !col.IsOptional {
			return nil, fmt.Errorf("column is not optional")
		}
		return nil, nil
	}
	switch col.Type {
	case schema.TypeNumber:
		return strconv.ParseFloat(raw, 64)
	case schema.TypeBoolean:
		return strconv.ParseBool(raw)
	default:
		return strings.Trim(raw, `"`), nil
	}
}
