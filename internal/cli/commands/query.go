package commands

import (
	"fmt"

	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/database"
	"github.com/leapstack-labs/leapdb/pkg/query"
	"github.com/spf13/cobra"
)

// QueryOptions holds options for the query and count commands.
type QueryOptions struct {
	Where  []string
	Sort   []string
	Limit  int
	Offset int
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "List records of a table",
		Long: `List the records of a table that are not marked as deleted.

Filters use the form column<op>value where op is one of
=, !=, >, >=, <, <= or ~ (LIKE pattern). Multiple filters are ANDed.`,
		Example: `  # All tasks
  leapdb query tasks

  # Open tasks by priority
  leapdb query tasks --where done=false --sort priority:desc

  # Paginate
  leapdb query tasks --limit 10 --offset 20 -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args[0], opts)
		},
	}

	addFilterFlags(cmd, opts)
	cmd.Flags().StringSliceVar(&opts.Sort, "sort", nil, "Sort by column[:asc|desc] (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of records")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Records to skip (requires --limit)")

	return cmd
}

// NewCountCommand creates the count command.
func NewCountCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:     "count <table>",
		Short:   "Count records of a table",
		Example: `  leapdb count tasks --where done=true`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			q, err := buildQuery(db, args[0], opts)
			if err != nil {
				return err
			}
			n, err := q.FetchCount(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	addFilterFlags(cmd, opts)
	return cmd
}

func addFilterFlags(cmd *cobra.Command, opts *QueryOptions) {
	cmd.Flags().StringArrayVarP(&opts.Where, "where", "w", nil, "Filter as column<op>value (repeatable)")
}

func runQuery(cmd *cobra.Command, table string, opts *QueryOptions) error {
	ctx := cmd.Context()
	db, cfg, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	q, err := buildQuery(db, table, opts)
	if err != nil {
		return err
	}
	records, err := q.Fetch(ctx)
	if err != nil {
		return err
	}

	cols := recordColumns(q.Collection())
	rows := make([]map[string]any, len(records))
	for i, r := range records {
		rows[i] = r.Raw()
	}
	return renderRows(cmd.OutOrStdout(), cols, rows, cfg.Output)
}

func buildQuery(db *database.Database, table string, opts *QueryOptions) (*database.Query, error) {
	c, err := db.Collection(table)
	if err != nil {
		return nil, err
	}

	clauses := make([]query.Clause, 0, len(opts.Where)+len(opts.Sort)+2)
	for _, w := range opts.Where {
		clause, err := ParseWhere(w)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	for _, s := range opts.Sort {
		clause, err := ParseSort(s)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	if opts.Limit > 0 {
		clauses = append(clauses, query.Take(opts.Limit))
	}
	if opts.Offset > 0 {
		clauses = append(clauses, query.Skip(opts.Offset))
	}

	q := c.Query(clauses...)
	if err := q.Err(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	return q, nil
}

func recordColumns(c *database.Collection) []string {
	t := c.Schema()
	cols := make([]string, 0, len(t.Columns)+2)
	cols = append(cols, core.ColumnID)
	for _, col := range t.Columns {
		cols = append(cols, col.Name)
	}
	return append(cols, core.ColumnStatus)
}
