package commands

import (
	"strings"

	"github.com/spf13/cobra"
)

// NewTablesCommand creates the tables command.
func NewTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables declared in the schema",
		Long:  `List the schema tables with their columns and the number of live records.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, cfg, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			cols := []string{"table", "columns", "indexed", "records"}
			rows := make([]map[string]any, 0, len(db.Schema().Tables()))
			for _, t := range db.Schema().Tables() {
				var names, indexed []string
				for _, c := range t.Columns {
					names = append(names, c.Name+" "+string(c.Type))
					if c.IsIndexed {
						indexed = append(indexed, c.Name)
					}
				}
				n, err := db.Get(t.Name).Query().FetchCount(ctx)
				if err != nil {
					return err
				}
				rows = append(rows, map[string]any{
					"table":   t.Name,
					"columns": strings.Join(names, ", "),
					"indexed": strings.Join(indexed, ", "),
					"records": n,
				})
			}
			return renderRows(cmd.OutOrStdout(), cols, rows, cfg.Output)
		},
	}
}
