package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewResetCommand creates the reset command.
func NewResetCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every record and local value",
		Long: `Reset the database to an empty state with the current schema.
All records and local values are lost, including changes not yet synced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			ctx := cmd.Context()
			db, _, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := db.Write(ctx, db.UnsafeResetDatabase); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Database reset")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}
