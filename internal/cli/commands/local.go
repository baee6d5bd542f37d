package commands

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// NewLocalCommand creates the local command group.
func NewLocalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Read and write local key/value storage",
		Long: `Local storage holds values that stay on this device and are never
synced. Values are stored as JSON.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print a local value as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				db, _, err := openDatabase(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()

				v, ok, err := db.Local().Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("local key %q not found", args[0])
				}
				return renderJSON(cmd.OutOrStdout(), v)
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Store a local value",
			Long: `Store a local value. The value is parsed as JSON; anything that is
not valid JSON is stored as a string.`,
			Example: `  leapdb local set theme dark
  leapdb local set window '{"width": 800, "height": 600}'`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				db, _, err := openDatabase(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()

				return db.Local().Set(cmd.Context(), args[0], parseLocalValue(args[1]))
			},
		},
		&cobra.Command{
			Use:   "remove <key>",
			Short: "Remove a local value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				db, _, err := openDatabase(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()

				return db.Local().Remove(cmd.Context(), args[0])
			},
		},
	)

	return cmd
}

func parseLocalValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
