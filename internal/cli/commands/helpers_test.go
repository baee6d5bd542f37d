package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapdb/internal/config"
	"github.com/leapstack-labs/leapdb/pkg/schema"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/leapdb/pkg/adapters/memory"
	_ "github.com/leapstack-labs/leapdb/pkg/adapters/sqlite"
)

// newTestConfig returns a config backed by a fresh store file so that
// successive commands see each other's writes.
func newTestConfig(t *testing.T, adapterType string) *config.Config {
	t.Helper()
	return &config.Config{
		Adapter: config.AdapterConfig{
			Type:        adapterType,
			Path:        filepath.Join(t.TempDir(), "test.db"),
			Synchronous: true,
		},
		DevMode:  true,
		LogLevel: config.DefaultLogLevel,
		Output:   "json",
		Schema: config.SchemaConfig{
			Version: 1,
			Tables: []config.TableConfig{
				{
					Name: "tasks",
					Columns: []schema.ColumnSchema{
						schema.StringColumn("title"),
						schema.NumberColumn("priority").Indexed(),
						schema.BoolColumn("done"),
						schema.StringColumn("note").Optional(),
					},
				},
			},
		},
	}
}

// run executes cmd with cfg in its context and returns the trimmed output.
func run(t *testing.T, cfg *config.Config, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(WithConfig(context.Background(), cfg))
	return strings.TrimSpace(buf.String()), err
}

func mustRun(t *testing.T, cfg *config.Config, cmd *cobra.Command, args ...string) string {
	t.Helper()
	out, err := run(t, cfg, cmd, args...)
	require.NoError(t, err, out)
	return out
}
