// Package config loads the configuration used to open a LeapDB database:
// the adapter to use, the app schema and the CLI preferences. Values are
// layered from defaults, leapdb.yaml, LEAPDB_ environment variables and
// command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapdb/pkg/adapter"
	"github.com/leapstack-labs/leapdb/pkg/core"
)

// Config is the full configuration.
type Config struct {
	Adapter  AdapterConfig `koanf:"adapter"`
	DevMode  bool          `koanf:"dev_mode"`
	LogLevel string        `koanf:"log_level"`
	Output   string        `koanf:"output"`
	Schema   SchemaConfig  `koanf:"schema"`

	// FileUsed is the config file that was loaded, if any.
	FileUsed string `koanf:"-"`
}

// AdapterConfig selects and configures the storage backend.
type AdapterConfig struct {
	Type        string `koanf:"type"` // sqlite, memory
	Path        string `koanf:"path"`
	Synchronous bool   `koanf:"synchronous"`

	// Params holds adapter-specific settings, e.g. the sqlite journal mode.
	Params map[string]any `koanf:"params"`
}

// Core converts the section into the adapter factory config.
func (a AdapterConfig) Core() core.AdapterConfig {
	return core.AdapterConfig{
		Type:        strings.ToLower(a.Type),
		Path:        a.Path,
		Synchronous: a.Synchronous,
		Params:      a.Params,
	}
}

// Validate checks the adapter type against the registry.
func (a AdapterConfig) Validate() error {
	if a.Type == "" {
		return fmt.Errorf("adapter type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(a.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      a.Type,
			Available: adapter.ListAdapters(),
		}
	}
	return nil
}

// Output formats.
var outputFormats = []string{"table", "json", "csv", "markdown"}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Adapter.Validate(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	valid := false
	for _, f := range outputFormats {
		if c.Output == f {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown output format %q (want one of %s)", c.Output, strings.Join(outputFormats, ", "))
	}
	return nil
}

// Level parses the log level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
