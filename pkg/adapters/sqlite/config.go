package sqlite

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds SQLite-specific configuration.
// Parsed from core.AdapterConfig.Params using mapstructure.
type Params struct {
	// JournalMode is applied with PRAGMA journal_mode (e.g. "wal", "delete").
	JournalMode string `mapstructure:"journal_mode"`

	// BusyTimeout in milliseconds, applied with PRAGMA busy_timeout.
	BusyTimeout int `mapstructure:"busy_timeout"`
}

var journalModes = map[string]bool{
	"delete": true, "truncate": true, "persist": true,
	"memory": true, "wal": true, "off": true,
}

// ParseParams decodes raw adapter params.
func ParseParams(raw map[string]any) (Params, error) {
	var p Params
	if len(raw) == 0 {
		return p, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return p, fmt.Errorf("failed to create params decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return p, fmt.Errorf("failed to parse sqlite params: %w", err)
	}
	p.JournalMode = strings.ToLower(p.JournalMode)
	if p.JournalMode != "" && !journalModes[p.JournalMode] {
		return p, fmt.Errorf("unknown journal_mode %q", p.JournalMode)
	}
	return p, nil
}

// pragmas returns the statements applying p.
func (p Params) pragmas() []string {
	var out []string
	if p.JournalMode != "" {
		out = append(out, fmt.Sprintf("PRAGMA journal_mode = %s", p.JournalMode))
	}
	if p.BusyTimeout > 0 {
		out = append(out, fmt.Sprintf("PRAGMA busy_timeout = %d", p.BusyTimeout))
	}
	return out
}
