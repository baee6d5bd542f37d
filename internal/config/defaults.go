package config

// Default configuration values.
const (
	DefaultAdapterType = "sqlite"
	DefaultPath        = "leapdb.db"
	DefaultLogLevel    = "warn"
	DefaultOutput      = "table"
)

func defaults() map[string]any {
	return map[string]any{
		"adapter.type":        DefaultAdapterType,
		"adapter.path":        DefaultPath,
		"adapter.synchronous": false,
		"dev_mode":            false,
		"log_level":           DefaultLogLevel,
		"output":              DefaultOutput,
	}
}
