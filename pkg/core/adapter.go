package core

// AdapterConfig holds configuration for opening a storage backend.
type AdapterConfig struct {
	Type        string
	Path        string
	Synchronous bool
	Params      map[string]any
}
