package core

// SchemaSignalKind is the structured answer an adapter gives on connect.
type SchemaSignalKind int

// Schema signals.
const (
	SchemaReady SchemaSignalKind = iota
	SchemaNeedsSetup
	SchemaNeedsMigration
)

func (k SchemaSignalKind) String() string {
	switch k {
	case SchemaReady:
		return "ready"
	case SchemaNeedsSetup:
		return "needs_setup"
	case SchemaNeedsMigration:
		return "needs_migration"
	default:
		return "unknown"
	}
}

// SchemaSignal reports the stored schema state of a backend.
// DatabaseVersion is the stored version when Kind is SchemaNeedsMigration.
type SchemaSignal struct {
	Kind            SchemaSignalKind
	DatabaseVersion int
}
