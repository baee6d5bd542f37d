package schema

import "fmt"

// StepKind identifies a migration step.
type StepKind string

// Migration step kinds.
const (
	StepCreateTable StepKind = "create_table"
	StepAddColumns  StepKind = "add_columns"
)

// MigrationStep is one change applied during a migration.
type MigrationStep struct {
	Kind StepKind
	// Table is set for StepCreateTable.
	Table *TableSchema
	// TableName and Columns are set for StepAddColumns.
	TableName string
	Columns   []ColumnSchema
}

// CreateTable adds a new table.
func CreateTable(t *TableSchema) MigrationStep {
	return MigrationStep{Kind: StepCreateTable, Table: t, TableName: t.Name}
}

// AddColumns adds columns to an existing table. Existing rows take the
// column default.
func AddColumns(table string, cols ...ColumnSchema) MigrationStep {
	return MigrationStep{Kind: StepAddColumns, TableName: table, Columns: cols}
}

// Migration moves a store to ToVersion from the version below it.
type Migration struct {
	ToVersion int
	Steps     []MigrationStep
}

// Migrations is an ordered migration history.
type Migrations struct {
	list []Migration
}

// NewMigrations validates that versions are at least 2 and strictly
// increasing.
func NewMigrations(migrations ...Migration) (*Migrations, error) {
	prev := 1
	for i, m := range migrations {
		if m.ToVersion <= prev {
			if i == 0 {
				return nil, fmt.Errorf("first migration must target a version above 1, got %d", m.ToVersion)
			}
			return nil, fmt.Errorf("migration versions must be strictly increasing: %d after %d", m.ToVersion, prev)
		}
		for _, s := range m.Steps {
			if err := s.validate(); err != nil {
				return nil, fmt.Errorf("migration to %d: %w", m.ToVersion, err)
			}
		}
		prev = m.ToVersion
	}
	return &Migrations{list: append([]Migration(nil), migrations...)}, nil
}

func (s MigrationStep) validate() error {
	switch s.Kind {
	case StepCreateTable:
		if s.Table == nil {
			return fmt.Errorf("create_table without a table")
		}
		return s.Table.validate()
	case StepAddColumns:
		if len(s.Columns) == 0 {
			return fmt.Errorf("add_columns on %s without columns", s.TableName)
		}
		for _, c := range s.Columns {
			if !c.Type.IsValid() {
				return fmt.Errorf("add_columns on %s: column %s has unknown type %q", s.TableName, c.Name, c.Type)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown migration step %q", s.Kind)
}

// MaxVersion returns the highest version the history reaches, or 0.
func (m *Migrations) MaxVersion() int {
	if m == nil || len(m.list) == 0 {
		return 0
	}
	return m.list[len(m.list)-1].ToVersion
}

// StepsBetween returns the steps moving a store from version from to
// version to. ok is false unless every version in (from, to] is covered.
func (m *Migrations) StepsBetween(from, to int) (steps []MigrationStep, ok bool) {
	if m == nil || from >= to {
		return nil, false
	}
	want := from + 1
	for _, mig := range m.list {
		if mig.ToVersion <= from || mig.ToVersion > to {
			continue
		}
		if mig.ToVersion != want {
			return nil, false
		}
		steps = append(steps, mig.Steps...)
		want++
	}
	return steps, want == to+1
}
