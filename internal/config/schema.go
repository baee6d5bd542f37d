package config

import (
	"fmt"

	"github.com/leapstack-labs/leapdb/pkg/schema"
)

// SchemaConfig declares the app schema and its migration history.
type SchemaConfig struct {
	Version    int               `koanf:"version"`
	Tables     []TableConfig     `koanf:"tables"`
	Migrations []MigrationConfig `koanf:"migrations"`
}

// TableConfig declares one table.
type TableConfig struct {
	Name         string                        `koanf:"name"`
	Columns      []schema.ColumnSchema         `koanf:"columns"`
	Associations map[string]schema.Association `koanf:"associations"`
}

// MigrationConfig declares the steps to reach ToVersion.
type MigrationConfig struct {
	ToVersion int          `koanf:"to_version"`
	Steps     []StepConfig `koanf:"steps"`
}

// StepConfig is one migration step. A create_table step takes its columns
// from Columns.
type StepConfig struct {
	Kind    schema.StepKind       `koanf:"kind"`
	Table   string                `koanf:"table"`
	Columns []schema.ColumnSchema `koanf:"columns"`
}

func (t TableConfig) build() *schema.TableSchema {
	ts := schema.Table(t.Name, t.Columns...)
	for other, a := range t.Associations {
		ts.WithAssociation(other, a)
	}
	return ts
}

// AppSchema builds the declared schema and migrations. Migrations are nil
// when none are declared.
func (c *Config) AppSchema() (*schema.AppSchema, *schema.Migrations, error) {
	if len(c.Schema.Tables) == 0 {
		return nil, nil, fmt.Errorf("schema declares no tables")
	}
	tables := make([]*schema.TableSchema, len(c.Schema.Tables))
	for i, t := range c.Schema.Tables {
		tables[i] = t.build()
	}
	s, err := schema.NewAppSchema(c.Schema.Version, tables...)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid schema: %w", err)
	}
	if len(c.Schema.Migrations) == 0 {
		return s, nil, nil
	}

	list := make([]schema.Migration, len(c.Schema.Migrations))
	for i, m := range c.Schema.Migrations {
		steps := make([]schema.MigrationStep, len(m.Steps))
		for j, st := range m.Steps {
			switch st.Kind {
			case schema.StepCreateTable:
				steps[j] = schema.CreateTable(schema.Table(st.Table, st.Columns...))
			case schema.StepAddColumns:
				steps[j] = schema.AddColumns(st.Table, st.Columns...)
			default:
				return nil, nil, fmt.Errorf("migration to %d: unknown step kind %q", m.ToVersion, st.Kind)
			}
		}
		list[i] = schema.Migration{ToVersion: m.ToVersion, Steps: steps}
	}
	migrations, err := schema.NewMigrations(list...)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid migrations: %w", err)
	}
	return s, migrations, nil
}
