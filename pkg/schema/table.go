package schema

import (
	"fmt"

	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/query"
)

// AssociationKind is the direction of a relation between two tables.
type AssociationKind string

// Association kinds.
const (
	BelongsTo AssociationKind = "belongs_to"
	HasMany   AssociationKind = "has_many"
)

// Association links a table to another one. For BelongsTo, Key is the
// column on the owning table holding the parent id. For HasMany,
// ForeignKey is the column on the child table holding the owner id.
type Association struct {
	Kind       AssociationKind `koanf:"kind"`
	Key        string          `koanf:"key"`
	ForeignKey string          `koanf:"foreign_key"`
}

// BelongsToKey declares a belongs-to association through key.
func BelongsToKey(key string) Association {
	return Association{Kind: BelongsTo, Key: key}
}

// HasManyForeignKey declares a has-many association through foreignKey.
func HasManyForeignKey(foreignKey string) Association {
	return Association{Kind: HasMany, ForeignKey: foreignKey}
}

// TableSchema describes a table: its ordered columns and associations.
type TableSchema struct {
	Name         string
	Columns      []ColumnSchema
	Associations map[string]Association

	byName map[string]int
}

// Table declares a table. Validation happens in NewAppSchema.
func Table(name string, cols ...ColumnSchema) *TableSchema {
	t := &TableSchema{
		Name:         name,
		Columns:      cols,
		Associations: make(map[string]Association),
	}
	t.index()
	return t
}

func (t *TableSchema) index() {
	t.byName = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		t.byName[c.Name] = i
	}
}

// WithAssociation records an association to table and returns t.
func (t *TableSchema) WithAssociation(table string, a Association) *TableSchema {
	if t.Associations == nil {
		t.Associations = make(map[string]Association)
	}
	t.Associations[table] = a
	return t
}

// Column returns the declared column name.
func (t *TableSchema) Column(name string) (ColumnSchema, bool) {
	if t.byName == nil {
		t.index()
	}
	i, ok := t.byName[name]
	if !ok {
		return ColumnSchema{}, false
	}
	return t.Columns[i], true
}

// IsIndexed reports whether lookups on column are backed by an index.
// id and _status are always indexed.
func (t *TableSchema) IsIndexed(column string) bool {
	if column == core.ColumnID || column == core.ColumnStatus {
		return true
	}
	c, ok := t.Column(column)
	return ok && c.IsIndexed
}

// Association returns the association from t to table.
func (t *TableSchema) Association(table string) (Association, bool) {
	a, ok := t.Associations[table]
	return a, ok
}

// IsSingleRowJoin reports whether joining table yields at most one row
// per record of t.
func (t *TableSchema) IsSingleRowJoin(table string) bool {
	a, ok := t.Associations[table]
	return ok && a.Kind == BelongsTo
}

func (t *TableSchema) validate() error {
	if err := query.CheckName(t.Name); err != nil {
		return fmt.Errorf("table %q: %w", t.Name, err)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if core.IsReservedColumn(c.Name) {
			return fmt.Errorf("table %s: column %q is reserved", t.Name, c.Name)
		}
		if err := query.CheckName(c.Name); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
		if !c.Type.IsValid() {
			return fmt.Errorf("table %s: column %s has unknown type %q", t.Name, c.Name, c.Type)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %s: duplicate column %s", t.Name, c.Name)
		}
		seen[c.Name] = true
	}
	for other, a := range t.Associations {
		switch a.Kind {
		case BelongsTo:
			if _, ok := t.Column(a.Key); !ok {
				return fmt.Errorf("table %s: belongs_to %s uses undeclared column %s", t.Name, other, a.Key)
			}
		case HasMany:
			if a.ForeignKey == "" {
				return fmt.Errorf("table %s: has_many %s needs a foreign key", t.Name, other)
			}
		default:
			return fmt.Errorf("table %s: unknown association kind %q", t.Name, a.Kind)
		}
	}
	return nil
}
