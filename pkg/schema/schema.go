package schema

import (
	"fmt"
	"slices"
)

// AppSchema is the full set of tables at a schema version.
type AppSchema struct {
	Version int
	tables  map[string]*TableSchema
	order   []string
}

// NewAppSchema validates and assembles a schema.
func NewAppSchema(version int, tables ...*TableSchema) (*AppSchema, error) {
	if version < 1 {
		return nil, fmt.Errorf("schema version must be at least 1, got %d", version)
	}
	s := &AppSchema{Version: version, tables: make(map[string]*TableSchema, len(tables))}
	for _, t := range tables {
		if t == nil {
			return nil, fmt.Errorf("nil table in schema")
		}
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, dup := s.tables[t.Name]; dup {
			return nil, fmt.Errorf("duplicate table %s", t.Name)
		}
		s.tables[t.Name] = t
		s.order = append(s.order, t.Name)
	}
	for _, t := range tables {
		for other, a := range t.Associations {
			target, ok := s.tables[other]
			if !ok {
				return nil, fmt.Errorf("table %s: association to unknown table %s", t.Name, other)
			}
			if a.Kind == HasMany {
				if _, ok := target.Column(a.ForeignKey); !ok {
					return nil, fmt.Errorf("table %s: has_many %s uses undeclared column %s.%s", t.Name, other, other, a.ForeignKey)
				}
			}
		}
	}
	return s, nil
}

// MustAppSchema is like NewAppSchema but panics on error.
func MustAppSchema(version int, tables ...*TableSchema) *AppSchema {
	s, err := NewAppSchema(version, tables...)
	if err != nil {
		panic(err)
	}
	return s
}

// Table returns the named table.
func (s *AppSchema) Table(name string) (*TableSchema, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// TableNames returns table names in declaration order.
func (s *AppSchema) TableNames() []string {
	return slices.Clone(s.order)
}

// Tables returns the tables in declaration order.
func (s *AppSchema) Tables() []*TableSchema {
	out := make([]*TableSchema, len(s.order))
	for i, name := range s.order {
		out[i] = s.tables[name]
	}
	return out
}
