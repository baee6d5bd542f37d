package schema

import "fmt"

// ColumnType is the storage type of a column.
type ColumnType string

// Column types.
const (
	TypeString  ColumnType = "string"
	TypeNumber  ColumnType = "number"
	TypeBoolean ColumnType = "boolean"
)

// IsValid reports whether t is a known column type.
func (t ColumnType) IsValid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean:
		return true
	}
	return false
}

// ColumnSchema describes one user column.
type ColumnSchema struct {
	Name       string     `koanf:"name"`
	Type       ColumnType `koanf:"type"`
	IsOptional bool       `koanf:"optional"`
	IsIndexed  bool       `koanf:"indexed"`
}

// StringColumn declares a required string column.
func StringColumn(name string) ColumnSchema {
	return ColumnSchema{Name: name, Type: TypeString}
}

// NumberColumn declares a required number column.
func NumberColumn(name string) ColumnSchema {
	return ColumnSchema{Name: name, Type: TypeNumber}
}

// BoolColumn declares a required boolean column.
func BoolColumn(name string) ColumnSchema {
	return ColumnSchema{Name: name, Type: TypeBoolean}
}

// Optional returns a copy of c that accepts null.
func (c ColumnSchema) Optional() ColumnSchema {
	c.IsOptional = true
	return c
}

// Indexed returns a copy of c that is indexed by the relational store.
func (c ColumnSchema) Indexed() ColumnSchema {
	c.IsIndexed = true
	return c
}

// Default is the value a missing or mistyped column takes.
func (c ColumnSchema) Default() any {
	if c.IsOptional {
		return nil
	}
	switch c.Type {
	case TypeString:
		return ""
	case TypeNumber:
		return 0.0
	case TypeBoolean:
		return false
	}
	return nil
}

func (c ColumnSchema) String() string {
	s := fmt.Sprintf("%s %s", c.Name, c.Type)
	if c.IsOptional {
		s += " optional"
	}
	if c.IsIndexed {
		s += " indexed"
	}
	return s
}
