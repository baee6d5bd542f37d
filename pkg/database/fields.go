package database

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/leapstack-labs/leapdb/pkg/query"
	"github.com/leapstack-labs/leapdb/pkg/schema"
)

// Field maps a typed accessor to a column. Models declare their fields as
// package-level descriptors and check them against the table once with
// Collection.CheckFields.
type Field interface {
	check(t *schema.TableSchema) error
}

func checkColumn(t *schema.TableSchema, column string, want schema.ColumnType, optional bool) error {
	col, ok := t.Column(column)
	if !ok {
		return fmt.Errorf("table %s has no column %q", t.Name, column)
	}
	if col.Type != want {
		return fmt.Errorf("column %s.%s is %s, want %s", t.Name, column, col.Type, want)
	}
	if optional && !col.IsOptional {
		return fmt.Errorf("column %s.%s is not optional", t.Name, column)
	}
	return nil
}

// CheckFields verifies that fields match the columns of this collection.
func (c *Collection) CheckFields(fields ...Field) error {
	for _, f := range fields {
		if err := f.check(c.schema); err != nil {
			return err
		}
	}
	return nil
}

// StringField is a required string column.
type StringField struct{ Column string }

func (f StringField) check(t *schema.TableSchema) error {
	return checkColumn(t, f.Column, schema.TypeString, false)
}

func (f StringField) Get(r *Record) string {
	s, _ := r.Get(f.Column).(string)
	return s
}

func (f StringField) Set(r *Record, v string) { r.Set(f.Column, v) }

// OptionalStringField is a nullable string column.
type OptionalStringField struct{ Column string }

func (f OptionalStringField) check(t *schema.TableSchema) error {
	return checkColumn(t, f.Column, schema.TypeString, true)
}

// Get returns nil for a null value.
func (f OptionalStringField) Get(r *Record) *string {
	s, ok := r.Get(f.Column).(string)
	if !ok {
		return nil
	}
	return &s
}

func (f OptionalStringField) Set(r *Record, v *string) {
	if v == nil {
		r.Set(f.Column, nil)
		return
	}
	r.Set(f.Column, *v)
}

// NumberField is a number column.
type NumberField struct{ Column string }

func (f NumberField) check(t *schema.TableSchema) error {
	return checkColumn(t, f.Column, schema.TypeNumber, false)
}

func (f NumberField) Get(r *Record) float64 {
	n, _ := r.Get(f.Column).(float64)
	return n
}

func (f NumberField) Set(r *Record, v float64) { r.Set(f.Column, v) }

// BoolField is a boolean column.
type BoolField struct{ Column string }

func (f BoolField) check(t *schema.TableSchema) error {
	return checkColumn(t, f.Column, schema.TypeBoolean, false)
}

func (f BoolField) Get(r *Record) bool {
	b, _ := r.Get(f.Column).(bool)
	return b
}

func (f BoolField) Set(r *Record, v bool) { r.Set(f.Column, v) }

// DateField stores a time as epoch milliseconds in a number column.
type DateField struct{ Column string }

func (f DateField) check(t *schema.TableSchema) error {
	return checkColumn(t, f.Column, schema.TypeNumber, false)
}

// Get returns the zero time for a null value.
func (f DateField) Get(r *Record) time.Time {
	ms, ok := r.Get(f.Column).(float64)
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms))
}

// Set stores the zero time as null, or 0 on a required column.
func (f DateField) Set(r *Record, v time.Time) {
	if v.IsZero() {
		r.Set(f.Column, nil)
		return
	}
	r.Set(f.Column, float64(v.UnixMilli()))
}

// JSONField stores a value of T as JSON in a string column.
type JSONField[T any] struct{ Column string }

func (f JSONField[T]) check(t *schema.TableSchema) error {
	return checkColumn(t, f.Column, schema.TypeString, false)
}

// Get decodes the column. An empty column decodes to the zero value.
func (f JSONField[T]) Get(r *Record) (T, error) {
	var v T
	s, _ := r.Get(f.Column).(string)
	if s == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return v, fmt.Errorf("failed to decode %s.%s: %w", r.Table(), f.Column, err)
	}
	return v, nil
}

func (f JSONField[T]) Set(r *Record, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s.%s: %w", r.Table(), f.Column, err)
	}
	r.Set(f.Column, string(b))
	return nil
}

// Relation is a belongs-to field: Column holds the id of a Table record.
type Relation struct {
	Table  string
	Column string
}

func (f Relation) check(t *schema.TableSchema) error {
	if err := checkColumn(t, f.Column, schema.TypeString, false); err != nil {
		return err
	}
	a, ok := t.Association(f.Table)
	if !ok || a.Kind != schema.BelongsTo || a.Key != f.Column {
		return fmt.Errorf("table %s has no belongs_to association to %s on %q", t.Name, f.Table, f.Column)
	}
	return nil
}

// ID returns the related id, or "" when unset.
func (f Relation) ID(r *Record) string {
	id, _ := r.Get(f.Column).(string)
	return id
}

// Set points the relation at parent.
func (f Relation) Set(r *Record, parent *Record) {
	if parent == nil {
		r.Set(f.Column, nil)
		return
	}
	r.Set(f.Column, parent.ID())
}

// Fetch returns the related record, or nil when unset.
func (f Relation) Fetch(ctx context.Context, r *Record) (*Record, error) {
	id := f.ID(r)
	if id == "" {
		return nil, nil
	}
	c, err := r.collection.db.Collection(f.Table)
	if err != nil {
		return nil, err
	}
	return c.Find(ctx, id)
}

// Children is a has-many field: records of Table whose ForeignKey holds
// the id of the owner.
type Children struct {
	Table      string
	ForeignKey string
}

func (f Children) check(t *schema.TableSchema) error {
	a, ok := t.Association(f.Table)
	if !ok || a.Kind != schema.HasMany || a.ForeignKey != f.ForeignKey {
		return fmt.Errorf("table %s has no has_many association to %s on %q", t.Name, f.Table, f.ForeignKey)
	}
	return nil
}

// Query returns the children of r.
func (f Children) Query(r *Record) *Query {
	return r.collection.db.Get(f.Table).Query(query.Where(f.ForeignKey, r.ID()))
}
