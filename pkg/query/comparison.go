package query

import (
	"fmt"
	"math"
	"reflect"
	"slices"
)

// Operator is a comparison operator.
type Operator string

// Comparison operators.
const (
	OpEq       Operator = "eq"
	OpNotEq    Operator = "notEq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpWeakGt   Operator = "weakGt"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpOneOf    Operator = "oneOf"
	OpNotIn    Operator = "notIn"
	OpBetween  Operator = "between"
	OpLike     Operator = "like"
	OpNotLike  Operator = "notLike"
	OpIncludes Operator = "includes"
)

// ColumnRef points the right-hand side of a comparison at another column
// of the same record.
type ColumnRef struct {
	Name string
}

// Column builds a column reference for use as a comparison value.
func Column(name string) ColumnRef {
	return ColumnRef{Name: name}
}

// Comparison is an operator with its right-hand side.
type Comparison struct {
	op     Operator
	value  any
	values []any
	column string
	hasCol bool
}

// Operator returns the comparison operator.
func (c Comparison) Operator() Operator { return c.op }

// Value returns the single right-hand value.
func (c Comparison) Value() any { return c.value }

// Values returns a copy of the right-hand list for oneOf, notIn and between.
func (c Comparison) Values() []any { return slices.Clone(c.values) }

// Column returns the referenced column when the right-hand side is a column.
func (c Comparison) Column() (string, bool) { return c.column, c.hasCol }

func single(op Operator, v any) Comparison {
	if ref, ok := v.(ColumnRef); ok {
		return Comparison{op: op, column: ref.Name, hasCol: true}
	}
	return Comparison{op: op, value: v}
}

// Eq matches equal values. Null equals null.
func Eq(v any) Comparison { return single(OpEq, v) }

// NotEq matches values that are not equal. Null is not equal to any non-null value.
func NotEq(v any) Comparison { return single(OpNotEq, v) }

// Gt matches values greater than v. Nulls never match.
func Gt(v any) Comparison { return single(OpGt, v) }

// Gte matches values greater than or equal to v.
func Gte(v any) Comparison { return single(OpGte, v) }

// WeakGt is Gt that also matches when the right side is null and the left is not.
func WeakGt(v any) Comparison { return single(OpWeakGt, v) }

// Lt matches values less than v.
func Lt(v any) Comparison { return single(OpLt, v) }

// Lte matches values less than or equal to v.
func Lte(v any) Comparison { return single(OpLte, v) }

// OneOf matches values contained in vs.
func OneOf(vs ...any) Comparison {
	return Comparison{op: OpOneOf, values: slices.Clone(vs)}
}

// NotIn matches non-null values not contained in vs.
func NotIn(vs ...any) Comparison {
	return Comparison{op: OpNotIn, values: slices.Clone(vs)}
}

// Between matches values in the closed range [lo, hi].
func Between(lo, hi any) Comparison {
	return Comparison{op: OpBetween, values: []any{lo, hi}}
}

// Like matches strings against a pattern where % is any run and _ is one character.
func Like(pattern string) Comparison { return Comparison{op: OpLike, value: pattern} }

// NotLike matches strings that do not match the pattern.
func NotLike(pattern string) Comparison { return Comparison{op: OpNotLike, value: pattern} }

// Includes matches strings containing substr.
func Includes(substr string) Comparison { return Comparison{op: OpIncludes, value: substr} }

// normalize validates the comparison and returns a copy with canonical values.
func (c Comparison) normalize() (Comparison, error) {
	out := Comparison{op: c.op, column: c.column, hasCol: c.hasCol}

	switch c.op {
	case OpEq, OpNotEq, OpGt, OpGte, OpWeakGt, OpLt, OpLte:
		if c.hasCol {
			if err := CheckName(c.column); err != nil {
				return Comparison{}, err
			}
			return out, nil
		}
		v, err := NormalizeValue(c.value)
		if err != nil {
			return Comparison{}, err
		}
		out.value = v

	case OpOneOf, OpNotIn:
		out.values = make([]any, len(c.values))
		for i, raw := range c.values {
			if raw == nil {
				return Comparison{}, invalid("%s() values must not contain null", c.op)
			}
			v, err := NormalizeValue(raw)
			if err != nil {
				return Comparison{}, err
			}
			out.values[i] = v
		}

	case OpBetween:
		if len(c.values) != 2 {
			return Comparison{}, invalid("between() needs exactly two values")
		}
		out.values = make([]any, 2)
		for i, raw := range c.values {
			if raw == nil {
				return Comparison{}, invalid("between() bounds must not be null")
			}
			v, err := NormalizeValue(raw)
			if err != nil {
				return Comparison{}, err
			}
			out.values[i] = v
		}

	case OpLike, OpNotLike, OpIncludes:
		s, ok := c.value.(string)
		if !ok {
			return Comparison{}, invalid("%s() needs a string, got %T", c.op, c.value)
		}
		out.value = s

	default:
		return Comparison{}, invalid("unknown operator %q", c.op)
	}
	return out, nil
}

// maxExactInt is the largest magnitude an integer keeps as a float64.
const maxExactInt = 1 << 53

// NormalizeValue converts v to the canonical query value domain:
// nil, string, bool or float64. Any numeric kind becomes float64. Integers
// a float64 cannot hold exactly are rejected.
func NormalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool:
		return x, nil
	case float64:
		if math.IsNaN(x) {
			return nil, invalid("NaN is not a valid query value")
		}
		return x, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n > maxExactInt || n < -maxExactInt {
			return nil, invalid("integer %d is too large to compare exactly", n)
		}
		return float64(n), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := rv.Uint()
		if n > maxExactInt {
			return nil, invalid("integer %d is too large to compare exactly", n)
		}
		return float64(n), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) {
			return nil, invalid("NaN is not a valid query value")
		}
		return f, nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	}
	return nil, invalid("unsupported value type %T", v)
}

func (c Comparison) String() string {
	switch {
	case c.hasCol:
		return fmt.Sprintf("%s(column %s)", c.op, c.column)
	case c.values != nil:
		return fmt.Sprintf("%s(%v)", c.op, c.values)
	default:
		return fmt.Sprintf("%s(%v)", c.op, c.value)
	}
}
