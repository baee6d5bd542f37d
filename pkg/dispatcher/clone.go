package dispatcher

import (
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/query"
)

// CloneMethod selects how a payload is copied across the boundary.
type CloneMethod int

const (
	// CloneShallow copies slices recursively and maps one level deep.
	// Use it when the receiver does not mutate nested values.
	CloneShallow CloneMethod = iota
	// CloneImmutable skips copying. The sender promises not to mutate.
	CloneImmutable
	// CloneDeep copies everything through a CBOR round trip.
	CloneDeep
)

func (m CloneMethod) String() string {
	switch m {
	case CloneShallow:
		return "shallow"
	case CloneImmutable:
		return "immutable"
	case CloneDeep:
		return "deep"
	default:
		return fmt.Sprintf("CloneMethod(%d)", int(m))
	}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Clone copies v according to method.
func Clone(v any, method CloneMethod) (any, error) {
	switch method {
	case CloneImmutable:
		return v, nil
	case CloneShallow:
		return cloneShallow(v), nil
	case CloneDeep:
		return cloneDeep(v)
	}
	return nil, fmt.Errorf("unknown clone method %d", method)
}

func cloneShallow(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneShallow(e)
		}
		return out
	case core.RawRecord:
		return x.Clone()
	case map[string]any:
		return maps.Clone(x)
	case []string:
		return slices.Clone(x)
	case core.BatchOperation:
		x.Raw = x.Raw.Clone()
		return x
	case []core.BatchOperation:
		out := make([]core.BatchOperation, len(x))
		for i, op := range x {
			op.Raw = op.Raw.Clone()
			out[i] = op
		}
		return out
	case *core.Row:
		if x == nil {
			return x
		}
		row := core.Row{ID: x.ID, Raw: x.Raw.Clone()}
		return &row
	case []core.Row:
		out := make([]core.Row, len(x))
		for i, row := range x {
			out[i] = core.Row{ID: row.ID, Raw: row.Raw.Clone()}
		}
		return out
	}
	return v
}

func cloneDeep(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int, float64, *query.Description:
		// Scalars and built queries are immutable.
		return v, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			c, err := cloneDeep(e)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case *core.Row:
		if x == nil {
			return x, nil
		}
	}

	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Func {
		return nil, fmt.Errorf("cannot deep clone %T", v)
	}
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T for deep clone: %w", v, err)
	}
	ptr := reflect.New(t)
	if err := decMode.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("failed to decode %T for deep clone: %w", v, err)
	}
	return ptr.Elem().Interface(), nil
}
