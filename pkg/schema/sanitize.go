package schema

import (
	"math"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapdb/pkg/core"
)

// SanitizedRaw coerces dirty into a valid raw record for t. Unknown keys are
// dropped, missing or mistyped columns take their default, a missing id is
// generated and an invalid status becomes created.
func SanitizedRaw(t *TableSchema, dirty map[string]any) core.RawRecord {
	raw := make(core.RawRecord, len(t.Columns)+4)

	if id, ok := dirty[core.ColumnID].(string); ok && id != "" {
		raw[core.ColumnID] = id
	} else {
		raw[core.ColumnID] = uuid.NewString()
	}

	status := core.StatusCreated
	if s, ok := dirty[core.ColumnStatus].(string); ok && core.RecordStatus(s).IsValid() {
		status = core.RecordStatus(s)
	} else if s, ok := dirty[core.ColumnStatus].(core.RecordStatus); ok && s.IsValid() {
		status = s
	}
	raw[core.ColumnStatus] = string(status)

	if changed, ok := dirty[core.ColumnChanged].(string); ok {
		raw[core.ColumnChanged] = changed
	} else {
		raw[core.ColumnChanged] = ""
	}

	if lm, ok := toNumber(dirty[core.ColumnLastModified]); ok {
		raw[core.ColumnLastModified] = lm
	}

	for _, c := range t.Columns {
		raw[c.Name] = SanitizeValue(c, dirty[c.Name])
	}
	return raw
}

// SanitizeValue coerces v to the type of column c.
func SanitizeValue(c ColumnSchema, v any) any {
	switch c.Type {
	case TypeString:
		if s, ok := v.(string); ok {
			return s
		}
	case TypeNumber:
		if n, ok := toNumber(v); ok {
			return n
		}
	case TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x
		default:
			// Relational stores hand booleans back as 1 and 0.
			if n, ok := toNumber(v); ok && (n == 0 || n == 1) {
				return n == 1
			}
		}
	}
	return c.Default()
}

func toNumber(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
