package memory

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/leapdb/pkg/adapter"
	"github.com/leapstack-labs/leapdb/pkg/dispatcher"
)

// Params holds document store configuration.
// Parsed from core.AdapterConfig.Params using mapstructure.
type Params struct {
	// Clone selects how records cross the dispatcher: "shallow" (default)
	// copies each record map, "deep" copies nested values too.
	Clone string `mapstructure:"clone"`
}

// ParseParams decodes raw adapter params.
func ParseParams(raw map[string]any) (Params, error) {
	p := Params{Clone: "shallow"}
	if len(raw) == 0 {
		return p, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return p, fmt.Errorf("failed to create params decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return p, fmt.Errorf("failed to parse memory params: %w", err)
	}
	p.Clone = strings.ToLower(p.Clone)
	if p.Clone != "shallow" && p.Clone != "deep" {
		return p, fmt.Errorf("unknown clone mode %q", p.Clone)
	}
	return p, nil
}

// policy returns the clone policy for p.
func (p Params) policy() adapter.ClonePolicy {
	if p.Clone == "deep" {
		return DeepClonePolicy
	}
	return ClonePolicy
}

// DeepClonePolicy copies records and everything they reference on the way
// in and out of the store.
var DeepClonePolicy = adapter.ClonePolicy{
	adapter.OpFind:  {Payload: dispatcher.CloneImmutable, Return: dispatcher.CloneDeep},
	adapter.OpQuery: {Payload: dispatcher.CloneImmutable, Return: dispatcher.CloneDeep},
	adapter.OpBatch: {Payload: dispatcher.CloneDeep, Return: dispatcher.CloneImmutable},
}
