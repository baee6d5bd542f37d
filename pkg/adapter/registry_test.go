package adapter

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownAdapterError_Error(t *testing.T) {
	err := &UnknownAdapterError{
		Type:      "fake_db",
		Available: []string{"memory", "sqlite"},
	}

	msg := err.Error()

	assert.Contains(t, msg, "fake_db", "error should mention the unknown type 'fake_db'")
	assert.Contains(t, msg, "leapdb.yaml", "error should mention config file")
}

func TestRegister(t *testing.T) {
	Register("test_adapter_internal", func(core.AdapterConfig, Options) (Adapter, error) { return nil, nil })

	assert.True(t, IsRegistered("test_adapter_internal"), "test_adapter_internal should be registered after Register()")
	assert.Contains(t, ListAdapters(), "test_adapter_internal")

	factory, ok := Get("test_adapter_internal")
	assert.True(t, ok, "Get(test_adapter_internal) should return true after Register()")
	assert.NotNil(t, factory, "Get(test_adapter_internal) should return non-nil factory")
}

func TestNewAdapter(t *testing.T) {
	s := schema.MustAppSchema(1, schema.Table("tasks"))
	Register("test_failing", func(cfg core.AdapterConfig, _ Options) (Adapter, error) {
		return nil, errors.New("cannot open " + cfg.Path)
	})

	tests := []struct {
		name    string
		cfg     core.AdapterConfig
		opts    Options
		wantErr string
	}{
		{
			name:    "empty type",
			cfg:     core.AdapterConfig{},
			opts:    Options{Schema: s},
			wantErr: "adapter type not specified",
		},
		{
			name:    "missing schema",
			cfg:     core.AdapterConfig{Type: "test_failing"},
			wantErr: "adapter test_failing: schema not specified",
		},
		{
			name:    "factory error",
			cfg:     core.AdapterConfig{Type: "test_failing", Path: "x.db"},
			opts:    Options{Schema: s},
			wantErr: "cannot open x.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAdapter(tt.cfg, tt.opts)
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestNewAdapter_Unknown(t *testing.T) {
	s := schema.MustAppSchema(1, schema.Table("tasks"))

	_, err := NewAdapter(core.AdapterConfig{Type: "unknown_db"}, Options{Schema: s})

	var unknown *UnknownAdapterError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "unknown_db", unknown.Type)
}
