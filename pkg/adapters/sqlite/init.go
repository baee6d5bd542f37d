// Package sqlite provides the relational storage backend for LeapDB,
// built on the pure-Go modernc.org/sqlite driver.
//
// This file registers the adapter with the adapter registry.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/leapdb/pkg/adapters/sqlite"
package sqlite

import (
	"github.com/leapstack-labs/leapdb/pkg/adapter"
	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/dispatcher"
)

func init() {
	adapter.Register("sqlite", func(cfg core.AdapterConfig, opts adapter.Options) (adapter.Adapter, error) {
		return New(cfg, opts)
	})
}

// ClonePolicy is the clone strategy per operation. Batch payloads are
// copied because callers keep mutating their records after a batch.
var ClonePolicy = adapter.ClonePolicy{
	adapter.OpBatch: {Payload: dispatcher.CloneShallow, Return: dispatcher.CloneImmutable},
}

// New opens a driver for cfg and returns its dispatched adapter.
func New(cfg core.AdapterConfig, opts adapter.Options) (*adapter.Dispatched, error) {
	d, err := Open(cfg, opts)
	if err != nil {
		return nil, err
	}
	return adapter.NewDispatched(d, adapter.DispatchedOptions{
		Schema:      opts.Schema,
		Migrations:  opts.Migrations,
		Logger:      opts.Logger,
		Dispatcher:  opts.Dispatcher,
		Synchronous: cfg.Synchronous,
		Policy:      ClonePolicy,
	}), nil
}
