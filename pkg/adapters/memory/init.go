// Package memory provides the document storage backend for LeapDB: tables
// of records held in process, evaluated with the reactive matcher, and
// optionally persisted to a CBOR snapshot file.
//
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/leapdb/pkg/adapters/memory"
package memory

import (
	"github.com/leapstack-labs/leapdb/pkg/adapter"
	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/dispatcher"
)

func init() {
	adapter.Register("memory", func(cfg core.AdapterConfig, opts adapter.Options) (adapter.Adapter, error) {
		return New(cfg, opts)
	})
}

// ClonePolicy is the clone strategy per operation. The store hands out its
// own maps, so find and query results are copied on the way out.
var ClonePolicy = adapter.ClonePolicy{
	adapter.OpFind:  {Payload: dispatcher.CloneImmutable, Return: dispatcher.CloneShallow},
	adapter.OpQuery: {Payload: dispatcher.CloneImmutable, Return: dispatcher.CloneShallow},
	adapter.OpBatch: {Payload: dispatcher.CloneShallow, Return: dispatcher.CloneImmutable},
}

// New opens a driver for cfg and returns its dispatched adapter.
func New(cfg core.AdapterConfig, opts adapter.Options) (*adapter.Dispatched, error) {
	params, err := ParseParams(cfg.Params)
	if err != nil {
		return nil, err
	}
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
		Policy:      params.policy(),
	}), nil
}
