package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/leapdb/pkg/core"
)

// ErrNoConnection is returned for calls on a tag that has no connection.
var ErrNoConnection = errors.New("no connection for tag")

// ConnectionTag identifies a logical database handle.
type ConnectionTag uint64

// ConnectionState is the setup phase of a connection.
type ConnectionState int

// Connection states.
const (
	StateUninitialized ConnectionState = iota
	StateWaiting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWaiting:
		return "waiting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Options configures a connection.
type Options struct {
	// Synchronous runs calls in the calling goroutines instead of a worker.
	Synchronous bool
	// Boundary overrides the worker boundary created for asynchronous connections.
	Boundary func(Handler) Boundary
}

type connection struct {
	state     ConnectionState
	transport transport
	waiting   []*call
}

// Dispatcher owns the connection table. Only the dispatcher mutates it.
type Dispatcher struct {
	logger *slog.Logger

	mu      sync.Mutex
	nextTag ConnectionTag
	nextID  uint64
	conns   map[ConnectionTag]*connection
}

// New creates a Dispatcher. A nil logger discards output.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		logger: logger,
		conns:  make(map[ConnectionTag]*connection),
	}
}

// Open registers a connection to handler in the uninitialized state.
func (d *Dispatcher) Open(handler Handler, opts Options) ConnectionTag {
	var t transport
	switch {
	case opts.Synchronous:
		t = &syncTransport{handler: handler}
	case opts.Boundary != nil:
		t = newChannel(opts.Boundary(handler), d.logger)
	default:
		t = newChannel(NewWorker(handler, d.logger), d.logger)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextTag++
	tag := d.nextTag
	d.conns[tag] = &connection{state: StateUninitialized, transport: t}
	d.logger.Debug("connection opened", "tag", tag, "synchronous", opts.Synchronous)
	return tag
}

// State returns the setup phase of a connection.
func (d *Dispatcher) State(tag ConnectionTag) (ConnectionState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conn, ok := d.conns[tag]
	if !ok {
		return 0, fmt.Errorf("%w %d", ErrNoConnection, tag)
	}
	return conn.state, nil
}

// Initialize sends op past the waiting gate. Its result must be a
// core.SchemaSignal: SchemaReady connects, anything else leaves the
// connection waiting for SetUp.
func (d *Dispatcher) Initialize(ctx context.Context, tag ConnectionTag, op string, args ...any) (core.SchemaSignal, error) {
	v, err := d.direct(ctx, tag, op, args)
	if err != nil {
		return core.SchemaSignal{}, err
	}
	signal, ok := v.(core.SchemaSignal)
	if !ok {
		return core.SchemaSignal{}, fmt.Errorf("%s returned %T, want core.SchemaSignal", op, v)
	}

	d.mu.Lock()
	conn, ok := d.conns[tag]
	if !ok {
		d.mu.Unlock()
		return signal, fmt.Errorf("%w %d", ErrNoConnection, tag)
	}
	if signal.Kind == core.SchemaReady {
		d.connect(tag, conn)
	} else {
		conn.state = StateWaiting
		d.logger.Debug("connection waiting for setup", "tag", tag, "signal", signal.Kind.String())
	}
	d.mu.Unlock()

	conn.transport.run()
	return signal, nil
}

// SetUp runs a schema setup op past the waiting gate, then connects and
// flushes the waiting queue in arrival order.
func (d *Dispatcher) SetUp(ctx context.Context, tag ConnectionTag, op string, args ...any) error {
	if _, err := d.direct(ctx, tag, op, args); err != nil {
		return err
	}

	d.mu.Lock()
	conn, ok := d.conns[tag]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w %d", ErrNoConnection, tag)
	}
	d.connect(tag, conn)
	d.mu.Unlock()

	conn.transport.run()
	return nil
}

// connect marks conn connected and submits its waiting calls. Callers hold mu,
// so no later call can be submitted ahead of the flushed ones. The transport
// runs them once mu is released.
func (d *Dispatcher) connect(tag ConnectionTag, conn *connection) {
	conn.state = StateConnected
	waiting := conn.waiting
	conn.waiting = nil
	d.logger.Debug("connection ready", "tag", tag, "flushed", len(waiting))
	for _, c := range waiting {
		conn.transport.submit(c)
	}
}

// Call sends op to the connection behind tag. Calls made before the
// connection is ready wait in a FIFO queue. If ctx ends first Call returns
// ctx.Err(), but the operation still runs to completion.
func (d *Dispatcher) Call(ctx context.Context, tag ConnectionTag, op string, args []any, clone, returnClone CloneMethod) (any, error) {
	d.mu.Lock()
	conn, ok := d.conns[tag]
	if !ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w %d", ErrNoConnection, tag)
	}
	c := newCall(d.request(op, args, clone, returnClone))
	if conn.state != StateConnected {
		conn.waiting = append(conn.waiting, c)
		d.mu.Unlock()
		return wait(ctx, c)
	}
	conn.transport.submit(c)
	d.mu.Unlock()

	conn.transport.run()
	return wait(ctx, c)
}

// direct submits op regardless of the connection state.
func (d *Dispatcher) direct(ctx context.Context, tag ConnectionTag, op string, args []any) (any, error) {
	d.mu.Lock()
	conn, ok := d.conns[tag]
	if !ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w %d", ErrNoConnection, tag)
	}
	c := newCall(d.request(op, args, CloneImmutable, CloneImmutable))
	conn.transport.submit(c)
	d.mu.Unlock()

	conn.transport.run()
	return wait(ctx, c)
}

// request stamps a new correlation id. Callers hold mu.
func (d *Dispatcher) request(op string, args []any, clone, returnClone CloneMethod) Request {
	d.nextID++
	return Request{
		ID:                d.nextID,
		Type:              op,
		Payload:           args,
		CloneMethod:       clone,
		ReturnCloneMethod: returnClone,
	}
}

func wait(ctx context.Context, c *call) (any, error) {
	select {
	case res := <-c.done:
		return res.Value, res.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tears down the connection. Calls still waiting for setup fail with
// ErrConnectionClosed; later calls fail with ErrNoConnection.
func (d *Dispatcher) Close(tag ConnectionTag) error {
	d.mu.Lock()
	conn, ok := d.conns[tag]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w %d", ErrNoConnection, tag)
	}
	delete(d.conns, tag)
	waiting := conn.waiting
	conn.waiting = nil
	d.mu.Unlock()

	for _, c := range waiting {
		c.done <- Result{Error: ErrConnectionClosed}
	}
	d.logger.Debug("connection closed", "tag", tag)
	return conn.transport.close()
}
