package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/dispatcher"
	"github.com/leapstack-labs/leapdb/pkg/query"
	"github.com/leapstack-labs/leapdb/pkg/schema"
)

// ClonePair is the pair of clone strategies used for one operation.
type ClonePair struct {
	Payload dispatcher.CloneMethod
	Return  dispatcher.CloneMethod
}

// ClonePolicy maps operation names to clone strategies. Operations missing
// from the policy use CloneImmutable both ways.
type ClonePolicy map[string]ClonePair

func (p ClonePolicy) lookup(op string) ClonePair {
	if pair, ok := p[op]; ok {
		return pair
	}
	return ClonePair{Payload: dispatcher.CloneImmutable, Return: dispatcher.CloneImmutable}
}

// DispatchedOptions configures NewDispatched.
type DispatchedOptions struct {
	Schema     *schema.AppSchema
	Migrations *schema.Migrations
	Logger     *slog.Logger
	Dispatcher *dispatcher.Dispatcher
	// Synchronous runs the driver in the caller's goroutine.
	Synchronous bool
	Policy      ClonePolicy
	// Boundary overrides the worker boundary.
	Boundary func(dispatcher.Handler) dispatcher.Boundary
}

// Dispatched is the caller side of a backend: every operation is a message
// to a driver behind a dispatcher connection.
type Dispatched struct {
	d          *dispatcher.Dispatcher
	tag        dispatcher.ConnectionTag
	driver     Driver
	schema     *schema.AppSchema
	migrations *schema.Migrations
	policy     ClonePolicy
	logger     *slog.Logger
}

var (
	_ Adapter     = (*Dispatched)(nil)
	_ SchemaSetup = (*Dispatched)(nil)
	_ Readiness   = (*Dispatched)(nil)
)

// NewDispatched opens a dispatcher connection to driver.
func NewDispatched(driver Driver, opts DispatchedOptions) *Dispatched {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := opts.Dispatcher
	if d == nil {
		d = dispatcher.New(logger)
	}
	tag := d.Open(HandlerFor(driver), dispatcher.Options{
		Synchronous: opts.Synchronous,
		Boundary:    opts.Boundary,
	})
	return &Dispatched{
		d:          d,
		tag:        tag,
		driver:     driver,
		schema:     opts.Schema,
		migrations: opts.Migrations,
		policy:     opts.Policy,
		logger:     logger,
	}
}

func (a *Dispatched) call(ctx context.Context, op string, args ...any) (any, error) {
	pair := a.policy.lookup(op)
	return a.d.Call(ctx, a.tag, op, args, pair.Payload, pair.Return)
}

// Schema returns the app schema.
func (a *Dispatched) Schema() *schema.AppSchema {
	return a.schema
}

// Ready reports whether the connection is past setup.
func (a *Dispatched) Ready() bool {
	state, err := a.d.State(a.tag)
	return err == nil && state == dispatcher.StateConnected
}

// Initialize asks the driver for the state of its storage.
func (a *Dispatched) Initialize(ctx context.Context) (core.SchemaSignal, error) {
	return a.d.Initialize(ctx, a.tag, OpInitialize)
}

// SetUpWithSchema recreates the storage from the schema.
func (a *Dispatched) SetUpWithSchema(ctx context.Context) error {
	a.logger.Info("setting up database with schema", "version", a.schema.Version)
	return a.d.SetUp(ctx, a.tag, OpSetUpWithSchema)
}

// SetUpWithMigrations migrates storage at fromVersion to the schema version.
func (a *Dispatched) SetUpWithMigrations(ctx context.Context, fromVersion int) error {
	a.logger.Info("migrating database", "from", fromVersion, "to", a.schema.Version)
	return a.d.SetUp(ctx, a.tag, OpSetUpWithMigrations, fromVersion)
}

// CanMigrate reports whether migrations cover fromVersion to the schema version.
func (a *Dispatched) CanMigrate(fromVersion int) bool {
	_, ok := a.migrations.StepsBetween(fromVersion, a.schema.Version)
	return ok
}

func (a *Dispatched) Find(ctx context.Context, table, id string) (*core.Row, error) {
	v, err := a.call(ctx, OpFind, table, id)
	if err != nil {
		return nil, err
	}
	row, _ := v.(*core.Row)
	return row, nil
}

func (a *Dispatched) Query(ctx context.Context, table string, q *query.Description) ([]core.Row, error) {
	v, err := a.call(ctx, OpQuery, table, q)
	if err != nil {
		return nil, err
	}
	rows, _ := v.([]core.Row)
	return rows, nil
}

func (a *Dispatched) Count(ctx context.Context, table string, q *query.Description) (int, error) {
	v, err := a.call(ctx, OpCount, table, q)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("count returned %T", v)
	}
	return n, nil
}

func (a *Dispatched) Batch(ctx context.Context, ops []core.BatchOperation) error {
	_, err := a.call(ctx, OpBatch, ops)
	return err
}

func (a *Dispatched) GetDeletedRecords(ctx context.Context, table string) ([]string, error) {
	v, err := a.call(ctx, OpGetDeletedRecords, table)
	if err != nil {
		return nil, err
	}
	ids, _ := v.([]string)
	return ids, nil
}

func (a *Dispatched) DestroyDeletedRecords(ctx context.Context, table string, ids []string) error {
	_, err := a.call(ctx, OpDestroyDeletedRecords, table, ids)
	return err
}

func (a *Dispatched) UnsafeResetDatabase(ctx context.Context) error {
	_, err := a.call(ctx, OpUnsafeResetDatabase)
	return err
}

func (a *Dispatched) GetLocal(ctx context.Context, key string) (*string, error) {
	v, err := a.call(ctx, OpGetLocal, key)
	if err != nil {
		return nil, err
	}
	s, _ := v.(*string)
	return s, nil
}

func (a *Dispatched) SetLocal(ctx context.Context, key, value string) error {
	_, err := a.call(ctx, OpSetLocal, key, value)
	return err
}

func (a *Dispatched) RemoveLocal(ctx context.Context, key string) error {
	_, err := a.call(ctx, OpRemoveLocal, key)
	return err
}

func (a *Dispatched) UnsafeExecute(ctx context.Context, work UnsafeWork) error {
	_, err := a.call(ctx, OpUnsafeExecute, work)
	return err
}

// Close closes the driver on its own side of the boundary, then the
// connection.
func (a *Dispatched) Close() error {
	var closeErr error
	state, err := a.d.State(a.tag)
	switch {
	case err != nil:
		return err
	case state == dispatcher.StateConnected:
		_, closeErr = a.call(context.Background(), OpClose)
	default:
		// Calls still waiting for setup never reached the driver.
		closeErr = a.driver.Close()
	}
	return errors.Join(closeErr, a.d.Close(a.tag))
}
