package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrBoundaryClosed is returned for requests sent to a closed boundary.
var ErrBoundaryClosed = errors.New("boundary closed")

// Handler executes operations on the far side of a boundary.
type Handler interface {
	Handle(ctx context.Context, op string, args []any) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, op string, args []any) (any, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, op string, args []any) (any, error) {
	return f(ctx, op, args)
}

// Boundary is an isolated execution context reachable only by messages.
// It must answer requests in the order it receives them.
type Boundary interface {
	Send(req Request) error
	Responses() <-chan Response
	Close() error
}

// Worker is a Boundary backed by a dedicated goroutine that runs one
// request at a time, strictly FIFO.
type Worker struct {
	handler   Handler
	logger    *slog.Logger
	requests  chan Request
	responses chan Response

	mu     sync.Mutex
	closed bool
}

// NewWorker starts a worker goroutine around handler.
func NewWorker(handler Handler, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &Worker{
		handler:   handler,
		logger:    logger,
		requests:  make(chan Request, 1),
		responses: make(chan Response, 1),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	defer close(w.responses)
	for req := range w.requests {
		w.responses <- Response{ID: req.ID, Result: execute(w.handler, req)}
	}
}

// execute runs one request with its clone strategies applied. Requests are
// never cancelled once started.
func execute(h Handler, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Error: fmt.Errorf("%s panicked: %v", req.Type, r)}
		}
	}()

	args, err := Clone(req.Payload, req.CloneMethod)
	if err != nil {
		return Result{Error: fmt.Errorf("failed to clone %s payload: %w", req.Type, err)}
	}
	payload, _ := args.([]any)
	value, err := h.Handle(context.Background(), req.Type, payload)
	if err != nil {
		return Result{Error: err}
	}
	value, err = Clone(value, req.ReturnCloneMethod)
	if err != nil {
		return Result{Error: fmt.Errorf("failed to clone %s result: %w", req.Type, err)}
	}
	return Result{Value: value}
}

// Send queues req for the worker.
func (w *Worker) Send(req Request) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrBoundaryClosed
	}
	w.logger.Debug("sending request", "id", req.ID, "type", req.Type)
	w.requests <- req
	return nil
}

// Responses returns the response stream. It closes after Close once the
// worker has drained its queue.
func (w *Worker) Responses() <-chan Response {
	return w.responses
}

// Close stops accepting requests.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.requests)
	}
	return nil
}
