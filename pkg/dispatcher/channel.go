package dispatcher

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrConnectionClosed is returned to calls pending when a connection closes.
var ErrConnectionClosed = errors.New("connection closed")

// OrderingViolationError reports a response that does not answer the oldest
// pending request. It breaks the connection permanently.
type OrderingViolationError struct {
	Expected uint64
	Got      uint64
}

func (e *OrderingViolationError) Error() string {
	return fmt.Sprintf("response ordering violated: expected id %d, got %d", e.Expected, e.Got)
}

// call is a request waiting for its result.
type call struct {
	req  Request
	done chan Result
}

func newCall(req Request) *call {
	return &call{req: req, done: make(chan Result, 1)}
}

// transport delivers calls to a backend in submission order. submit runs
// under the dispatcher lock and must not block on the backend. run executes
// whatever submit left for the calling goroutine, outside that lock.
type transport interface {
	submit(c *call)
	run()
	close() error
}

// syncTransport runs calls in the goroutines that submit them, one at a
// time and in submission order.
type syncTransport struct {
	handler Handler

	mu    sync.Mutex
	queue []*call

	// running is held while a goroutine drains the queue.
	running sync.Mutex
}

func (t *syncTransport) submit(c *call) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, c)
}

// run drains the queue. A goroutine that finds another one draining waits
// for it; its own call is executed by whichever goroutine reaches it first.
func (t *syncTransport) run() {
	t.running.Lock()
	defer t.running.Unlock()
	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.mu.Unlock()
			return
		}
		c := t.queue[0]
		t.queue[0] = nil
		t.queue = t.queue[1:]
		t.mu.Unlock()
		c.done <- execute(t.handler, c.req)
	}
}

func (t *syncTransport) close() error { return nil }

// channel keeps exactly one request in flight to a boundary and matches
// responses against the head of its pending queue.
type channel struct {
	boundary Boundary
	logger   *slog.Logger

	mu      sync.Mutex
	pending []*call
	broken  error
}

func newChannel(b Boundary, logger *slog.Logger) *channel {
	ch := &channel{boundary: b, logger: logger}
	go ch.readLoop()
	return ch
}

func (ch *channel) submit(c *call) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.broken != nil {
		c.done <- Result{Error: ch.broken}
		return
	}
	ch.pending = append(ch.pending, c)
	if len(ch.pending) == 1 {
		ch.sendHead()
	}
}

// sendHead sends the oldest pending call. Callers hold mu.
func (ch *channel) sendHead() {
	head := ch.pending[0]
	if err := ch.boundary.Send(head.req); err != nil {
		ch.failAll(err)
	}
}

func (ch *channel) readLoop() {
	for resp := range ch.boundary.Responses() {
		ch.onResponse(resp)
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.broken == nil {
		ch.failAll(ErrConnectionClosed)
	}
}

func (ch *channel) onResponse(resp Response) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.broken != nil {
		return
	}
	if len(ch.pending) == 0 || ch.pending[0].req.ID != resp.ID {
		var expected uint64
		if len(ch.pending) > 0 {
			expected = ch.pending[0].req.ID
		}
		err := &OrderingViolationError{Expected: expected, Got: resp.ID}
		ch.logger.Error("dispatcher ordering violation", "expected", expected, "got", resp.ID)
		ch.failAll(err)
		return
	}

	head := ch.pending[0]
	ch.pending[0] = nil
	ch.pending = ch.pending[1:]
	head.done <- resp.Result
	if len(ch.pending) > 0 {
		ch.sendHead()
	}
}

// failAll breaks the channel and fails every pending call. Callers hold mu.
func (ch *channel) failAll(err error) {
	ch.broken = err
	for _, c := range ch.pending {
		c.done <- Result{Error: err}
	}
	ch.pending = nil
}

func (ch *channel) run() {}

func (ch *channel) close() error {
	return ch.boundary.Close()
}
