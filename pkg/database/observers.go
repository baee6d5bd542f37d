package database

import (
	"context"
	"sync"

	"github.com/leapstack-labs/leapdb/pkg/observe"
)

type liveOptions[T any] struct {
	db     *Database
	tables []string
	fetch  func(ctx context.Context) (T, error)
	same   func(a, b T) bool
	// apply updates the current value from a change set of the queried
	// table without fetching. A nil apply always refetches.
	apply func(current T, changes []Change) (T, bool)
	// fail receives fetch errors.
	fail func(error)
}

// live keeps one value up to date with storage.
type live[T any] struct {
	opts liveOptions[T]
	emit func(T) bool

	mu          sync.Mutex
	stopped     bool
	ready       bool
	current     T
	unsubscribe []func()
}

// liveSource returns a source that fetches once, then refetches or applies
// change sets of the watched tables and emits whenever the value changes.
// It also refetches after a database reset.
func liveSource[T any](opts liveOptions[T]) observe.Source[T] {
	return func(emit func(T) bool) func() {
		l := &live[T]{opts: opts, emit: emit}
		unsub, err := opts.db.WithChangesForTables(opts.tables, l.onChanges)
		if err != nil {
			opts.db.logger.Error("failed to observe query", "error", err)
			opts.fail(err)
			return func() {}
		}
		unsubReset := opts.db.OnReset(l.reload)

		l.mu.Lock()
		l.unsubscribe = []func(){unsub, unsubReset}
		if l.stopped {
			unsub()
			unsubReset()
		}
		l.mu.Unlock()

		go l.reload()
		return l.stop
	}
}

func (l *live[T]) onChanges(table string, changes []Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	if l.ready && l.opts.apply != nil && table == l.opts.tables[0] {
		if next, ok := l.opts.apply(l.current, changes); ok {
			l.publish(next)
			return
		}
	}
	l.fetchLocked()
}

func (l *live[T]) reload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.fetchLocked()
}

func (l *live[T]) fetchLocked() {
	v, err := l.opts.fetch(context.Background())
	if err != nil {
		l.opts.db.logger.Error("failed to refresh observed query", "tables", l.opts.tables, "error", err)
		l.opts.fail(err)
		return
	}
	l.publish(v)
}

// publish emits v unless it equals the last emitted value.
func (l *live[T]) publish(v T) {
	if l.ready && l.opts.same(l.current, v) {
		return
	}
	l.current, l.ready = v, true
	if !l.emit(v) {
		l.halt()
	}
}

func (l *live[T]) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.halt()
}

// halt requires l.mu.
func (l *live[T]) halt() {
	if l.stopped {
		return
	}
	l.stopped = true
	for _, u := range l.unsubscribe {
		u()
	}
}
