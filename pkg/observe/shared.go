package observe

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/leapdb/pkg/core"
)

// Source starts producing values and returns a function that stops it.
//
// emit delivers a value to the current subscribers. It returns false when the
// last subscriber left during that delivery; the source must then release its
// resources and never emit again, and its stop function will not be called.
// A source must not emit from inside the call that starts it, and once stop
// returns it must not emit again.
type Source[T any] func(emit func(T) bool) (stop func())

// SharedSubscribable runs a single Source for many subscribers.
// The first subscriber starts the source, every new subscriber immediately
// receives the last emitted value, and the last unsubscribe stops the source
// and clears the replay slot.
type SharedSubscribable[T any] struct {
	source Source[T]

	// lifecycle serializes starting and stopping the source.
	lifecycle sync.Mutex

	mu          sync.Mutex
	subscribers []*subscription[T]
	running     bool
	generation  uint64
	stop        func()
	delivering  int
	pendingStop bool
	hasLast     bool
	last        T
	seq         uint64
}

// NewShared wraps source.
func NewShared[T any](source Source[T]) *SharedSubscribable[T] {
	return &SharedSubscribable[T]{source: source}
}

type subscription[T any] struct {
	fn     func(T)
	active atomic.Bool

	// mu orders deliveries to this subscriber.
	mu      sync.Mutex
	lastSeq uint64
}

func (s *subscription[T]) deliver(v T, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active.Load() || seq <= s.lastSeq {
		return
	}
	s.lastSeq = seq
	s.fn(v)
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is safe to call more than once.
func (s *SharedSubscribable[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	sub := &subscription[T]{fn: fn}
	sub.active.Store(true)

	s.lifecycle.Lock()
	s.mu.Lock()
	s.subscribers = append(s.subscribers, sub)
	start := !s.running
	var replay T
	var replaySeq uint64
	hasReplay := false
	if start {
		s.running = true
		s.generation++
	} else {
		s.pendingStop = false
		if s.hasLast {
			replay, replaySeq, hasReplay = s.last, s.seq, true
		}
	}
	gen := s.generation
	s.mu.Unlock()

	if start {
		stop := s.source(s.emitter(gen))
		s.mu.Lock()
		if s.generation == gen {
			s.stop = stop
		}
		s.mu.Unlock()
	}
	s.lifecycle.Unlock()

	if hasReplay {
		sub.deliver(replay, replaySeq)
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(sub) })
	}
}

func (s *SharedSubscribable[T]) unsubscribe(sub *subscription[T]) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	sub.active.Store(false)

	s.mu.Lock()
	if i := slices.Index(s.subscribers, sub); i >= 0 {
		s.subscribers = slices.Delete(s.subscribers, i, i+1)
	}
	if len(s.subscribers) > 0 || !s.running {
		s.mu.Unlock()
		return
	}
	if s.delivering > 0 {
		// The emitting goroutine finishes the teardown when emit returns.
		s.pendingStop = true
		s.mu.Unlock()
		return
	}
	stop := s.stop
	gen := s.generation
	s.mu.Unlock()

	if stop != nil {
		stop()
	}

	s.mu.Lock()
	if s.generation == gen {
		s.reset()
	}
	s.mu.Unlock()
}

// reset clears the running state. Callers hold mu.
func (s *SharedSubscribable[T]) reset() {
	var zero T
	s.running = false
	s.stop = nil
	s.pendingStop = false
	s.hasLast = false
	s.last = zero
	s.generation++
}

func (s *SharedSubscribable[T]) emitter(gen uint64) func(T) bool {
	return func(v T) bool {
		s.mu.Lock()
		if !s.running || s.generation != gen {
			s.mu.Unlock()
			panic(&core.InvariantError{Message: "source emitted after its last subscriber unsubscribed"})
		}
		s.seq++
		seq := s.seq
		s.last, s.hasLast = v, true
		s.delivering++
		subs := slices.Clone(s.subscribers)
		s.mu.Unlock()

		for _, sub := range subs {
			sub.deliver(v, seq)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.delivering--
		if s.generation != gen {
			return false
		}
		if len(s.subscribers) == 0 {
			if s.delivering == 0 {
				s.reset()
			}
			return false
		}
		return true
	}
}

// SubscriberCount returns the number of active subscribers.
func (s *SharedSubscribable[T]) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subscribers {
		if sub.active.Load() {
			n++
		}
	}
	return n
}
