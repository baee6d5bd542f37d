package observe

import (
	"slices"
	"sync"
)

// Subject delivers values synchronously to its observers in subscription order.
type Subject[T any] struct {
	mu        sync.Mutex
	observers []*observer[T]
}

type observer[T any] struct {
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it.
func (s *Subject[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	o := &observer[T]{fn: fn}
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if i := slices.Index(s.observers, o); i >= 0 {
			s.observers = slices.Delete(s.observers, i, i+1)
		}
	}
}

// Next delivers v to the observers registered when the call starts.
func (s *Subject[T]) Next(v T) {
	s.mu.Lock()
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.fn(v)
	}
}

// Len returns the number of observers.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}
