// pattern: Functional Core

package corestate

import "sync"

// Signal carries the latest value of T written to it. A value written
// before the previous one was consumed is dropped — only the newest
// survives. Signal supports exactly one waiter.
type Signal[T any] struct {
	mu      sync.Mutex
	value   T
	pending bool
	wake    chan struct{}
}

// NewSignal returns a ready-to-use Signal.
func NewSignal[T any]() *Signal[T] {
	return &Signal[T]{wake: make(chan struct{}, 1)}
}

// Signal replaces any unconsumed value with v and wakes the waiter.
func (s *Signal[T]) Signal(v T) {
	s.mu.Lock()
	s.value = v
	s.pending = true
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.mu.Unlock()
}

// Wait blocks until a value is available, then returns and clears it.
func (s *Signal[T]) Wait() T {
	for {
		if v, ok := s.TryGet(); ok {
			return v
		}
		<-s.wake
	}
}

// Chan exposes the wake channel for use in a select alongside other
// events. After a receive, call TryGet to retrieve and clear the value.
func (s *Signal[T]) Chan() <-chan struct{} {
	return s.wake
}

// TryGet returns the pending value and clears it, or the zero value and
// false if nothing is pending.
func (s *Signal[T]) TryGet() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		var zero T
		return zero, false
	}
	s.pending = false
	v := s.value
	var zero T
	s.value = zero
	return v, true
}
