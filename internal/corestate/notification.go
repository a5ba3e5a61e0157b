// pattern: Functional Core

// Package corestate implements the reactive runtime primitives shared by
// every subsystem actor: a coalescing Notification, a latest-wins Signal,
// and a Cell that fans out change notifications to its subscribers.
package corestate

import "sync"

// Notification is a boolean slot plus a single waker. Multiple notify()
// calls before a wait() collapse to one wakeup; only one waiter is
// supported at a time.
type Notification struct {
	mu      sync.Mutex
	set     bool
	wake    chan struct{}
	waiting bool
}

// NewNotification returns a ready-to-use Notification.
func NewNotification() *Notification {
	return &Notification{wake: make(chan struct{}, 1)}
}

// Notify sets the flag and wakes a pending waiter. Safe to call from any
// goroutine, any number of times; redundant notifies before the next Wait
// are coalesced into one wakeup.
func (n *Notification) Notify() {
	n.mu.Lock()
	n.set = true
	select {
	case n.wake <- struct{}{}:
	default:
	}
	n.mu.Unlock()
}

// Wait blocks until Notify has been called at least once since the last
// Wait/TryGet, then clears the flag. It cannot be cancelled — callers
// that need cancellation should select on Chan() directly instead of
// calling Wait.
func (n *Notification) Wait() {
	for {
		if n.TryGet() {
			return
		}
		<-n.wake
	}
}

// Chan exposes the underlying wake channel so callers can select on it
// alongside other events (signals, tickers, peripheral awaits) without
// blocking exclusively on this notification. After receiving from Chan,
// the caller must still call TryGet to clear the flag and confirm a
// value was actually pending (spurious wakeups are possible when Chan is
// combined with other select cases).
func (n *Notification) Chan() <-chan struct{} {
	return n.wake
}

// TryGet clears the flag and returns its previous value without blocking.
func (n *Notification) TryGet() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	was := n.set
	n.set = false
	return was
}
