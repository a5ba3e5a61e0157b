// pattern: Functional Core + Imperative Shell

// Package keepalive implements the inactivity shutdown actor of spec.md
// §4.8: it extends a deadline on any of N activity notifications and,
// once the deadline passes with no further activity, signals Quit.
package keepalive

import (
	"context"
	"time"

	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/peripherals"
)

const (
	timeout              = 20 * time.Second
	tick                 = 2 * time.Second
	remainingTimeTrigger = time.Second
)

// RemainingTime is the periodic update fed to the screen: either no
// deadline is pending (Indefinite) or time is left on the one that is.
type RemainingTime struct {
	Indefinite bool
	Duration   time.Duration
}

// Keepalive owns the N activity notifications and drives RemainingTime
// and Quit off them.
type Keepalive struct {
	events  []*corestate.Notification
	fired   chan struct{}
	clock   peripherals.Clock
}

// New constructs a Keepalive watching n independent activity sources.
func New(n int, clock peripherals.Clock) *Keepalive {
	k := &Keepalive{clock: clock, fired: make(chan struct{}, 1)}
	for i := 0; i < n; i++ {
		k.events = append(k.events, corestate.NewNotification())
	}
	return k
}

// Events returns the N activity notifications; callers Notify() whichever
// is relevant to the subsystem they're wiring (a ValveCommand dispatch,
// a ButtonCommand, and so on all count as activity).
func (k *Keepalive) Events() []*corestate.Notification {
	return k.events
}

// Watch forwards every event's wakeups into one fan-in channel Run reads
// from. Must be started once per Keepalive alongside Run, and stops when
// ctx is cancelled.
func (k *Keepalive) Watch(ctx context.Context) {
	for _, e := range k.events {
		go func(e *corestate.Notification) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-e.Chan():
					select {
					case k.fired <- struct{}{}:
					default:
					}
				}
			}
		}(e)
	}
}

// runState is the pure fold carried across wakes; step advances it
// without touching channels or wall-clock reads, so the decision logic
// is testable independent of real timer cadence.
type runState struct {
	deadline    time.Time
	hasDeadline bool
	lastSent    time.Time
	sentOnce    bool
}

// stepResult is what a wake decided to do.
type stepResult struct {
	quit  bool
	emit  bool
	value RemainingTime
}

// step folds one wake (anyFired reports whether an activity event fired
// on this wake, as opposed to the plain tick) into s, per spec.md §4.8.
func step(s runState, now time.Time, anyFired bool) (runState, stepResult) {
	if anyFired {
		s.deadline = now.Add(timeout)
		s.hasDeadline = true
	}

	if s.hasDeadline && !now.Before(s.deadline) {
		return s, stepResult{quit: true}
	}

	shouldEmit := s.hasDeadline != s.sentOnce || (s.sentOnce && !s.lastSent.Add(remainingTimeTrigger).After(now))
	if !shouldEmit {
		return s, stepResult{}
	}

	s.lastSent = now
	s.sentOnce = true
	if s.hasDeadline {
		return s, stepResult{emit: true, value: RemainingTime{Duration: s.deadline.Sub(now)}}
	}
	return s, stepResult{emit: true, value: RemainingTime{Indefinite: true}}
}

// Run drives the keepalive actor: it wakes on any event (fanned in by
// Watch) or a 2s tick, extends the deadline on any event, and emits
// RemainingTime on notif (on a deadline-existence change or once
// remainingTimeTrigger has elapsed since the last emit) or exactly one
// Quit once the deadline passes. Returns once Quit has been sent or ctx
// is cancelled.
func (k *Keepalive) Run(ctx context.Context, notif *corestate.Signal[RemainingTime], quit *corestate.Signal[struct{}]) {
	now := k.clock.Now()
	s := runState{deadline: now.Add(timeout), hasDeadline: true}

	timer := time.NewTimer(tick)
	defer timer.Stop()

	for {
		anyFired := false
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			timer.Reset(tick)
		case <-k.fired:
			timer.Reset(tick)
			for _, e := range k.events {
				if e.TryGet() {
					anyFired = true
				}
			}
		}

		var res stepResult
		s, res = step(s, k.clock.Now(), anyFired)
		switch {
		case res.quit:
			quit.Signal(struct{}{})
			return
		case res.emit:
			notif.Signal(res.value)
		}
	}
}
