// pattern: Imperative Shell

// Package button implements the per-button debounce actor of spec.md
// §4.6: wait for the configured pressed level, confirm it holds across a
// debounce window, then emit a Pressed command to the screen.
package button

import (
	"context"
	"time"

	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/peripherals"
)

// ID identifies which physical button fired. 1, 2 and 3 map to
// prev-page, next-page and action respectively.
type ID uint8

const (
	Prev   ID = 1
	Next   ID = 2
	Action ID = 3
)

// Command is the ButtonCommand of spec.md §3.
type Command struct {
	Pressed ID
}

const (
	pollingInterval  = 10 * time.Millisecond
	debounceDuration = 50 * time.Millisecond
)

// Watch runs one button's debounce actor: it awaits pin's configured
// transition, then samples every pollingInterval across debounceDuration
// to confirm the level holds before emitting a Pressed command. Blocks
// until ctx is cancelled.
func Watch(ctx context.Context, id ID, pin peripherals.InputPin, commands *corestate.Signal[Command]) {
	for {
		if err := pin.WaitForTransition(ctx); err != nil {
			return
		}
		if debounced(ctx, pin) {
			commands.Signal(Command{Pressed: id})
		}
	}
}

// debounced samples pin every pollingInterval across debounceDuration and
// reports whether it stayed high throughout.
func debounced(ctx context.Context, pin peripherals.InputPin) bool {
	deadline := time.Now().Add(debounceDuration)
	ticker := time.NewTicker(pollingInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			high, err := pin.IsHigh()
			if err != nil || !high {
				return false
			}
		}
	}
	return true
}
