// pattern: Functional Core + Imperative Shell

// Package emergency implements the safety-override policy actor of
// spec.md §4.7: it observes valve, water-meter and battery state and
// forces the valve closed on a leak or on battery exhaustion.
package emergency

import (
	"context"

	"github.com/watermeter/ruwmd/internal/battery"
	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/valve"
	"github.com/watermeter/ruwmd/internal/watermeter"
)

// shouldClose evaluates the policy of spec.md §4.7 against the three
// source states, independent of actor wiring so it can be unit tested
// directly.
func shouldClose(wm watermeter.State, bat battery.State) bool {
	if wm.Leaking {
		return true
	}
	if bat.VoltageKnown && bat.Voltage <= battery.LowMillivolts && bat.PoweredKnown && !bat.Powered {
		return true
	}
	return false
}

// Watch subscribes to valveState, wmState and batteryState and, on any
// wake, evaluates the close policy. If a close is required and the
// valve's current phase is neither Closing nor Closed, it signals
// valve::COMMAND exactly once per qualifying wake. Blocks until ctx is
// cancelled.
func Watch(
	ctx context.Context,
	valveState *corestate.Cell[valve.State],
	valveNotif *corestate.Notification,
	wmState *corestate.Cell[watermeter.State],
	wmNotif *corestate.Notification,
	batteryState *corestate.Cell[battery.State],
	batteryNotif *corestate.Notification,
	command *corestate.Signal[valve.Command],
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-valveNotif.Chan():
			valveNotif.TryGet()
		case <-wmNotif.Chan():
			wmNotif.TryGet()
		case <-batteryNotif.Chan():
			batteryNotif.TryGet()
		}

		if !shouldClose(wmState.Get(), batteryState.Get()) {
			continue
		}
		phase := valveState.Get().Phase
		if phase == valve.Closing || phase == valve.Closed {
			continue
		}
		command.Signal(valve.CmdClose)
	}
}
