// pattern: Functional Core + Imperative Shell

// Package watermeter implements the pulse-ingestion and arm/disarm state
// machine of spec.md §4.2: a WaterMeterState cell driven by two
// cooperating actors, process_pulses and process_commands.
package watermeter

import (
	"context"

	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/logging"
	"github.com/watermeter/ruwmd/internal/peripherals"
)

// State is the WaterMeterState of spec.md §3. EdgesCount is monotonically
// non-decreasing across device lifetime; Armed means a future pulse
// should wake the device from deep sleep; Leaking is set iff Armed was
// true and pulses were observed since arming, and is sticky across
// Disarm — only ClearLeak resets it.
type State struct {
	EdgesCount uint64
	Armed      bool
	Leaking    bool
}

// Command is the wm::COMMAND sum. ClearLeak is an addition beyond
// spec.md's literal Arm/Disarm pair, naming the "command to clear it if
// desired" the design notes leave open: it resets Leaking without
// touching EdgesCount or Armed.
type Command int

const (
	CmdArm Command = iota
	CmdDisarm
	CmdClearLeak
)

// WaterMeter owns the STATE cell, the COMMAND signal, and the two actors
// that drive them.
type WaterMeter struct {
	State   *corestate.Cell[State]
	Command *corestate.Signal[Command]

	pulseWakeup peripherals.PulseWakeup
	logger      *logging.ScopedLogger
}

// New constructs a WaterMeter. store may be nil for a pure in-memory
// cell, or a composed corestate.Store[State] (retained + NVS
// wear-leveling, per spec.md §6) to survive resets.
func New(store corestate.Store[State], pulseWakeup peripherals.PulseWakeup, logger *logging.ScopedLogger) *WaterMeter {
	wm := &WaterMeter{
		pulseWakeup: pulseWakeup,
		logger:      logger,
	}
	wm.State = corestate.NewCell("wm.state", State{}, store, logger)
	wm.Command = corestate.NewSignal[Command]()
	return wm
}

// Seal finalizes subscriber registration on State.
func (wm *WaterMeter) Seal() {
	wm.State.Seal()
}

// ProcessPulses runs the wm::process_pulses actor: it repeatedly drains
// the pulse counter and folds any positive delta into STATE. Blocks
// until ctx is cancelled or the counter returns an error.
func (wm *WaterMeter) ProcessPulses(ctx context.Context, counter peripherals.PulseCounter) {
	for {
		delta, err := counter.TakePulses(ctx)
		if err != nil {
			return
		}
		if delta == 0 {
			continue
		}
		wm.State.UpdateWith("pulses", func(s State) State {
			s.EdgesCount += delta
			if s.Armed {
				s.Leaking = true
			}
			return s
		})
	}
}

// ProcessCommands runs the wm::process_commands actor: it awaits
// COMMAND and arms/disarms the pulse wakeup source and STATE.Armed
// accordingly. Disarm and ClearLeak never clear Leaking implicitly —
// Disarm leaves it sticky per spec.md §8; only ClearLeak resets it.
func (wm *WaterMeter) ProcessCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-wm.Command.Chan():
			cmd, ok := wm.Command.TryGet()
			if !ok {
				continue
			}
			wm.handleCommand(cmd)
		}
	}
}

func (wm *WaterMeter) handleCommand(cmd Command) {
	switch cmd {
	case CmdArm:
		if wm.pulseWakeup != nil {
			wm.pulseWakeup.SetEnabled(true)
		}
		wm.State.UpdateWith("arm", func(s State) State {
			s.Armed = true
			return s
		})
	case CmdDisarm:
		if wm.pulseWakeup != nil {
			wm.pulseWakeup.SetEnabled(false)
		}
		wm.State.UpdateWith("disarm", func(s State) State {
			s.Armed = false
			return s
		})
	case CmdClearLeak:
		wm.State.UpdateWith("clear_leak", func(s State) State {
			s.Leaking = false
			return s
		})
	}
}
