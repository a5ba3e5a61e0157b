// pattern: Functional Core

// Package valve implements the valve command/spin state machine of
// spec.md §4.2: a state cell, a command signal, and the process/spin/
// persist actor trio.
package valve

import (
	"context"
	"time"

	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/logging"
	"github.com/watermeter/ruwmd/internal/peripherals"
)

// Phase is the valve's position or transition.
type Phase int

const (
	// Unknown represents the spec's "None surrounds it" wrapper state.
	Unknown Phase = iota
	Open
	Closed
	Opening
	Closing
)

func (p Phase) String() string {
	switch p {
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// State is the ValveState of spec.md §3: a phase plus, for the two
// transitional phases, the epoch-ms instant the motor drive started.
type State struct {
	Phase     Phase
	SinceMsec int64
}

// Command is the sum {Open, Close} a caller signals to valve::COMMAND.
type Command int

const (
	CmdOpen Command = iota
	CmdClose
)

const spinTimeout = 20 * time.Second

// Valve owns the ValveState cell, the COMMAND signal, and the actors
// that drive them. At most one of the Open/Close direction pins is high
// at any instant; Power is high alongside it only while a drive runs.
type Valve struct {
	State   *corestate.Cell[State]
	Command *corestate.Signal[Command]

	spinCmd     *corestate.Signal[Command]
	spinDone    *corestate.Notification
	persistNotif *corestate.Notification

	power, open, close peripherals.OutputPin
	clock              peripherals.Clock
	logger             *logging.ScopedLogger
}

// New constructs a Valve wired to the given motor-drive pins. store may
// be nil for a pure in-memory cell, or a corestate.Store[State] backed
// by retained memory to survive light sleep.
func New(store corestate.Store[State], power, open, close peripherals.OutputPin, clock peripherals.Clock, logger *logging.ScopedLogger) *Valve {
	v := &Valve{
		spinCmd:      corestate.NewSignal[Command](),
		spinDone:     corestate.NewNotification(),
		persistNotif: corestate.NewNotification(),
		power:        power,
		open:         open,
		close:        close,
		clock:        clock,
		logger:       logger,
	}
	v.State = corestate.NewCell("valve.state", State{Phase: Unknown}, store, logger)
	v.Command = corestate.NewSignal[Command]()
	return v
}

// Seal finalizes subscriber registration. Call once all subscribers of
// v.State have called v.State.Subscribe().
func (v *Valve) Seal() {
	v.State.Seal()
}

// SubscribePersist registers the persist actor's wake notification. The
// cell itself already persists through its Store on every Set; this
// notification exists so a dedicated persist actor can log/ack the
// write the way spec.md describes a distinct "persist" actor, without
// adding a second write path.
func (v *Valve) SubscribePersist() *corestate.Notification {
	return v.persistNotif
}

// Process runs the valve::process actor: it awaits COMMAND or a
// spin-finish notification and drives State accordingly. Blocks until
// ctx is cancelled.
func (v *Valve) Process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-v.Command.Chan():
			cmd, ok := v.Command.TryGet()
			if !ok {
				continue
			}
			v.handleCommand(cmd)
		case <-v.spinDone.Chan():
			if !v.spinDone.TryGet() {
				continue
			}
			v.handleSpinFinish()
		}
	}
}

func (v *Valve) handleCommand(cmd Command) {
	cur := v.State.Get()
	switch cmd {
	case CmdOpen:
		if cur.Phase == Open || cur.Phase == Opening {
			return
		}
		next := State{Phase: Opening, SinceMsec: v.clock.Now().UnixMilli()}
		if v.State.Set(next) {
			v.persistNotif.Notify()
		}
		v.spinCmd.Signal(CmdOpen)
	case CmdClose:
		if cur.Phase == Closed || cur.Phase == Closing {
			return
		}
		next := State{Phase: Closing, SinceMsec: v.clock.Now().UnixMilli()}
		if v.State.Set(next) {
			v.persistNotif.Notify()
		}
		v.spinCmd.Signal(CmdClose)
	}
}

func (v *Valve) handleSpinFinish() {
	cur := v.State.Get()
	var next State
	switch cur.Phase {
	case Opening:
		next = State{Phase: Open}
	case Closing:
		next = State{Phase: Closed}
	default:
		return
	}
	if v.State.Set(next) {
		v.persistNotif.Notify()
	}
}

// Spin runs the valve::spin actor: it listens for the internal
// spin-command signal, drives the motor pins, and after spinTimeout drops
// all pins low and wakes process() via spinDone. A fresh command arriving
// mid-drive drops the pins low and starts its own drive in place of the
// current one, whose finish is then not reported.
func (v *Valve) Spin(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-v.spinCmd.Chan():
			cmd, ok := v.spinCmd.TryGet()
			if !ok {
				continue
			}
			v.runSpin(ctx, cmd)
		}
	}
}

// runSpin drives the motor pins for one command. A peripheral I/O
// failure here is fatal per spec.md §7.1: an inconsistent hardware
// state (e.g. direction asserted but power not) is worse than aborting,
// unlike a battery sample read failure, which is logged and swallowed.
// On any failure the pins are dropped low and the spin ends immediately
// without waiting out spinTimeout.
func (v *Valve) runSpin(ctx context.Context, cmd Command) {
	var err error
	switch cmd {
	case CmdOpen:
		if err = v.open.SetHigh(); err == nil {
			err = v.power.SetHigh()
		}
	case CmdClose:
		if err = v.close.SetHigh(); err == nil {
			err = v.power.SetHigh()
		}
	}

	if err != nil {
		if v.logger != nil {
			v.logger.Error("valve spin aborted: motor pin write failed", "error", err)
		}
		v.safeStop()
		v.spinDone.Notify()
		return
	}

	timer := time.NewTimer(spinTimeout)
	defer timer.Stop()

	for waiting := true; waiting; {
		select {
		case <-timer.C:
			waiting = false
		case <-ctx.Done():
			waiting = false
		case <-v.spinCmd.Chan():
			if next, ok := v.spinCmd.TryGet(); ok {
				v.safeStop()
				v.runSpin(ctx, next)
				return
			}
		}
	}

	v.safeStop()
	v.spinDone.Notify()
}

// safeStop drops all three motor pins low, logging (not discarding) any
// failure to do so — the de-energized state is the safety target, so
// every pin is attempted regardless of an earlier one's error.
func (v *Valve) safeStop() {
	if err := v.power.SetLow(); err != nil && v.logger != nil {
		v.logger.Error("valve safe-stop: power pin low failed", "error", err)
	}
	if err := v.open.SetLow(); err != nil && v.logger != nil {
		v.logger.Error("valve safe-stop: open pin low failed", "error", err)
	}
	if err := v.close.SetLow(); err != nil && v.logger != nil {
		v.logger.Error("valve safe-stop: close pin low failed", "error", err)
	}
}

// EmergencyClose is the synchronous boot-time helper invoked once if the
// wakeup cause indicates the ULP tripped: it asserts close for delay,
// then releases all pins. It bypasses the state cell entirely — at this
// point in boot no subscriber exists yet to observe it. A motor-pin
// write failure is fatal per spec.md §7.1: the drive is abandoned and
// every pin is still forced low, rather than leaving power energized
// with an unknown direction asserted.
func EmergencyClose(power, open, closePin peripherals.OutputPin, delay time.Duration) error {
	closeErr := closePin.SetHigh()
	var powerErr error
	if closeErr == nil {
		powerErr = power.SetHigh()
	}
	if closeErr == nil && powerErr == nil {
		time.Sleep(delay)
	}

	var lowErrs [3]error
	lowErrs[0] = power.SetLow()
	lowErrs[1] = open.SetLow()
	lowErrs[2] = closePin.SetLow()

	for _, err := range append([]error{closeErr, powerErr}, lowErrs[:]...) {
		if err != nil {
			return err
		}
	}
	return nil
}
