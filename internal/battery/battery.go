// pattern: Functional Core + Imperative Shell

// Package battery implements the battery poll subsystem of spec.md §4.5:
// a 2s actor reading the ADC and the power-present input into a
// BatteryState cell, with no filtering beyond what the ADC driver gives.
package battery

import (
	"context"
	"time"

	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/logging"
	"github.com/watermeter/ruwmd/internal/peripherals"
)

// Voltage thresholds, in millivolts, from spec.md §3.
const (
	LowMillivolts uint16 = 2700
	MaxMillivolts uint16 = 3100
)

const pollInterval = 2 * time.Second

// State is the BatteryState of spec.md §3. Voltage and Powered carry
// their own validity flags rather than being pointers, so State stays
// comparable and can back a generic Cell[State].
type State struct {
	Voltage      uint16
	VoltageKnown bool
	Powered      bool
	PoweredKnown bool
}

// Percentage maps Voltage linearly onto [0,100], clamped, treating
// LowMillivolts as empty and MaxMillivolts as full. Returns 0 when the
// voltage is unknown.
func (s State) Percentage() int {
	if !s.VoltageKnown {
		return 0
	}
	if s.Voltage <= LowMillivolts {
		return 0
	}
	if s.Voltage >= MaxMillivolts {
		return 100
	}
	span := int(MaxMillivolts - LowMillivolts)
	return int(s.Voltage-LowMillivolts) * 100 / span
}

// Battery owns the STATE cell and the poll actor.
type Battery struct {
	State *corestate.Cell[State]

	logger *logging.ScopedLogger
}

// New constructs a Battery subsystem. store may be nil for an in-memory
// cell.
func New(store corestate.Store[State], logger *logging.ScopedLogger) *Battery {
	b := &Battery{logger: logger}
	b.State = corestate.NewCell("battery.state", State{}, store, logger)
	return b
}

// Seal finalizes subscriber registration on State.
func (b *Battery) Seal() {
	b.State.Seal()
}

// Process runs the battery poll actor: every pollInterval it reads adc
// and power, and writes the combined BatteryState. Blocks until ctx is
// cancelled.
func (b *Battery) Process(ctx context.Context, adc peripherals.Adc, power peripherals.InputPin) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.poll(adc, power)
		}
	}
}

func (b *Battery) poll(adc peripherals.Adc, power peripherals.InputPin) {
	next := State{}
	if mv, err := adc.ReadMillivolts(); err == nil {
		next.Voltage = mv
		next.VoltageKnown = true
	}
	if powered, err := power.IsHigh(); err == nil {
		next.Powered = powered
		next.PoweredKnown = true
	}
	b.State.Set(next)
}
