package battery

import (
	"context"
	"testing"
	"time"

	"github.com/watermeter/ruwmd/internal/peripherals"
)

func TestPercentageBoundaries(t *testing.T) {
	cases := []struct {
		name string
		s    State
		want int
	}{
		{"unknown", State{}, 0},
		{"at or below low", State{Voltage: LowMillivolts, VoltageKnown: true}, 0},
		{"below low", State{Voltage: LowMillivolts - 50, VoltageKnown: true}, 0},
		{"at or above max", State{Voltage: MaxMillivolts, VoltageKnown: true}, 100},
		{"above max", State{Voltage: MaxMillivolts + 100, VoltageKnown: true}, 100},
		{"midpoint", State{Voltage: LowMillivolts + (MaxMillivolts-LowMillivolts)/2, VoltageKnown: true}, 50},
	}
	for _, c := range cases {
		if got := c.s.Percentage(); got != c.want {
			t.Errorf("%s: Percentage() = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestPollWritesCombinedState(t *testing.T) {
	b := New(nil, nil)
	notif := b.State.Subscribe()
	b.Seal()

	adc := peripherals.NewFakeAdc(2900)
	power := peripherals.NewFakeInputPin()
	power.SetHigh(true)

	b.poll(adc, power)
	if !notif.TryGet() {
		t.Fatalf("expected a state change notification")
	}
	got := b.State.Get()
	if !got.VoltageKnown || got.Voltage != 2900 {
		t.Fatalf("expected voltage 2900, got %+v", got)
	}
	if !got.PoweredKnown || !got.Powered {
		t.Fatalf("expected powered=true, got %+v", got)
	}
}

// TestBrownOutTrace is spec.md §8 scenario 4's data half: the voltage
// trace itself and the resulting BatteryState sequence. The close-once
// assertion is owned by the emergency package, which subscribes to this
// state.
func TestBrownOutTrace(t *testing.T) {
	b := New(nil, nil)
	b.Seal()

	trace := []uint16{2800, 2750, 2700, 2650}
	adc := peripherals.NewFakeAdc(trace...)
	power := peripherals.NewFakeInputPin()
	power.SetHigh(false)

	var last State
	for range trace {
		b.poll(adc, power)
		last = b.State.Get()
	}
	if last.Voltage != 2650 || last.Powered {
		t.Fatalf("expected final state at 2650mV unpowered, got %+v", last)
	}
}

func TestProcessStopsOnContextCancel(t *testing.T) {
	b := New(nil, nil)
	b.Seal()

	adc := peripherals.NewFakeAdc(3000)
	power := peripherals.NewFakeInputPin()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Process(ctx, adc, power)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Process did not return after context cancellation")
	}
}
