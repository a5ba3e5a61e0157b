package watermeter

import (
	"context"
	"testing"
	"time"

	"github.com/watermeter/ruwmd/internal/peripherals"
)

// TestPulseIngestion is spec.md §8 scenario 1: feeding deltas [1,0,2,3]
// against a zeroed state must land on {6,false,false} with exactly 3
// change notifications (the zero delta is dropped before it reaches the
// cell, producing no notification).
func TestPulseIngestion(t *testing.T) {
	wm := New(nil, nil, nil)
	notif := wm.State.Subscribe()
	wm.Seal()

	counter := peripherals.NewFakePulseCounter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wm.ProcessPulses(ctx, counter)

	// Notifications coalesce, so each delta is pushed only after the
	// previous one has had time to produce its own notification.
	fires := 0
	for _, d := range []uint64{1, 0, 2, 3} {
		counter.Push(d)
		deadline := time.Now().Add(100 * time.Millisecond)
		for time.Now().Before(deadline) {
			if notif.TryGet() {
				fires++
				break
			}
			time.Sleep(time.Millisecond)
		}
	}

	if fires != 3 {
		t.Fatalf("expected exactly 3 notifications, got %d", fires)
	}
	got := wm.State.Get()
	if got != (State{EdgesCount: 6, Armed: false, Leaking: false}) {
		t.Fatalf("expected {6,false,false}, got %+v", got)
	}
}

// TestArmThenLeak is spec.md §8 scenario 2.
func TestArmThenLeak(t *testing.T) {
	wm := New(nil, nil, nil)
	wm.Seal()
	wm.State.Set(State{EdgesCount: 100, Armed: false, Leaking: false})

	wm.Command.Signal(CmdArm)
	wm.handleCommand(CmdArm)

	counter := peripherals.NewFakePulseCounter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wm.ProcessPulses(ctx, counter)

	counter.Push(0)
	counter.Push(1)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if wm.State.Get().EdgesCount == 101 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if got := wm.State.Get(); got != (State{EdgesCount: 101, Armed: true, Leaking: true}) {
		t.Fatalf("expected {101,true,true}, got %+v", got)
	}

	wm.handleCommand(CmdDisarm)
	if got := wm.State.Get(); got != (State{EdgesCount: 101, Armed: false, Leaking: true}) {
		t.Fatalf("expected leaking sticky after disarm, got %+v", got)
	}
}

func TestClearLeakResetsOnlyLeaking(t *testing.T) {
	wm := New(nil, nil, nil)
	wm.Seal()
	wm.State.Set(State{EdgesCount: 5, Armed: false, Leaking: true})

	wm.handleCommand(CmdClearLeak)

	if got := wm.State.Get(); got != (State{EdgesCount: 5, Armed: false, Leaking: false}) {
		t.Fatalf("expected leaking cleared, rest unchanged, got %+v", got)
	}
}

func TestArmEnablesPulseWakeup(t *testing.T) {
	wakeup := &peripherals.FakePulseWakeup{}
	wm := New(nil, wakeup, nil)
	wm.Seal()

	wm.handleCommand(CmdArm)
	if !wakeup.Enabled() {
		t.Fatalf("expected pulse wakeup enabled after Arm")
	}

	wm.handleCommand(CmdDisarm)
	if wakeup.Enabled() {
		t.Fatalf("expected pulse wakeup disabled after Disarm")
	}
}
