package screen

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/watermeter/ruwmd/internal/battery"
	"github.com/watermeter/ruwmd/internal/button"
	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/keepalive"
	"github.com/watermeter/ruwmd/internal/valve"
	"github.com/watermeter/ruwmd/internal/watermeter"
)

func TestPageCyclesBetweenSummaryAndBattery(t *testing.T) {
	if Summary.Next() != Battery {
		t.Fatalf("Summary.Next() = %v, want Battery", Summary.Next())
	}
	if Battery.Next() != Summary {
		t.Fatalf("Battery.Next() = %v, want Summary", Battery.Next())
	}
	if Summary.Prev() != Battery || Battery.Prev() != Summary {
		t.Fatalf("Prev() must also swap between the two pages")
	}
}

func newTestScreen(t *testing.T) (*Screen, Sources) {
	t.Helper()
	valveState := corestate.NewCell("valve", valve.State{Phase: valve.Closed}, nil, nil)
	valveNotif := valveState.Subscribe()
	wmState := corestate.NewCell("wm", watermeter.State{}, nil, nil)
	wmNotif := wmState.Subscribe()
	batState := corestate.NewCell("battery", battery.State{}, nil, nil)
	batNotif := batState.Subscribe()

	src := Sources{
		Buttons:         corestate.NewSignal[button.Command](),
		ValveState:      valveState,
		ValveNotif:      valveNotif,
		WaterMeter:      wmState,
		WaterMeterNotif: wmNotif,
		Battery:         batState,
		BatteryNotif:    batNotif,
		RemainingTime:   corestate.NewSignal[keepalive.RemainingTime](),
	}

	s := New(src, nil)
	valveState.Seal()
	wmState.Seal()
	batState.Seal()
	return s, src
}

// sealScreen finalizes the draw-request cell once every subscriber
// (DrawEngine included, if any) has registered.
func sealScreen(s *Screen) *Screen {
	s.Seal()
	return s
}

func TestProcessCyclesPageOnButtonPress(t *testing.T) {
	s, src := newTestScreen(t)
	sealScreen(s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Process(ctx)
	}()

	src.Buttons.Signal(button.Command{Pressed: button.Next})
	waitForDrawRequest(t, s, func(dr DrawRequest) bool { return dr.ActivePage == Battery })

	src.Buttons.Signal(button.Command{Pressed: button.Prev})
	waitForDrawRequest(t, s, func(dr DrawRequest) bool { return dr.ActivePage == Summary })

	cancel()
	wg.Wait()
}

func TestProcessDedupsIdenticalSourceUpdates(t *testing.T) {
	s, src := newTestScreen(t)
	sealScreen(s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Process(ctx)
	}()

	// Setting the valve cell to its already-current value must not
	// notify, so the draw request cell never changes for this no-op.
	changed := src.ValveState.Set(valve.State{Phase: valve.Closed})
	if changed {
		t.Fatalf("setting the cell to its current value must report no change")
	}

	src.ValveState.Set(valve.State{Phase: valve.Open})
	waitForDrawRequest(t, s, func(dr DrawRequest) bool { return dr.ValveState.Phase == valve.Open })

	cancel()
	wg.Wait()
}

func waitForDrawRequest(t *testing.T, s *Screen, pred func(DrawRequest) bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if pred(s.DrawRequest.Get()) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for draw request condition, last=%+v", s.DrawRequest.Get())
}

func TestRendererProducesDistinctFramesPerPage(t *testing.T) {
	r := NewRenderer(DefaultFrameBuffer, NewStyles("mocha"))
	summary := r.Render(DrawRequest{ActivePage: Summary, ValveKnown: true, ValveState: valve.State{Phase: valve.Open}})
	batteryFrame := r.Render(DrawRequest{ActivePage: Battery, Battery: battery.State{Voltage: 3000, VoltageKnown: true}})

	if !strings.Contains(summary, "Summary") {
		t.Fatalf("expected Summary page to render its title, got:\n%s", summary)
	}
	if !strings.Contains(batteryFrame, "Battery") {
		t.Fatalf("expected Battery page to render its title, got:\n%s", batteryFrame)
	}
	if summary == batteryFrame {
		t.Fatalf("summary and battery pages must render differently")
	}
}

func TestRendererShowsUnknownValveAsPlaceholder(t *testing.T) {
	r := NewRenderer(DefaultFrameBuffer, NewStyles("mocha"))
	out := r.Render(DrawRequest{ActivePage: Summary, ValveKnown: false})
	if !strings.Contains(out, "?") {
		t.Fatalf("expected unknown valve state to render as a placeholder, got:\n%s", out)
	}
}

func TestDrawEngineRendersOnDedupedChange(t *testing.T) {
	s, src := newTestScreen(t)
	engine := NewDrawEngine(NewRenderer(DefaultFrameBuffer, NewStyles("mocha")), s.DrawRequest, nil)
	sealScreen(s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.Process(ctx) }()
	go func() { defer wg.Done(); engine.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && engine.LastFrame() == "" {
		time.Sleep(time.Millisecond)
	}
	first := engine.LastFrame()
	if first == "" {
		t.Fatalf("expected an initial frame to have been rendered")
	}

	src.Battery.Set(battery.State{Voltage: 3000, VoltageKnown: true, Powered: true, PoweredKnown: true})
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && engine.LastFrame() == first {
		time.Sleep(time.Millisecond)
	}
	if engine.LastFrame() == first {
		t.Fatalf("expected draw engine to re-render after a battery update")
	}

	cancel()
	wg.Wait()
}
