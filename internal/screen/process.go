// pattern: Imperative Shell

package screen

import (
	"context"

	"github.com/watermeter/ruwmd/internal/battery"
	"github.com/watermeter/ruwmd/internal/button"
	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/keepalive"
	"github.com/watermeter/ruwmd/internal/logging"
	"github.com/watermeter/ruwmd/internal/valve"
	"github.com/watermeter/ruwmd/internal/watermeter"
)

// Sources bundles the four state cells (valve, water meter, battery,
// keepalive's remaining-time signal) the process actor watches, plus the
// shared button command signal.
type Sources struct {
	Buttons       *corestate.Signal[button.Command]
	ValveState    *corestate.Cell[valve.State]
	ValveNotif    *corestate.Notification
	WaterMeter    *corestate.Cell[watermeter.State]
	WaterMeterNotif *corestate.Notification
	Battery       *corestate.Cell[battery.State]
	BatteryNotif  *corestate.Notification
	RemainingTime *corestate.Signal[keepalive.RemainingTime]
}

// Screen owns the deduplicated DrawRequest cell the draw engine renders
// from.
type Screen struct {
	DrawRequest *corestate.Cell[DrawRequest]
	src         Sources
	logger      *logging.ScopedLogger
}

// New constructs a Screen with the cell sealed to readers the caller
// wires before Process starts.
func New(src Sources, logger *logging.ScopedLogger) *Screen {
	return &Screen{
		DrawRequest: corestate.NewCell("screen.draw_request", DrawRequest{ActivePage: Summary}, nil, logger),
		src:         src,
		logger:      logger,
	}
}

// Seal finalizes the draw-request cell's subscriber list.
func (s *Screen) Seal() {
	s.DrawRequest.Seal()
}

// Process is the display process actor of spec.md §4.11: it selects on
// the button signal and the source notifications, folds the
// relevant field into the current draw request, and lets the state cell
// itself perform the "only dispatch if it actually differs" dedup.
func (s *Screen) Process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.src.Buttons.Chan():
			cmd, ok := s.src.Buttons.TryGet()
			if !ok {
				continue
			}
			s.applyButton(cmd)
		case <-s.src.ValveNotif.Chan():
			if !s.src.ValveNotif.TryGet() {
				continue
			}
			s.applyValve()
		case <-s.src.WaterMeterNotif.Chan():
			if !s.src.WaterMeterNotif.TryGet() {
				continue
			}
			s.applyWaterMeter()
		case <-s.src.BatteryNotif.Chan():
			if !s.src.BatteryNotif.TryGet() {
				continue
			}
			s.applyBattery()
		case <-s.src.RemainingTime.Chan():
			rt, ok := s.src.RemainingTime.TryGet()
			if !ok {
				continue
			}
			s.applyRemainingTime(rt)
		}
	}
}

func (s *Screen) applyButton(cmd button.Command) {
	s.DrawRequest.UpdateWith("screen.draw_request", func(dr DrawRequest) DrawRequest {
		switch cmd.Pressed {
		case button.Prev:
			dr.ActivePage = dr.ActivePage.Prev()
		case button.Next:
			dr.ActivePage = dr.ActivePage.Next()
		}
		return dr
	})
}

func (s *Screen) applyValve() {
	v := s.src.ValveState.Get()
	s.DrawRequest.UpdateWith("screen.draw_request", func(dr DrawRequest) DrawRequest {
		dr.ValveState = v
		dr.ValveKnown = true
		return dr
	})
}

func (s *Screen) applyWaterMeter() {
	wm := s.src.WaterMeter.Get()
	s.DrawRequest.UpdateWith("screen.draw_request", func(dr DrawRequest) DrawRequest {
		dr.WaterMeter = wm
		return dr
	})
}

func (s *Screen) applyBattery() {
	bat := s.src.Battery.Get()
	s.DrawRequest.UpdateWith("screen.draw_request", func(dr DrawRequest) DrawRequest {
		dr.Battery = bat
		return dr
	})
}

func (s *Screen) applyRemainingTime(rt keepalive.RemainingTime) {
	s.DrawRequest.UpdateWith("screen.draw_request", func(dr DrawRequest) DrawRequest {
		dr.RemainingTime = rt
		return dr
	})
}
