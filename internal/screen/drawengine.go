// pattern: Imperative Shell

package screen

import (
	"context"
	"sync"

	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/logging"
)

// DrawEngine is the Low-priority draw actor of spec.md §4.11: it wakes
// whenever the deduplicated DrawRequest cell changes and renders the new
// frame, keeping the last rendered string for the capability interface
// a caller (or a test) can read back.
type DrawEngine struct {
	mu       sync.RWMutex
	last     string
	renderer *Renderer
	cell     *corestate.Cell[DrawRequest]
	notif    *corestate.Notification
	logger   *logging.ScopedLogger
}

// NewDrawEngine wires a DrawEngine to the given Screen's draw-request
// cell via a fresh subscription; call before the cell's owner calls Seal.
func NewDrawEngine(renderer *Renderer, cell *corestate.Cell[DrawRequest], logger *logging.ScopedLogger) *DrawEngine {
	return &DrawEngine{
		renderer: renderer,
		cell:     cell,
		notif:    cell.Subscribe(),
		logger:   logger,
	}
}

// Run blocks, rendering each deduplicated DrawRequest until ctx is
// cancelled.
func (d *DrawEngine) Run(ctx context.Context) {
	d.render(d.cell.Get())
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.notif.Chan():
			if !d.notif.TryGet() {
				continue
			}
			d.render(d.cell.Get())
		}
	}
}

func (d *DrawEngine) render(req DrawRequest) {
	frame := d.renderer.Render(req)
	d.mu.Lock()
	d.last = frame
	d.mu.Unlock()
	if d.logger != nil {
		d.logger.Debug("frame rendered", "page", req.ActivePage.String())
	}
}

// LastFrame returns the most recently rendered frame content.
func (d *DrawEngine) LastFrame() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}
