// pattern: Functional Core

package screen

import (
	"github.com/watermeter/ruwmd/internal/battery"
	"github.com/watermeter/ruwmd/internal/keepalive"
	"github.com/watermeter/ruwmd/internal/valve"
	"github.com/watermeter/ruwmd/internal/watermeter"
)

// DrawRequest is the active page plus a snapshot of every source the
// display can show. It is comparable so a state cell can dedup it for
// free: a new snapshot that renders identically to the last one never
// reaches the draw engine.
type DrawRequest struct {
	ActivePage    Page
	ValveState    valve.State
	ValveKnown    bool
	WaterMeter    watermeter.State
	Battery       battery.State
	RemainingTime keepalive.RemainingTime
}
