// pattern: Functional Core + Imperative Shell

// Package wmstats implements the rolling pulse-snapshot subsystem of
// spec.md §4.4: fixed horizons tracked off the water-meter's edge count,
// rotated as wall-clock time crosses each horizon's next multiple.
package wmstats

import (
	"context"
	"time"

	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/logging"
)

// Horizons are the fixed snapshot intervals of spec.md §3, in seconds.
var Horizons = [8]int64{
	5 * 60,
	30 * 60,
	60 * 60,
	6 * 60 * 60,
	12 * 60 * 60,
	24 * 60 * 60,
	7 * 24 * 60 * 60,
	30 * 24 * 60 * 60,
}

// Snapshot is a single (time, edges) reading.
type Snapshot struct {
	TimeSecs   int64
	EdgesCount uint64
}

// Measurement is the rotated interval recorded once a horizon comes due.
type Measurement struct {
	Start Snapshot
	End   Snapshot
}

// State is the WaterMeterStatsState of spec.md §3: one snapshot per fixed
// horizon, plus the installation and most-recent snapshots.
type State struct {
	Installation Snapshot
	MostRecent   Snapshot
	Snapshots    [8]Snapshot
	Measurements [8]Measurement
}

// update applies the spec.md §4.4 rotation routine: set most_recent, then
// for each horizon whose stored snapshot falls in a different multiple of
// H than now, rotate a Measurement and advance the snapshot.
func update(s State, edges uint64, nowSecs int64) State {
	s.MostRecent = Snapshot{TimeSecs: nowSecs, EdgesCount: edges}
	if s.Installation == (Snapshot{}) {
		s.Installation = s.MostRecent
	}
	for i, h := range Horizons {
		prev := s.Snapshots[i]
		if due(prev.TimeSecs, nowSecs, h) {
			s.Measurements[i] = Measurement{Start: prev, End: s.MostRecent}
			s.Snapshots[i] = s.MostRecent
		}
	}
	return s
}

func due(prevSecs, nowSecs, horizon int64) bool {
	if horizon <= 0 {
		return false
	}
	return prevSecs/horizon != nowSecs/horizon
}

const pollInterval = 10 * time.Second

// Stats owns the STATE cell and the actor that rotates it.
type Stats struct {
	State *corestate.Cell[State]

	logger *logging.ScopedLogger
}

// New constructs a Stats subsystem. store may be nil for a pure in-memory
// cell or a retained-memory-backed Store per spec.md §6.
func New(store corestate.Store[State], logger *logging.ScopedLogger) *Stats {
	st := &Stats{logger: logger}
	st.State = corestate.NewCell("wm_stats.state", State{}, store, logger)
	return st
}

// Seal finalizes subscriber registration on State.
func (st *Stats) Seal() {
	st.State.Seal()
}

// EdgesReader reads the water meter's current edge count.
type EdgesReader func() uint64

// Process runs the wmstats actor: it wakes on wmStateNotif or every
// pollInterval, whichever first, and folds the current edge count into
// STATE via the update routine.
func (st *Stats) Process(ctx context.Context, wmStateNotif *corestate.Notification, edges EdgesReader, now func() time.Time) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wmStateNotif.Chan():
			if !wmStateNotif.TryGet() {
				continue
			}
			st.tick(edges, now)
		case <-ticker.C:
			st.tick(edges, now)
		}
	}
}

func (st *Stats) tick(edges EdgesReader, now func() time.Time) {
	e := edges()
	nowSecs := now().Unix()
	st.State.UpdateWith("update", func(s State) State {
		return update(s, e, nowSecs)
	})
}
