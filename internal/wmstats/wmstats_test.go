package wmstats

import "testing"

func TestUpdateSetsInstallationOnce(t *testing.T) {
	s := update(State{}, 10, 100)
	if s.Installation != (Snapshot{TimeSecs: 100, EdgesCount: 10}) {
		t.Fatalf("expected installation snapshot set, got %+v", s.Installation)
	}

	s = update(s, 20, 200)
	if s.Installation != (Snapshot{TimeSecs: 100, EdgesCount: 10}) {
		t.Fatalf("installation snapshot must not move, got %+v", s.Installation)
	}
	if s.MostRecent != (Snapshot{TimeSecs: 200, EdgesCount: 20}) {
		t.Fatalf("expected most recent updated, got %+v", s.MostRecent)
	}
}

func TestUpdateRotatesHorizonWhenDue(t *testing.T) {
	// 5-minute horizon is Horizons[0] = 300s.
	s := update(State{}, 0, 0)
	s = update(s, 1, 250) // still within [0,300)
	if s.Measurements[0] != (Measurement{}) {
		t.Fatalf("horizon must not rotate before crossing a multiple, got %+v", s.Measurements[0])
	}

	s = update(s, 2, 310) // crosses into [300,600)
	want := Measurement{Start: Snapshot{TimeSecs: 0, EdgesCount: 0}, End: Snapshot{TimeSecs: 310, EdgesCount: 2}}
	if s.Measurements[0] != want {
		t.Fatalf("expected rotation %+v, got %+v", want, s.Measurements[0])
	}
	if s.Snapshots[0] != (Snapshot{TimeSecs: 310, EdgesCount: 2}) {
		t.Fatalf("expected snapshot advanced, got %+v", s.Snapshots[0])
	}
}

func TestDueCrossesMultipleBoundary(t *testing.T) {
	if due(0, 299, 300) {
		t.Fatalf("299 must not be due against a 300s horizon started at 0")
	}
	if !due(0, 300, 300) {
		t.Fatalf("300 must be due against a 300s horizon started at 0")
	}
	if due(300, 599, 300) {
		t.Fatalf("599 must not be due against a 300s horizon started at 300")
	}
}
