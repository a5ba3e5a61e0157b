package mqttbridge

import (
	"testing"

	"github.com/watermeter/ruwmd/internal/battery"
	"github.com/watermeter/ruwmd/internal/valve"
	"github.com/watermeter/ruwmd/internal/watermeter"
)

var topics = NewTopics("rwm")

// TestValveDiffPublishing is spec.md §8 scenario 5: publish valve=Open,
// then Open again, then Closing. Expect publishes ["open","closing"]
// with "open" occurring once.
func TestValveDiffPublishing(t *testing.T) {
	var payloads []string
	states := []valve.State{
		{Phase: valve.Open},
		{Phase: valve.Open},
		{Phase: valve.Closing},
	}
	prev := valve.State{Phase: valve.Unknown}
	for _, cur := range states {
		if p := topics.ValveDiff(prev, cur); p != nil {
			payloads = append(payloads, string(p.Payload))
		}
		prev = cur
	}
	if len(payloads) != 2 || payloads[0] != "open" || payloads[1] != "closing" {
		t.Fatalf(`expected ["open","closing"], got %v`, payloads)
	}
}

func TestValveDiffNilOnNoChange(t *testing.T) {
	if p := topics.ValveDiff(valve.State{Phase: valve.Open}, valve.State{Phase: valve.Open}); p != nil {
		t.Fatalf("expected nil diff for unchanged phase, got %+v", p)
	}
}

func TestWaterMeterDiffsOnlyChangedFields(t *testing.T) {
	prev := watermeter.State{EdgesCount: 10, Armed: false, Leaking: false}
	cur := watermeter.State{EdgesCount: 11, Armed: true, Leaking: false}
	diffs := topics.WaterMeterDiffs(prev, cur)
	if len(diffs) != 2 {
		t.Fatalf("expected 2 diffs (edges, armed), got %d: %+v", len(diffs), diffs)
	}
}

func TestBatteryLowAndChargedAreIndependentEdges(t *testing.T) {
	prev := battery.State{Voltage: 2800, VoltageKnown: true}
	cur := battery.State{Voltage: battery.LowMillivolts, VoltageKnown: true}
	diffs := topics.BatteryDiffs(prev, cur)

	foundLow := false
	for _, d := range diffs {
		if d.Topic == topics.BatteryLow() {
			foundLow = true
			if string(d.Payload) != "true" {
				t.Fatalf("expected low=true payload, got %q", d.Payload)
			}
		}
		if d.Topic == topics.BatteryCharged() {
			t.Fatalf("crossing LOW must not also cross MAX")
		}
	}
	if !foundLow {
		t.Fatalf("expected a battery/low publish when crossing into LOW, got %+v", diffs)
	}
}

func TestBatteryVoltageAtExactThresholds(t *testing.T) {
	prev := battery.State{Voltage: 2900, VoltageKnown: true}
	curLow := battery.State{Voltage: battery.LowMillivolts, VoltageKnown: true}
	diffs := topics.BatteryDiffs(prev, curLow)
	var lowPayload string
	for _, d := range diffs {
		if d.Topic == topics.BatteryLow() {
			lowPayload = string(d.Payload)
		}
	}
	if lowPayload != "true" {
		t.Fatalf("voltage==LOW must cross into the low state, got diffs=%+v", diffs)
	}
}
