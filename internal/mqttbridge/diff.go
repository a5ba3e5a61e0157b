// pattern: Functional Core

package mqttbridge

import (
	"encoding/binary"

	"github.com/watermeter/ruwmd/internal/battery"
	"github.com/watermeter/ruwmd/internal/valve"
	"github.com/watermeter/ruwmd/internal/watermeter"
)

// QoS mirrors the handful of MQTT quality-of-service levels the bridge
// ever publishes at.
type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
)

// Publish is one outbound diff: a topic, payload and QoS, ready to hand
// to the transport.
type Publish struct {
	Topic   string
	Payload []byte
	QoS     QoS
}

func boolPayload(b bool) []byte {
	if b {
		return []byte("true")
	}
	return []byte("false")
}

// ValveDiff returns the publish for a valve state change, or nil if prev
// and cur carry the same phase (the signal fires per cell change, but
// the publisher only ever sees true diffs since Cell.Set already
// coalesces equal writes — this guard exists for direct unit testing).
func (t Topics) ValveDiff(prev, cur valve.State) *Publish {
	if prev.Phase == cur.Phase {
		return nil
	}
	return &Publish{Topic: t.Valve(), Payload: []byte(cur.Phase.String()), QoS: AtLeastOnce}
}

// WaterMeterDiffs returns every publish implied by a WaterMeterState
// change: edges, armed and leak are each evaluated independently.
func (t Topics) WaterMeterDiffs(prev, cur watermeter.State) []Publish {
	var out []Publish
	if prev.EdgesCount != cur.EdgesCount {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, cur.EdgesCount)
		out = append(out, Publish{Topic: t.MeterEdges(), Payload: buf, QoS: AtLeastOnce})
	}
	if prev.Armed != cur.Armed {
		out = append(out, Publish{Topic: t.MeterArmed(), Payload: boolPayload(cur.Armed), QoS: AtLeastOnce})
	}
	if prev.Leaking != cur.Leaking {
		out = append(out, Publish{Topic: t.MeterLeak(), Payload: boolPayload(cur.Leaking), QoS: AtLeastOnce})
	}
	return out
}

// BatteryDiffs returns every publish implied by a BatteryState change.
// The low/charged threshold crossings are evaluated independently of
// each other — a voltage trace can cross LOW and MAX in the same update
// (a synthetic jump) and both publish, at most once each, per the
// resolved design-note: thresholds are judged as distinct edges, not a
// single three-way state machine.
func (t Topics) BatteryDiffs(prev, cur battery.State) []Publish {
	var out []Publish
	if cur.VoltageKnown && prev.Voltage != cur.Voltage {
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, cur.Voltage)
		out = append(out, Publish{Topic: t.BatteryVoltage(), Payload: buf, QoS: AtMostOnce})
	}

	prevLow := prev.VoltageKnown && prev.Voltage <= battery.LowMillivolts
	curLow := cur.VoltageKnown && cur.Voltage <= battery.LowMillivolts
	if prevLow != curLow {
		out = append(out, Publish{Topic: t.BatteryLow(), Payload: boolPayload(curLow), QoS: AtLeastOnce})
	}

	prevCharged := prev.VoltageKnown && prev.Voltage >= battery.MaxMillivolts
	curCharged := cur.VoltageKnown && cur.Voltage >= battery.MaxMillivolts
	if prevCharged != curCharged {
		out = append(out, Publish{Topic: t.BatteryCharged(), Payload: boolPayload(curCharged), QoS: AtMostOnce})
	}

	if cur.PoweredKnown && prev.Powered != cur.Powered {
		out = append(out, Publish{Topic: t.Powered(), Payload: boolPayload(cur.Powered), QoS: AtMostOnce})
	}
	return out
}
