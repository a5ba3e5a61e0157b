// pattern: Functional Core

package webbroker

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/watermeter/ruwmd/internal/battery"
	"github.com/watermeter/ruwmd/internal/valve"
	"github.com/watermeter/ruwmd/internal/watermeter"
)

func intToValveCommand(n int) valve.Command {
	if n == int(valve.CmdClose) {
		return valve.CmdClose
	}
	return valve.CmdOpen
}

func intToWmCommand(n int) watermeter.Command {
	switch n {
	case int(watermeter.CmdDisarm):
		return watermeter.CmdDisarm
	case int(watermeter.CmdClearLeak):
		return watermeter.CmdClearLeak
	default:
		return watermeter.CmdArm
	}
}

// wireRequest and wireEvent are the msgpack-serializable shapes of
// WebRequest/WebEvent — a flat struct rather than the tagged union
// directly, since msgpack has no native sum-type support; Kind selects
// which fields are meaningful, mirroring how the original's postcard
// encoding tags an enum discriminant ahead of its payload.
type wireRequest struct {
	ID       uint32
	Kind     RequestKind
	Username string
	Password string
	ValveCmd int
	WmCmd    int
}

type wireEvent struct {
	Kind         EventKind
	RespID       uint32
	RespAccepted bool
	Role         Role
	ValvePhase   int
	ValveSince   int64
	ValveKnown   bool
	WmEdges      uint64
	WmArmed      bool
	WmLeaking    bool
	BatVoltage   uint16
	BatVKnown    bool
	BatPowered   bool
	BatPKnown    bool
}

func valveCommandToInt(c valve.Command) int {
	return int(c)
}

func wmCommandToInt(c watermeter.Command) int {
	return int(c)
}

// EncodeRequest serializes a WebRequest into a binary frame.
func EncodeRequest(req WebRequest) ([]byte, error) {
	w := wireRequest{
		ID:       req.ID,
		Kind:     req.Payload.Kind,
		Username: req.Payload.Username,
		Password: req.Payload.Password,
		ValveCmd: valveCommandToInt(req.Payload.ValveCommand),
		WmCmd:    wmCommandToInt(req.Payload.WmCommand),
	}
	data, err := msgpack.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("webbroker: encode request: %w", err)
	}
	return data, nil
}

// DecodeEvent deserializes exactly one WebEvent from a binary frame.
func DecodeEvent(frame []byte) (WebEvent, error) {
	var w wireEvent
	if err := msgpack.Unmarshal(frame, &w); err != nil {
		return WebEvent{}, fmt.Errorf("webbroker: decode event: %w", err)
	}
	return WebEvent{
		Kind:     w.Kind,
		Response: WebResponse{ID: w.RespID, Accepted: w.RespAccepted},
		Role:     w.Role,
		ValveState: valve.State{
			Phase:     valve.Phase(w.ValvePhase),
			SinceMsec: w.ValveSince,
		},
		ValveKnown: w.ValveKnown,
		WaterMeter: watermeter.State{
			EdgesCount: w.WmEdges,
			Armed:      w.WmArmed,
			Leaking:    w.WmLeaking,
		},
		Battery: battery.State{
			Voltage:      w.BatVoltage,
			VoltageKnown: w.BatVKnown,
			Powered:      w.BatPowered,
			PoweredKnown: w.BatPKnown,
		},
	}, nil
}

// DecodeRequest deserializes exactly one WebRequest from a binary frame.
func DecodeRequest(frame []byte) (WebRequest, error) {
	var w wireRequest
	if err := msgpack.Unmarshal(frame, &w); err != nil {
		return WebRequest{}, fmt.Errorf("webbroker: decode request: %w", err)
	}
	return WebRequest{
		ID: w.ID,
		Payload: WebRequestPayload{
			Kind:         w.Kind,
			Username:     w.Username,
			Password:     w.Password,
			ValveCommand: intToValveCommand(w.ValveCmd),
			WmCommand:    intToWmCommand(w.WmCmd),
		},
	}, nil
}

// EncodeEvent serializes a WebEvent into a binary frame.
func EncodeEvent(e WebEvent) ([]byte, error) {
	w := wireEvent{
		Kind:         e.Kind,
		RespID:       e.Response.ID,
		RespAccepted: e.Response.Accepted,
		Role:         e.Role,
		ValvePhase:   int(e.ValveState.Phase),
		ValveSince:   e.ValveState.SinceMsec,
		ValveKnown:   e.ValveKnown,
		WmEdges:      e.WaterMeter.EdgesCount,
		WmArmed:      e.WaterMeter.Armed,
		WmLeaking:    e.WaterMeter.Leaking,
		BatVoltage:   e.Battery.Voltage,
		BatVKnown:    e.Battery.VoltageKnown,
		BatPowered:   e.Battery.Powered,
		BatPKnown:    e.Battery.PoweredKnown,
	}
	data, err := msgpack.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("webbroker: encode event: %w", err)
	}
	return data, nil
}
