// pattern: Functional Core

// Package webbroker implements the WebSocket connection broker of
// spec.md §4.10: role-gated request dispatch and state-change fan-out
// over a single /ws endpoint, framed with a compact binary codec.
package webbroker

import (
	"github.com/watermeter/ruwmd/internal/battery"
	"github.com/watermeter/ruwmd/internal/valve"
	"github.com/watermeter/ruwmd/internal/watermeter"
)

// Role is the ordered trust level of spec.md §3: None < User < Admin.
type Role int

const (
	RoleNone Role = iota
	RoleUser
	RoleAdmin
)

// ConnectionID ascends monotonically as connections are accepted.
type ConnectionID uint32

// WebRequest is the single decoded unit per frame of spec.md §6.
type WebRequest struct {
	ID      uint32
	Payload WebRequestPayload
}

// RequestKind discriminates WebRequestPayload's sum.
type RequestKind int

const (
	ReqAuthenticate RequestKind = iota
	ReqLogout
	ReqValveCommand
	ReqValveStateRequest
	ReqWaterMeterCommand
	ReqWaterMeterStateRequest
	ReqBatteryStateRequest
	ReqWifiStatusRequest
)

// WebRequestPayload is the tagged union of inbound client requests.
type WebRequestPayload struct {
	Kind          RequestKind
	Username      string
	Password      string
	ValveCommand  valve.Command
	WmCommand     watermeter.Command
}

// MinRole returns the minimum role a payload requires, grounded on the
// original implementation's per-variant role table.
func (p WebRequestPayload) MinRole() Role {
	switch p.Kind {
	case ReqAuthenticate, ReqLogout:
		return RoleNone
	case ReqWifiStatusRequest:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// EventKind discriminates WebEvent's sum.
type EventKind int

const (
	EvtResponse EventKind = iota
	EvtAuthenticationFailed
	EvtRoleState
	EvtValveState
	EvtWaterMeterState
	EvtBatteryState
)

// WebEvent is the tagged union of outbound server events.
type WebEvent struct {
	Kind          EventKind
	Response      WebResponse
	Role          Role
	ValveState    valve.State
	ValveKnown    bool
	WaterMeter    watermeter.State
	Battery       battery.State
}

// MinRole returns the minimum role a connection needs to receive this
// event, mirroring WebRequestPayload.MinRole's grounding.
func (e WebEvent) MinRole() Role {
	switch e.Kind {
	case EvtResponse, EvtAuthenticationFailed, EvtRoleState:
		return RoleNone
	default:
		return RoleUser
	}
}

// WebResponse is Accepted(id) | Denied(id).
type WebResponse struct {
	ID       uint32
	Accepted bool
}

// Respond computes request.response(role): Accepted iff role is at
// least the payload's required minimum.
func Respond(req WebRequest, role Role) WebResponse {
	return WebResponse{ID: req.ID, Accepted: role >= req.Payload.MinRole()}
}
