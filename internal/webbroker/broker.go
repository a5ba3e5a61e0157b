// pattern: Imperative Shell

package webbroker

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/watermeter/ruwmd/internal/battery"
	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/logging"
	"github.com/watermeter/ruwmd/internal/valve"
	"github.com/watermeter/ruwmd/internal/watermeter"
)

// frameSizeLimit is the per-frame bound of spec.md §4.10 ("default 512 B").
const frameSizeLimit = 512

// Authenticator validates credentials and returns the role granted, or
// false if the credentials were rejected.
type Authenticator func(username, password string) (Role, bool)

// connection is one accepted client: its outbound sender and current
// role. Reads happen on the connection's own goroutine; role and send
// are only ever touched from the broker's single dispatch loop once the
// connection has registered, keeping the "moved in/out of its slot"
// ownership spec.md §5 describes.
type connection struct {
	id   ConnectionID
	role Role
	send chan []byte
	conn *websocket.Conn
}

// Broker multiplexes up to maxConnections WebSocket clients per
// spec.md §4.10.
type Broker struct {
	mu            sync.Mutex
	connections   map[ConnectionID]*connection
	nextID        ConnectionID
	maxConns      int
	auth          Authenticator
	logger        *logging.ScopedLogger

	valveState *corestate.Cell[valve.State]
	valveNotif *corestate.Notification
	wmState    *corestate.Cell[watermeter.State]
	wmNotif    *corestate.Notification
	batState   *corestate.Cell[battery.State]
	batNotif   *corestate.Notification

	valveCommand *corestate.Signal[valve.Command]
	wmCommand    *corestate.Signal[watermeter.Command]

	inbound chan inboundRequest
}

type inboundRequest struct {
	connID ConnectionID
	req    WebRequest
}

// Deps bundles the source cells and command signals the broker forwards
// to and reads from.
type Deps struct {
	ValveState *corestate.Cell[valve.State]
	ValveNotif *corestate.Notification
	WmState    *corestate.Cell[watermeter.State]
	WmNotif    *corestate.Notification
	BatState   *corestate.Cell[battery.State]
	BatNotif   *corestate.Notification

	ValveCommand *corestate.Signal[valve.Command]
	WmCommand    *corestate.Signal[watermeter.Command]
}

// NewBroker constructs a Broker. maxConns bounds simultaneous clients
// (spec.md: default 2, up to 16).
func NewBroker(maxConns int, auth Authenticator, deps Deps, logger *logging.ScopedLogger) *Broker {
	if maxConns <= 0 || maxConns > 16 {
		maxConns = 2
	}
	return &Broker{
		connections:  make(map[ConnectionID]*connection),
		maxConns:     maxConns,
		auth:         auth,
		logger:       logger,
		valveState:   deps.ValveState,
		valveNotif:   deps.ValveNotif,
		wmState:      deps.WmState,
		wmNotif:      deps.WmNotif,
		batState:     deps.BatState,
		batNotif:     deps.BatNotif,
		valveCommand: deps.ValveCommand,
		wmCommand:    deps.WmCommand,
		inbound:      make(chan inboundRequest, 64),
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection. Binary frames only; the accept loop itself never blocks
// the central dispatch loop — each connection reads on its own
// goroutine and forwards decoded requests into a shared channel.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, nil)
	if err != nil {
		if b.logger != nil {
			b.logger.Debug("websocket accept failed", "error", err)
		}
		return
	}
	wsConn.SetReadLimit(frameSizeLimit)

	b.mu.Lock()
	if len(b.connections) >= b.maxConns {
		b.mu.Unlock()
		_ = wsConn.Close(websocket.StatusPolicyViolation, "too many connections")
		return
	}
	id := b.nextID
	b.nextID++
	c := &connection{id: id, role: RoleNone, send: make(chan []byte, 16), conn: wsConn}
	b.connections[id] = c
	b.mu.Unlock()

	b.sendSnapshot(c)

	ctx := r.Context()
	go b.writePump(ctx, c)
	b.readPump(ctx, c)

	b.mu.Lock()
	delete(b.connections, id)
	b.mu.Unlock()
	close(c.send)
}

func (b *Broker) writePump(ctx context.Context, c *connection) {
	for data := range c.send {
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := c.conn.Write(writeCtx, websocket.MessageBinary, data)
		cancel()
		if err != nil {
			return
		}
	}
}

// readPump decodes exactly one WebRequest per frame, per spec.md §4.10.
// Text frames, fragmented frames, or undecodable binary frames drop the
// connection; ping/pong are handled transparently by the library; close
// ends the loop.
func (b *Broker) readPump(ctx context.Context, c *connection) {
	for {
		msgType, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if msgType != websocket.MessageBinary {
			_ = c.conn.Close(websocket.StatusUnsupportedData, "binary frames only")
			return
		}
		req, err := DecodeRequest(data)
		if err != nil {
			_ = c.conn.Close(websocket.StatusUnsupportedData, "undecodable frame")
			return
		}
		select {
		case b.inbound <- inboundRequest{connID: c.id, req: req}:
		case <-ctx.Done():
			return
		}
	}
}

// Run is the central dispatch loop: it selects on inbound requests and
// the three source notifications simultaneously, so accepting new
// connections (handled by ServeHTTP's own goroutines) never starves
// dispatch and vice versa. Blocks until ctx is cancelled.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ir := <-b.inbound:
			b.handleRequest(ir)
		case <-b.valveNotif.Chan():
			if b.valveNotif.TryGet() {
				b.broadcastValve()
			}
		case <-b.wmNotif.Chan():
			if b.wmNotif.TryGet() {
				b.broadcastWaterMeter()
			}
		case <-b.batNotif.Chan():
			if b.batNotif.TryGet() {
				b.broadcastBattery()
			}
		}
	}
}

func (b *Broker) handleRequest(ir inboundRequest) {
	b.mu.Lock()
	c, ok := b.connections[ir.connID]
	b.mu.Unlock()
	if !ok {
		return
	}

	resp := Respond(ir.req, c.role)
	b.unicast(c, WebEvent{Kind: EvtResponse, Response: resp})
	if !resp.Accepted {
		return
	}

	switch ir.req.Payload.Kind {
	case ReqAuthenticate:
		role, ok := b.authenticate(ir.req.Payload.Username, ir.req.Payload.Password)
		if !ok {
			b.unicast(c, WebEvent{Kind: EvtAuthenticationFailed})
			return
		}
		c.role = role
		b.sendSnapshot(c)
	case ReqLogout:
		c.role = RoleNone
		b.unicast(c, WebEvent{Kind: EvtRoleState, Role: RoleNone})
	case ReqValveCommand:
		b.valveCommand.Signal(ir.req.Payload.ValveCommand)
	case ReqWaterMeterCommand:
		b.wmCommand.Signal(ir.req.Payload.WmCommand)
	case ReqValveStateRequest:
		s := b.valveState.Get()
		b.unicast(c, WebEvent{Kind: EvtValveState, ValveState: s, ValveKnown: true})
	case ReqWaterMeterStateRequest:
		b.unicast(c, WebEvent{Kind: EvtWaterMeterState, WaterMeter: b.wmState.Get()})
	case ReqBatteryStateRequest:
		b.unicast(c, WebEvent{Kind: EvtBatteryState, Battery: b.batState.Get()})
	}
}

func (b *Broker) authenticate(username, password string) (Role, bool) {
	if b.auth == nil {
		return RoleNone, false
	}
	return b.auth(username, password)
}

// sendSnapshot sends RoleState, ValveState, WaterMeterState and
// BatteryState, filtered by the connection's current role.
func (b *Broker) sendSnapshot(c *connection) {
	b.unicast(c, WebEvent{Kind: EvtRoleState, Role: c.role})
	b.unicast(c, WebEvent{Kind: EvtValveState, ValveState: b.valveState.Get(), ValveKnown: true})
	b.unicast(c, WebEvent{Kind: EvtWaterMeterState, WaterMeter: b.wmState.Get()})
	b.unicast(c, WebEvent{Kind: EvtBatteryState, Battery: b.batState.Get()})
}

func (b *Broker) unicast(c *connection, e WebEvent) {
	if c.role < e.MinRole() {
		return
	}
	data, err := EncodeEvent(e)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		// Send buffer overflow: drop this connection rather than block
		// the dispatch loop, per spec.md §5's backpressure policy.
		_ = c.conn.Close(websocket.StatusPolicyViolation, "send buffer overflow")
	}
}

func (b *Broker) broadcast(e WebEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.connections {
		b.unicast(c, e)
	}
}

func (b *Broker) broadcastValve() {
	b.broadcast(WebEvent{Kind: EvtValveState, ValveState: b.valveState.Get(), ValveKnown: true})
}

func (b *Broker) broadcastWaterMeter() {
	b.broadcast(WebEvent{Kind: EvtWaterMeterState, WaterMeter: b.wmState.Get()})
}

func (b *Broker) broadcastBattery() {
	b.broadcast(WebEvent{Kind: EvtBatteryState, Battery: b.batState.Get()})
}
