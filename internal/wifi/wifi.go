// pattern: Imperative Shell

// Package wifi implements the Wi-Fi association glue of spec.md §1: a
// connectivity state cell refreshed on an external change notification,
// and a configuration command applied to the underlying association
// capability. Association itself, DHCP, and RSSI scanning are out of
// scope (spec.md §1 Non-goals) — this package only tracks "connected or
// not" and forwards configuration changes.
package wifi

import (
	"context"
	"sync"

	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/logging"
)

// Configuration is the SSID/credential pair the simulator associates
// with, standing in for the richer embedded_svc::wifi::Configuration the
// original targets.
type Configuration struct {
	SSID     string
	Password string
}

// Command is the Wifi's single command variant.
type Command struct {
	SetConfiguration Configuration
}

// State is the WifiState of spec.md §1: whether the device currently
// holds an association. Known/Connected is the flattened Option<bool>.
type State struct {
	Connected bool
	Known     bool
}

// Connectivity is the capability interface the association driver
// satisfies; out of scope per spec.md §1, named here only so the core
// can depend on it.
type Connectivity interface {
	IsConnected() (bool, error)
	SetConfiguration(cfg Configuration) error
}

// Simulated is the simulator build's Connectivity: it reports connected
// once a non-empty SSID has been configured, mirroring the lack of any
// real association handshake in this domain.
type Simulated struct {
	mu  sync.Mutex
	cfg Configuration
}

// NewSimulated returns a Simulated with no configuration applied yet.
func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) IsConnected() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.SSID != "", nil
}

func (s *Simulated) SetConfiguration(cfg Configuration) error {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// Wifi owns the connectivity state cell and the configuration command
// signal.
type Wifi struct {
	State   *corestate.Cell[State]
	Command *corestate.Signal[Command]
	logger  *logging.ScopedLogger
}

// New constructs a Wifi with an unknown initial connectivity state.
func New(store corestate.Store[State], logger *logging.ScopedLogger) *Wifi {
	return &Wifi{
		State:   corestate.NewCell("wifi.state", State{}, store, logger),
		Command: corestate.NewSignal[Command](),
		logger:  logger,
	}
}

// Seal finalizes the state cell's subscriber list.
func (w *Wifi) Seal() {
	w.State.Seal()
}

// Process mirrors the original's select-loop: on every external
// connectivity change it re-samples conn.IsConnected(); on every
// configuration command it applies the new configuration. Blocks until
// ctx is cancelled.
func (w *Wifi) Process(ctx context.Context, conn Connectivity, changed *corestate.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-changed.Chan():
			if !changed.TryGet() {
				continue
			}
			connected, err := conn.IsConnected()
			if err != nil {
				w.logger.Debug("wifi connectivity read failed", "error", err)
				continue
			}
			w.State.Set(State{Connected: connected, Known: true})
		case <-w.Command.Chan():
			cmd, ok := w.Command.TryGet()
			if !ok {
				continue
			}
			if err := conn.SetConfiguration(cmd.SetConfiguration); err != nil {
				w.logger.Debug("wifi set configuration failed", "error", err)
			}
		}
	}
}
