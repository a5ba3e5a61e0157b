// pattern: Imperative Shell

package webbroker

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/watermeter/ruwmd/internal/battery"
	"github.com/watermeter/ruwmd/internal/logging"
	"github.com/watermeter/ruwmd/internal/valve"
	"github.com/watermeter/ruwmd/internal/watermeter"
)

//go:embed frontend/index.html
var frontendFS embed.FS

// Config holds the broker's HTTP server configuration.
type Config struct {
	Bind        string
	Port        int
	MaxConns    int
	Authenticate Authenticator
}

// Server binds a Broker to a real listener, mirroring the teacher's
// Listen/Serve/Shutdown split so the bound port is known before Serve
// blocks (useful with Port 0 in tests).
type Server struct {
	httpServer *http.Server
	broker     *Broker
	logger     *logging.ScopedLogger
	addr       string
	listener   net.Listener
}

// New wires a Server around a fresh Broker connected to deps.
func New(cfg Config, deps Deps, logProvider logging.LoggerProvider) *Server {
	logger := logProvider.For("webbroker")
	addr := fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port)

	broker := NewBroker(cfg.MaxConns, cfg.Authenticate, deps, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /api/state", handleState(deps))
	mux.HandleFunc("GET /ws", broker.ServeHTTP)
	mux.Handle("/", spaHandler(logger))

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		broker: broker,
		logger: logger,
		addr:   addr,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// stateSnapshot is the JSON body served at GET /api/state, the CLI
// companion's "ruwmd status" data source.
type stateSnapshot struct {
	Valve      valve.State      `json:"valve"`
	WaterMeter watermeter.State `json:"water_meter"`
	Battery    battery.State    `json:"battery"`
}

func handleState(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := stateSnapshot{
			Valve:      deps.ValveState.Get(),
			WaterMeter: deps.WmState.Get(),
			Battery:    deps.BatState.Get(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	}
}

func spaHandler(logger *logging.ScopedLogger) http.Handler {
	fileServer := http.FileServer(http.FS(mustSub(frontendFS, logger)))
	return fileServer
}

func mustSub(f embed.FS, logger *logging.ScopedLogger) fs.FS {
	sub, err := fs.Sub(f, "frontend")
	if err != nil {
		logger.Error("failed to create frontend sub filesystem", "error", err)
		return f
	}
	return sub
}

// Listen binds the server's address and returns the listener.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("webbroker: listen: %w", err)
	}
	s.listener = ln
	return ln, nil
}

// Serve accepts connections on ln and blocks until the server stops.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.broker.Run(ctx)
	s.logger.Info("webbroker server started", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Start binds and serves in one call, blocking until the server stops.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Addr returns the bound address, valid after Listen or Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("webbroker server shutting down")
	return s.httpServer.Shutdown(ctx)
}
