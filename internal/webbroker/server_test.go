package webbroker

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/watermeter/ruwmd/internal/battery"
	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/logging"
	"github.com/watermeter/ruwmd/internal/valve"
	"github.com/watermeter/ruwmd/internal/watermeter"
)

func newTestDeps() Deps {
	valveState := corestate.NewCell("valve", valve.State{Phase: valve.Closed}, nil, nil)
	valveNotif := valveState.Subscribe()
	wmState := corestate.NewCell("wm", watermeter.State{}, nil, nil)
	wmNotif := wmState.Subscribe()
	batState := corestate.NewCell("battery", battery.State{}, nil, nil)
	batNotif := batState.Subscribe()
	valveState.Seal()
	wmState.Seal()
	batState.Seal()
	return Deps{
		ValveState:   valveState,
		ValveNotif:   valveNotif,
		WmState:      wmState,
		WmNotif:      wmNotif,
		BatState:     batState,
		BatNotif:     batNotif,
		ValveCommand: corestate.NewSignal[valve.Command](),
		WmCommand:    corestate.NewSignal[watermeter.Command](),
	}
}

func newTestWebServer(t *testing.T) *Server {
	t.Helper()
	lm := logging.NewTestLogManager(10)
	t.Cleanup(func() { _ = lm.Close() })
	return New(Config{Bind: "127.0.0.1", Port: 0, MaxConns: 2, Authenticate: testAuth}, newTestDeps(), lm)
}

func TestServerHealthEndpoint(t *testing.T) {
	s := newTestWebServer(t)
	ln, err := s.Listen()
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutdownCancel()
		_ = s.Shutdown(shutdownCtx)
		<-done
	})

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"status":"ok"}` {
		t.Errorf("body = %q", body)
	}
}

func TestServerServesSPAFallback(t *testing.T) {
	s := newTestWebServer(t)
	ln, err := s.Listen()
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutdownCancel()
		_ = s.Shutdown(shutdownCtx)
		<-done
	})

	resp, err := http.Get("http://" + s.Addr() + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
