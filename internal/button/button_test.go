package button

import (
	"context"
	"testing"
	"time"

	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/peripherals"
)

func TestWatchEmitsPressedAfterDebounce(t *testing.T) {
	pin := peripherals.NewFakeInputPin()
	commands := corestate.NewSignal[Command]()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, Next, pin, commands)

	pin.SetHigh(true)
	pin.Trigger()

	cmd := commands.Wait()
	if cmd.Pressed != Next {
		t.Fatalf("expected Pressed(Next), got %+v", cmd)
	}
}

func TestWatchIgnoresReleaseBeforeDebounceCompletes(t *testing.T) {
	pin := peripherals.NewFakeInputPin()
	commands := corestate.NewSignal[Command]()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, Action, pin, commands)

	pin.SetHigh(true)
	pin.Trigger()
	go func() {
		time.Sleep(5 * time.Millisecond)
		pin.SetHigh(false)
	}()

	if _, ok := commands.TryGet(); ok {
		t.Fatalf("did not expect an immediate signal")
	}
	select {
	case <-commands.Chan():
		t.Fatalf("release before debounce window completes must not emit Pressed")
	case <-time.After(100 * time.Millisecond):
	}
}
