// pattern: Imperative Shell

// Command ruwmd is the water-meter/valve simulator daemon: it wires every
// reactive subsystem described by the core packages into one running
// process, then blocks until an activity timeout or a signal tells it to
// stop. A handful of companion subcommands (version, status) talk to a
// running daemon over its HTTP API instead of starting one.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/watermeter/ruwmd/internal/battery"
	"github.com/watermeter/ruwmd/internal/button"
	"github.com/watermeter/ruwmd/internal/config"
	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/emergency"
	"github.com/watermeter/ruwmd/internal/instance"
	"github.com/watermeter/ruwmd/internal/keepalive"
	"github.com/watermeter/ruwmd/internal/logging"
	"github.com/watermeter/ruwmd/internal/mqttbridge"
	"github.com/watermeter/ruwmd/internal/nvs"
	"github.com/watermeter/ruwmd/internal/peripherals"
	"github.com/watermeter/ruwmd/internal/retained"
	"github.com/watermeter/ruwmd/internal/screen"
	"github.com/watermeter/ruwmd/internal/valve"
	"github.com/watermeter/ruwmd/internal/watermeter"
	"github.com/watermeter/ruwmd/internal/webbroker"
	"github.com/watermeter/ruwmd/internal/wifi"
	"github.com/watermeter/ruwmd/internal/wmstats"
)

// version is overridden at release build time via -ldflags.
var version = "dev"

// flashWriteCycle is the wear-leveling gate of spec.md §4.3/§6: the
// water-meter edge count and its derived stats are only durably written
// to flash every Nth update, trading a few lost edges on power loss for
// flash lifetime.
const flashWriteCycle = 20

func main() {
	configDir := pflag.String("config-dir", "", "configuration directory (default: $XDG_CONFIG_HOME/ruwmd)")
	simulateUlpWake := pflag.Bool("simulate-ulp-wake", false, "run the boot-time emergency_close helper, as if the ULP coprocessor had tripped during deep sleep")
	pflag.Parse()

	dir := *configDir
	if dir == "" {
		dir = config.DefaultConfigDir()
	}

	switch pflag.Arg(0) {
	case "version":
		fmt.Println(version)
		return
	case "status":
		if err := runStatus(dir); err != nil {
			fmt.Fprintln(os.Stderr, "ruwmd status:", err)
			os.Exit(1)
		}
		return
	case "cleanup":
		if err := runCleanup(dir); err != nil {
			fmt.Fprintln(os.Stderr, "ruwmd cleanup:", err)
			os.Exit(1)
		}
		return
	}

	if err := runDaemon(dir, *simulateUlpWake); err != nil {
		fmt.Fprintln(os.Stderr, "ruwmd:", err)
		os.Exit(1)
	}
}

// runStatus implements "ruwmd status": discover a running instance and
// print its last-known valve/water-meter/battery state as JSON.
func runStatus(configDir string) error {
	cfg, err := config.LoadFromDir(configDir)
	if err != nil {
		return err
	}
	dataDir := dataDirFor(cfg, configDir)

	baseURL, err := instance.Discover(dataDir)
	if err != nil {
		return err
	}
	status, err := instance.NewClient(baseURL).Status()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

// runCleanup removes a stale lock/port file pair left behind by a daemon
// that didn't shut down cleanly. It refuses to touch a lock currently
// held by a live instance.
func runCleanup(configDir string) error {
	cfg, err := config.LoadFromDir(configDir)
	if err != nil {
		return err
	}
	dataDir := dataDirFor(cfg, configDir)

	fl, err := instance.Lock(dataDir)
	if err != nil {
		return fmt.Errorf("refusing to clean up: a ruwmd instance is still running: %w", err)
	}
	instance.Cleanup(dataDir, fl)
	fmt.Println("cleaned up stale instance files in", dataDir)
	return nil
}

func dataDirFor(cfg config.Config, configDir string) string {
	if cfg.DataDir == "" {
		return configDir
	}
	return config.ResolvePath(cfg.DataDir)
}

// runDaemon wires and runs the full reactive core until an OS signal or
// the keepalive policy decides to quit.
func runDaemon(configDir string, simulateUlpWake bool) error {
	cfg, err := config.LoadFromDir(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dataDir := dataDirFor(cfg, configDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	fl, err := instance.Lock(dataDir)
	if err != nil {
		return err
	}
	defer instance.Cleanup(dataDir, fl)

	logManager, err := logging.NewManager(logging.Config{
		FilePath: filepath.Join(dataDir, "ruwmd.log"),
		Level:    cfg.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("start logging: %w", err)
	}
	defer logManager.Close()

	logger := logManager.For("main")
	logger.Info("starting", "version", version, "data_dir", dataDir)

	baseCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	// --- (1) link peripheral handles ---
	//
	// This whole system is, by domain nature, a firmware simulator: there
	// is no physical device underneath, so the Fake* peripherals are not
	// test doubles here but the production "hardware" the daemon drives.
	clock := peripherals.RealClock{}
	valvePower := &peripherals.FakeOutputPin{}
	valveOpen := &peripherals.FakeOutputPin{}
	valveClose := &peripherals.FakeOutputPin{}
	batteryAdc := peripherals.NewFakeAdc(3000)
	batteryPower := peripherals.NewFakeInputPin()
	batteryPower.SetHigh(true)
	pulseCounter := peripherals.NewFakePulseCounter()
	pulseWakeup := &peripherals.FakePulseWakeup{}
	buttonPins := [3]*peripherals.FakeInputPin{
		peripherals.NewFakeInputPin(),
		peripherals.NewFakeInputPin(),
		peripherals.NewFakeInputPin(),
	}

	if simulateUlpWake {
		logger.Info("simulating ULP-tripped wakeup: closing valve before any cell exists")
		if err := valve.EmergencyClose(valvePower, valveOpen, valveClose, 2*time.Second); err != nil {
			logger.Error("emergency close failed", "error", err)
		}
	}

	// --- (2) recover persisted {valve, wm, wm_stats} ---
	region := retained.NewRegion()
	nvsStore, err := nvs.Open(dataDir, "WM")
	if err != nil {
		return fmt.Errorf("open nvs: %w", err)
	}

	valveStore := retained.NewSlot[valve.State](region, "valve")
	wmStore := corestate.NewCachingStore[watermeter.State](
		corestate.NewMemoryStore[watermeter.State](),
		corestate.NewWearLevelingStore[watermeter.State](nvs.NewKey[watermeter.State](nvsStore, "wm-state"), flashWriteCycle),
	)
	wmStatsStore := corestate.NewCachingStore[wmstats.State](
		corestate.NewMemoryStore[wmstats.State](),
		corestate.NewWearLevelingStore[wmstats.State](nvs.NewKey[wmstats.State](nvsStore, "wm-stats"), flashWriteCycle),
	)

	// --- (3) construct state cells and subsystems ---
	v := valve.New(valveStore, valvePower, valveOpen, valveClose, clock, logManager.For("valve"))
	wm := watermeter.New(wmStore, pulseWakeup, logManager.For("wm"))
	bat := battery.New(nil, logManager.For("battery"))
	stats := wmstats.New(wmStatsStore, logManager.For("wmstats"))
	wf := wifi.New(nil, logManager.For("wifi"))

	buttonCmd := corestate.NewSignal[button.Command]()
	screenButtons := corestate.NewSignal[button.Command]()

	kp := keepalive.New(3, clock)
	kpEvents := kp.Events()

	bridge := mqttbridge.New(mqttbridge.Config{
		BrokerURL: cfg.Mqtt.BrokerURL,
		ClientID:  cfg.Mqtt.ClientID,
		Prefix:    cfg.Mqtt.TopicPrefix,
		Username:  cfg.Mqtt.Username,
		Password:  cfg.Mqtt.Password,
	}, logManager.For("mqttbridge"))

	screenSrc := screen.Sources{
		Buttons:         screenButtons,
		ValveState:      v.State,
		ValveNotif:      v.State.Subscribe(),
		WaterMeter:      wm.State,
		WaterMeterNotif: wm.State.Subscribe(),
		Battery:         bat.State,
		BatteryNotif:    bat.State.Subscribe(),
		RemainingTime:   corestate.NewSignal[keepalive.RemainingTime](),
	}
	scr := screen.New(screenSrc, logManager.For("screen"))
	drawEngine := screen.NewDrawEngine(screen.NewRenderer(screen.DefaultFrameBuffer, screen.NewStyles(cfg.Theme)), scr.DrawRequest, logManager.For("screen.draw"))
	scr.Seal()

	mqttSrc := mqttbridge.Sources{
		Valve:           v.State,
		ValveNotif:      v.State.Subscribe(),
		WaterMeter:      wm.State,
		WaterMeterNotif: wm.State.Subscribe(),
		Battery:         bat.State,
		BatteryNotif:    bat.State.Subscribe(),
	}
	mqttPublishNotif := corestate.NewSignal[uint16]()
	mqttValveCommand := corestate.NewSignal[valve.Command]()
	mqttWmCommand := corestate.NewSignal[watermeter.Command]()

	webDeps := webbroker.Deps{
		ValveState:   v.State,
		ValveNotif:   v.State.Subscribe(),
		WmState:      wm.State,
		WmNotif:      wm.State.Subscribe(),
		BatState:     bat.State,
		BatNotif:     bat.State.Subscribe(),
		ValveCommand: v.Command,
		WmCommand:    wm.Command,
	}
	webServer := webbroker.New(webbroker.Config{
		Bind:         cfg.Web.Bind,
		Port:         cfg.Web.Port,
		MaxConns:     cfg.Web.MaxConnections,
		Authenticate: authenticator(cfg.Auth),
	}, webDeps, logManager)

	emergencyValveNotif := v.State.Subscribe()
	emergencyWmNotif := wm.State.Subscribe()
	emergencyBatteryNotif := bat.State.Subscribe()

	keepaliveValveNotif := v.State.Subscribe()
	keepaliveWmNotif := wm.State.Subscribe()
	wmStatsNotif := wm.State.Subscribe()

	// Cell subscriber registration is complete; freeze it per spec.md
	// §4.1's "construct state cells, populating each cell's subscriber
	// vector... then spawn actors".
	v.Seal()
	wm.Seal()
	bat.Seal()
	stats.Seal()

	// The MQTT receiver decodes commands onto its own signal instance;
	// relay it into v.Command/wm.Command, which webbroker and emergency
	// write to directly. v.Process/wm.ProcessCommands remain the sole
	// waiters on those signals.
	go forwardValveCommand(ctx, mqttValveCommand, v.Command)
	go forwardWmCommand(ctx, mqttWmCommand, wm.Command)
	go forwardButton(ctx, buttonCmd, screenButtons, kpEvents[0])

	go relayToKeepalive(ctx, keepaliveValveNotif, kpEvents[1])
	go relayToKeepalive(ctx, keepaliveWmNotif, kpEvents[2])

	kp.Watch(ctx)

	// --- config hot-reload ---
	reloads := make(chan config.Reloadable, 1)
	go func() {
		if err := config.Watch(ctx, configDir, reloads); err != nil && ctx.Err() == nil {
			logger.Warn("config watch stopped", "error", err)
		}
	}()
	go applyReloads(ctx, reloads, logger)

	high, highCtx := errgroup.WithContext(ctx)
	medium, mediumCtx := errgroup.WithContext(ctx)
	low, lowCtx := errgroup.WithContext(ctx)

	high.Go(func() error { v.Process(highCtx); return nil })
	high.Go(func() error { v.Spin(highCtx); return nil })
	high.Go(func() error { wm.ProcessPulses(highCtx, pulseCounter); return nil })
	high.Go(func() error { wm.ProcessCommands(highCtx); return nil })
	high.Go(func() error { bat.Process(highCtx, batteryAdc, batteryPower); return nil })
	high.Go(func() error {
		button.Watch(highCtx, button.Prev, buttonPins[0], buttonCmd)
		return nil
	})
	high.Go(func() error {
		button.Watch(highCtx, button.Next, buttonPins[1], buttonCmd)
		return nil
	})
	high.Go(func() error {
		button.Watch(highCtx, button.Action, buttonPins[2], buttonCmd)
		return nil
	})
	high.Go(func() error {
		emergency.Watch(highCtx, v.State, emergencyValveNotif, wm.State, emergencyWmNotif, bat.State, emergencyBatteryNotif, v.Command)
		return nil
	})

	quit := corestate.NewSignal[struct{}]()
	high.Go(func() error { kp.Run(highCtx, screenSrc.RemainingTime, quit); return nil })
	high.Go(func() error {
		select {
		case <-quit.Chan():
			quit.TryGet()
			logger.Info("keepalive timed out, shutting down")
			cancel()
		case <-highCtx.Done():
		}
		return nil
	})

	wifiChanged := corestate.NewNotification()
	applyWifiConfig(wf, cfg.Wifi, wifiChanged)

	medium.Go(func() error { scr.Process(mediumCtx); return nil })
	medium.Go(func() error { stats.Process(mediumCtx, wmStatsNotif, func() uint64 { return wm.State.Get().EdgesCount }, time.Now); return nil })
	medium.Go(func() error { wf.Process(mediumCtx, wifi.NewSimulated(), wifiChanged); return nil })
	medium.Go(func() error {
		if err := bridge.Connect(mediumCtx, bridge.ReceiveCallback(mediumCtx, mqttValveCommand, mqttWmCommand)); err != nil {
			logger.Warn("mqtt connect failed", "error", err)
		}
		<-mediumCtx.Done()
		return nil
	})
	medium.Go(func() error {
		ln, err := webServer.Listen()
		if err != nil {
			return err
		}
		if err := instance.WritePort(dataDir, ln.Addr().String()); err != nil {
			logger.Warn("write port file failed", "error", err)
		}
		err = webServer.Serve(mediumCtx, ln)
		if err != nil && mediumCtx.Err() != nil {
			return nil
		}
		return err
	})

	low.Go(func() error { drawEngine.Run(lowCtx); return nil })
	low.Go(func() error { bridge.RunSender(lowCtx, mqttSrc, mqttPublishNotif); return nil })

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = webServer.Shutdown(shutdownCtx)

	_ = high.Wait()
	_ = medium.Wait()
	_ = low.Wait()

	logger.Info("stopped")
	return nil
}

func authenticator(cfg config.AuthConfig) webbroker.Authenticator {
	return func(username, password string) (webbroker.Role, bool) {
		switch {
		case cfg.AdminUsername != "" && username == cfg.AdminUsername && password == cfg.AdminPassword:
			return webbroker.RoleAdmin, true
		case cfg.UserUsername != "" && username == cfg.UserUsername && password == cfg.UserPassword:
			return webbroker.RoleUser, true
		default:
			return webbroker.RoleNone, false
		}
	}
}

func applyWifiConfig(wf *wifi.Wifi, cfg config.WifiConfig, changed *corestate.Notification) {
	wf.Command.Signal(wifi.Command{SetConfiguration: wifi.Configuration{SSID: cfg.SSID, Password: cfg.Password}})
	changed.Notify()
	wf.Seal()
}

// forwardValveCommand is the sole waiter on src and relays every value to
// dst, so an external producer (here, the MQTT receiver) can feed the
// same valve.Command signal the webbroker and emergency policy write to
// directly without violating Signal's single-waiter contract.
func forwardValveCommand(ctx context.Context, src, dst *corestate.Signal[valve.Command]) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-src.Chan():
			if v, ok := src.TryGet(); ok {
				dst.Signal(v)
			}
		}
	}
}

func forwardWmCommand(ctx context.Context, src, dst *corestate.Signal[watermeter.Command]) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-src.Chan():
			if v, ok := src.TryGet(); ok {
				dst.Signal(v)
			}
		}
	}
}

// forwardButton is the sole waiter on raw button presses: it relays each
// press to the screen's own signal and counts it as keepalive activity.
func forwardButton(ctx context.Context, src, dst *corestate.Signal[button.Command], activity *corestate.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-src.Chan():
			if v, ok := src.TryGet(); ok {
				dst.Signal(v)
				activity.Notify()
			}
		}
	}
}

// relayToKeepalive is the sole waiter on a cell-change notification
// reserved for keepalive, forwarding every wake into the matching
// activity event.
func relayToKeepalive(ctx context.Context, src *corestate.Notification, activity *corestate.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-src.Chan():
			if src.TryGet() {
				activity.Notify()
			}
		}
	}
}

func applyReloads(ctx context.Context, reloads <-chan config.Reloadable, logger *logging.ScopedLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-reloads:
			logger.Info("config reloaded", "mqtt_broker", r.MqttBrokerURL, "web_bind", r.WebBind, "web_port", r.WebPort, "log_level", r.LogLevel)
		}
	}
}
