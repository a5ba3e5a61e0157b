// pattern: Imperative Shell

package mqttbridge

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/watermeter/ruwmd/internal/battery"
	"github.com/watermeter/ruwmd/internal/corestate"
	"github.com/watermeter/ruwmd/internal/logging"
	"github.com/watermeter/ruwmd/internal/valve"
	"github.com/watermeter/ruwmd/internal/watermeter"
)

// Config carries the compile-time-baked broker URL, client id and topic
// prefix of spec.md §6 ("MQTT broker URL and client id baked in").
type Config struct {
	BrokerURL string
	ClientID  string
	Prefix    string
	Username  string
	Password  string
}

// Bridge owns the autopaho connection manager and the connected flag the
// publisher and receiver actors share.
type Bridge struct {
	cfg    Config
	topics Topics
	logger *logging.ScopedLogger

	cm        *autopaho.ConnectionManager
	connected *corestate.Cell[bool]
}

// New constructs a Bridge. Connect must be called before Run{Sender,
// Receiver}.
func New(cfg Config, logger *logging.ScopedLogger) *Bridge {
	return &Bridge{
		cfg:       cfg,
		topics:    NewTopics(cfg.Prefix),
		logger:    logger,
		connected: corestate.NewCell("mqtt.connected", false, nil, logger),
	}
}

// Connect opens the autopaho connection manager with a last-will
// availability message and returns as soon as the manager is created;
// actual connect/reconnect happens in the background per autopaho's
// usual model. It returns an error only for an unparsable broker URL or
// a failure to create the manager.
func (b *Bridge) Connect(ctx context.Context, receive func(topic string, payload []byte)) error {
	brokerURL, err := url.Parse(b.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("mqttbridge: parse broker url: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: b.cfg.Username,
		ConnectPassword: []byte(b.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   b.topics.Availability(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  false,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.connected.Set(true)
			subCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, _ = cm.Subscribe(subCtx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: b.topics.CommandsFilter(), QoS: 1}},
			})
			_, _ = cm.Publish(subCtx, &paho.Publish{
				Topic: b.topics.Availability(), Payload: []byte("online"), QoS: 1, Retain: false,
			})
		},
		OnConnectError: func(err error) {
			b.connected.Set(false)
			if b.logger != nil {
				b.logger.Debug("mqtt connect error", "error", err)
			}
		},
		ClientConfig: paho.ClientConfig{
			ClientID: b.cfg.ClientID,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqttbridge: connect: %w", err)
	}
	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		receive(pr.Packet.Topic, pr.Packet.Payload)
		return true, nil
	})
	b.cm = cm
	return nil
}

// publish is a no-op that logs "skipping" while disconnected, per
// spec.md §4.9; otherwise it forwards to the connection manager and, for
// QoS >= AtLeastOnce publishes, returns the reason code of the broker's
// acknowledgement. The packet's message id is not returned.
func (b *Bridge) publish(ctx context.Context, p Publish) (uint16, bool) {
	if !b.connected.Get() {
		if b.logger != nil {
			b.logger.Debug("mqtt publish skipped: not connected", "topic", p.Topic)
		}
		return 0, false
	}
	res, err := b.cm.Publish(ctx, &paho.Publish{
		Topic:   p.Topic,
		Payload: p.Payload,
		QoS:     byte(p.QoS),
	})
	if err != nil {
		if b.logger != nil {
			b.logger.Debug("mqtt publish failed", "topic", p.Topic, "error", err)
		}
		return 0, false
	}
	if p.QoS >= AtLeastOnce && res != nil {
		return uint16(res.ReasonCode), true
	}
	return 0, false
}

// Sources bundles the three source cells the publisher subscribes per
// spec.md §4.9 (valve, water-meter, battery) with their notifications.
// The MQTT status notification is not part of it: RunSender subscribes
// to Bridge.connected itself.
type Sources struct {
	Valve      *corestate.Cell[valve.State]
	ValveNotif *corestate.Notification

	WaterMeter      *corestate.Cell[watermeter.State]
	WaterMeterNotif *corestate.Notification

	Battery      *corestate.Cell[battery.State]
	BatteryNotif *corestate.Notification
}

// RunSender runs the publisher actor: it wakes on any source notification
// and publishes only the diffs that changed since the last observed
// value. publishNotif receives the acknowledgement reason code of every
// successful QoS>=1 publish; no message id is signalled.
func (b *Bridge) RunSender(ctx context.Context, src Sources, publishNotif *corestate.Signal[uint16]) {
	statusNotif := b.connected.Subscribe()

	var lastValve valve.State
	var lastWm watermeter.State
	var lastBat battery.State

	for {
		select {
		case <-ctx.Done():
			return
		case <-src.ValveNotif.Chan():
			if !src.ValveNotif.TryGet() {
				continue
			}
			cur := src.Valve.Get()
			if p := b.topics.ValveDiff(lastValve, cur); p != nil {
				b.dispatch(ctx, *p, publishNotif)
			}
			lastValve = cur
		case <-src.WaterMeterNotif.Chan():
			if !src.WaterMeterNotif.TryGet() {
				continue
			}
			cur := src.WaterMeter.Get()
			for _, p := range b.topics.WaterMeterDiffs(lastWm, cur) {
				b.dispatch(ctx, p, publishNotif)
			}
			lastWm = cur
		case <-src.BatteryNotif.Chan():
			if !src.BatteryNotif.TryGet() {
				continue
			}
			cur := src.Battery.Get()
			for _, p := range b.topics.BatteryDiffs(lastBat, cur) {
				b.dispatch(ctx, p, publishNotif)
			}
			lastBat = cur
		case <-statusNotif.Chan():
			statusNotif.TryGet()
			// Connection status itself is not diff-published; it only
			// gates publish() above and drives the availability topic
			// set from OnConnectionUp/OnConnectError.
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, p Publish, publishNotif *corestate.Signal[uint16]) {
	id, ok := b.publish(ctx, p)
	if ok {
		publishNotif.Signal(id)
	}
}

// ReceiveCallback spawns the receiver actor and returns the callback
// Connect wants: every inbound publish this simulator sees arrives as a
// single complete fragment (the broker-side chunk assembly spec.md §4.9
// describes is for a transport this simulator doesn't need to split),
// so it is handed to the parser as ChunkDetails{Complete: true}.
// RunReceiver itself still reassembles genuine InitialChunk/
// SubsequentChunk sequences, exercised directly by its own tests.
func (b *Bridge) ReceiveCallback(ctx context.Context, valveCommand *corestate.Signal[valve.Command], wmCommand *corestate.Signal[watermeter.Command]) func(topic string, payload []byte) {
	incoming := make(chan receivedMessage, 16)
	go b.RunReceiver(ctx, incoming, valveCommand, wmCommand)
	return func(topic string, payload []byte) {
		msg := receivedMessage{topic: topic, details: ChunkDetails{Complete: true, Data: payload}}
		select {
		case incoming <- msg:
		case <-ctx.Done():
		}
	}
}

// RunReceiver runs the receiver actor: it reads fragments from incoming
// (fed by the callback ReceiveCallback returns, which Connect registers
// with the connection manager), feeds them into a MessageParser and
// dispatches completed commands to valveCommand and wmCommand.
func (b *Bridge) RunReceiver(ctx context.Context, incoming <-chan receivedMessage, valveCommand *corestate.Signal[valve.Command], wmCommand *corestate.Signal[watermeter.Command]) {
	parser := NewMessageParser(b.topics)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-incoming:
			cmd, ok := parser.Feed(msg.topic, msg.details)
			if !ok {
				continue
			}
			switch cmd.Kind {
			case KindValve:
				if cmd.Valve {
					valveCommand.Signal(valve.CmdOpen)
				} else {
					valveCommand.Signal(valve.CmdClose)
				}
			case KindFlowWatch:
				if cmd.FlowWatch {
					wmCommand.Signal(watermeter.CmdArm)
				} else {
					wmCommand.Signal(watermeter.CmdDisarm)
				}
			case KindKeepAlive:
				if b.logger != nil {
					b.logger.Debug("mqtt keep_alive command", "seconds", cmd.KeepAliveFor.Seconds())
				}
			case KindSystemUpdate:
				if b.logger != nil {
					b.logger.Debug("mqtt system_update command received")
				}
			}
		}
	}
}

// receivedMessage is one inbound publish fragment, handed from the
// transport's OnPublishReceived callback into RunReceiver's channel.
type receivedMessage struct {
	topic   string
	details ChunkDetails
}
