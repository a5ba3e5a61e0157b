// pattern: Functional Core

// Package mqttbridge implements the MQTT publisher/receiver pair of
// spec.md §4.9: diff-only state publishing and a chunk-reassembling
// command parser, transported over github.com/eclipse/paho.golang.
package mqttbridge

// Topics builds the fixed topic set under a device-specific prefix.
type Topics struct {
	prefix string
}

func NewTopics(prefix string) Topics {
	return Topics{prefix: prefix}
}

func (t Topics) Valve() string          { return t.prefix + "/valve" }
func (t Topics) MeterEdges() string     { return t.prefix + "/meter/edges" }
func (t Topics) MeterArmed() string     { return t.prefix + "/meter/armed" }
func (t Topics) MeterLeak() string      { return t.prefix + "/meter/leak" }
func (t Topics) BatteryVoltage() string { return t.prefix + "/battery/voltage" }
func (t Topics) BatteryLow() string     { return t.prefix + "/battery/low" }
func (t Topics) BatteryCharged() string { return t.prefix + "/battery/charged" }
func (t Topics) Powered() string        { return t.prefix + "/powered" }
func (t Topics) Availability() string   { return t.prefix + "/availability" }

func (t Topics) CommandsFilter() string      { return t.prefix + "/commands/#" }
func (t Topics) CommandValve() string        { return t.prefix + "/commands/valve" }
func (t Topics) CommandFlowWatch() string    { return t.prefix + "/commands/flow_watch" }
func (t Topics) CommandKeepAlive() string    { return t.prefix + "/commands/keep_alive" }
func (t Topics) CommandSystemUpdate() string { return t.prefix + "/commands/system_update" }
