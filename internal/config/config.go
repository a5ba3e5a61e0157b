// pattern: Imperative Shell

// Package config loads and hot-reloads ruwmd's configuration file:
// Wi-Fi credentials, MQTT broker connection, the web broker's bind
// address, logging, and placeholder auth credentials.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the config.yaml root, matching spec.md §6's "config file"
// external interface.
type Config struct {
	Theme    string     `yaml:"theme"`
	LogLevel string     `yaml:"log_level"`
	DataDir  string     `yaml:"data_dir"`
	Wifi     WifiConfig `yaml:"wifi"`
	Mqtt     MqttConfig `yaml:"mqtt"`
	Web      WebConfig  `yaml:"web"`
	Auth     AuthConfig `yaml:"auth"`
}

// WifiConfig is the Wi-Fi association configuration applied at boot.
type WifiConfig struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
}

// MqttConfig configures the MQTT bridge's broker connection.
type MqttConfig struct {
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// WebConfig configures the WebSocket broker's HTTP listener.
type WebConfig struct {
	Bind           string `yaml:"bind"`
	Port           int    `yaml:"port"`
	MaxConnections int    `yaml:"max_connections"`
}

// AuthConfig holds the placeholder username/password credentials for the
// two non-anonymous roles (spec.md §1 Non-goal: no cryptographic
// authentication beyond this).
type AuthConfig struct {
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
	UserUsername  string `yaml:"user_username"`
	UserPassword  string `yaml:"user_password"`
}

// DefaultConfig returns the configuration used when no config.yaml is
// present or a field is left unset.
func DefaultConfig() Config {
	return Config{
		Theme:    "mocha",
		LogLevel: "info",
		Wifi:     WifiConfig{},
		Mqtt: MqttConfig{
			ClientID:    "ruwmd",
			TopicPrefix: "rwm",
		},
		Web: WebConfig{
			Bind:           "127.0.0.1",
			Port:           8080,
			MaxConnections: 2,
		},
	}
}

// Load reads config.yaml from the default config directory.
func Load() (Config, error) {
	return LoadFromDir(DefaultConfigDir())
}

// LoadFromDir reads config.yaml from the given directory.
func LoadFromDir(configDir string) (Config, error) {
	return LoadFrom(filepath.Join(configDir, "config.yaml"))
}

// LoadFrom reads and parses a specific config.yaml path. A missing file
// is not an error: it yields DefaultConfig().
func LoadFrom(configPath string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), err
	}

	if cfg.Theme == "" {
		cfg.Theme = "mocha"
	}
	if cfg.Mqtt.ClientID == "" {
		cfg.Mqtt.ClientID = "ruwmd"
	}
	if cfg.Mqtt.TopicPrefix == "" {
		cfg.Mqtt.TopicPrefix = "rwm"
	}
	if cfg.Web.MaxConnections == 0 {
		cfg.Web.MaxConnections = 2
	}

	return cfg, nil
}

// ResolvePathFunc expands a config-relative or ~-prefixed path.
type ResolvePathFunc func(string) string

// ResolvePath expands ~/... to the user's home directory; other paths
// pass through unchanged.
func ResolvePath(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/ruwmd, falling back to
// ~/.config/ruwmd.
func DefaultConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "ruwmd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "ruwmd")
	}
	return filepath.Join(home, ".config", "ruwmd")
}

// Reloadable is the subset of Config that hot-reloads without restarting
// the wiring topology (spec.md §4.1 "Scoping": topology itself is
// static). Watch delivers a Reloadable on every config.yaml change whose
// relevant fields actually differ from the last-seen value.
type Reloadable struct {
	MqttBrokerURL string
	MqttPrefix    string
	WebBind       string
	WebPort       int
	LogLevel      string
}

func toReloadable(c Config) Reloadable {
	return Reloadable{
		MqttBrokerURL: c.Mqtt.BrokerURL,
		MqttPrefix:    c.Mqtt.TopicPrefix,
		WebBind:       c.Web.Bind,
		WebPort:       c.Web.Port,
		LogLevel:      c.LogLevel,
	}
}

// Watch watches configDir/config.yaml for edits and sends a Reloadable
// on changes whenever the reloadable fields actually differ, following
// teacher's ProxyLogReader watch-directory-not-file pattern (the file
// may not exist yet, and editors often replace rather than write it in
// place) plus a polling safeguard for filesystems that don't deliver
// fsnotify events (network mounts, some containers). Blocks until ctx is
// cancelled.
func Watch(ctx context.Context, configDir string, out chan<- Reloadable) error {
	configPath := filepath.Join(configDir, "config.yaml")

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(configDir); err != nil {
		return fmt.Errorf("config: watch config dir: %w", err)
	}

	last, _ := LoadFrom(configPath)
	lastReloadable := toReloadable(last)

	reload := func() {
		cfg, err := LoadFrom(configPath)
		if err != nil {
			return
		}
		next := toReloadable(cfg)
		if next != lastReloadable {
			lastReloadable = next
			select {
			case out <- next:
			case <-ctx.Done():
			}
		}
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(configPath) {
				continue
			}
			reload()
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		case <-ticker.C:
			reload()
		}
	}
}
