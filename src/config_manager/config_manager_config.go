package config_manager

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config represents the main configuration for the reachability daemon.
type Config struct {
	ConfigVersion string         `json:"config_version"`
	LogLevel      string         `json:"log_level"`
	Targets       []TargetConfig `json:"targets"`
	Device        DeviceConfig   `json:"device"`
	Netwatch      NetwatchConfig `json:"netwatch"`
	CLI           CLIConfig      `json:"cli"`
	Announce      AnnounceConfig `json:"announce"`
}

// TargetConfig names one watched destination. Exactly one of Hostname,
// Address and DefaultRoute must be set.
type TargetConfig struct {
	Name         string `json:"name"`
	Hostname     string `json:"hostname,omitempty"`
	Address      string `json:"address,omitempty"`
	DefaultRoute bool   `json:"default_route,omitempty"`
}

// Device mobile modes.
const (
	MobileAuto  = "auto"
	MobileTrue  = "true"
	MobileFalse = "false"
)

// Radio sources.
const (
	RadioSourceModemManager = "modemmanager"
	RadioSourceStatic       = "static"
	RadioSourceNone         = "none"
)

// DeviceConfig describes the host's radio capabilities.
type DeviceConfig struct {
	Mobile       string   `json:"mobile"`       // "auto", "true", "false"
	RadioSource  string   `json:"radio_source"` // "modemmanager", "static", "none"
	StaticRadio  string   `json:"static_radio,omitempty"`
	MmcliPath    string   `json:"mmcli_path"`
	RadioTimeout Duration `json:"radio_timeout"`
}

// NetwatchConfig holds configuration for the netlink reachability facility
type NetwatchConfig struct {
	// Burst coalescing
	SettleTime Duration `json:"settle_time"`

	// Interface classification
	IgnoreInterfaces    []string `json:"ignore_interfaces"`
	CellularInterfaces  []string `json:"cellular_interfaces"`  // name prefixes
	TransientInterfaces []string `json:"transient_interfaces"` // name prefixes

	// Hostname resolution
	DNSServer      string   `json:"dns_server,omitempty"` // host:port, empty uses resolv.conf
	ResolveTimeout Duration `json:"resolve_timeout"`

	// Netlink subscription recovery
	ResubscribeMaxElapsed Duration `json:"resubscribe_max_elapsed"`

	// OpenWrt UCI directory; cellular interfaces found in its network
	// config extend CellularInterfaces
	UCIRoot string `json:"uci_root,omitempty"`
}

// CLIConfig holds configuration for the local control socket.
type CLIConfig struct {
	SocketPath string `json:"socket_path"`
}

// AnnounceConfig holds configuration for publishing status changes to nostr
// relays.
type AnnounceConfig struct {
	Enabled        bool     `json:"enabled"`
	PrivateKey     string   `json:"private_key"`
	Relays         []string `json:"relays"`
	Kind           int      `json:"kind"`
	PublishTimeout Duration `json:"publish_timeout"`
}

// NewDefaultConfig creates a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		ConfigVersion: CurrentConfigVersion,
		LogLevel:      "info",
		Targets: []TargetConfig{
			{Name: "internet", DefaultRoute: true},
		},
		Device:   defaultDeviceConfig(),
		Netwatch: defaultNetwatchConfig(),
		CLI: CLIConfig{
			SocketPath: "/var/run/tollgate-reachability.sock",
		},
		Announce: defaultAnnounceConfig(),
	}
}

func defaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Mobile:       MobileAuto,
		RadioSource:  RadioSourceModemManager,
		MmcliPath:    "mmcli",
		RadioTimeout: Duration(3 * time.Second),
	}
}

func defaultNetwatchConfig() NetwatchConfig {
	return NetwatchConfig{
		SettleTime:            Duration(250 * time.Millisecond),
		IgnoreInterfaces:      []string{"lo", "docker0", "br-lan", "phy0-ap0", "phy1-ap0", "hostap0"},
		CellularInterfaces:    []string{"wwan", "rmnet", "usb", "qmimux", "ccmni"},
		TransientInterfaces:   []string{"ppp", "tun", "wg"},
		ResolveTimeout:        Duration(5 * time.Second),
		ResubscribeMaxElapsed: Duration(5 * time.Minute),
		UCIRoot:               "/etc/config",
	}
}

func defaultAnnounceConfig() AnnounceConfig {
	return AnnounceConfig{
		Enabled: false,
		Relays: []string{
			"wss://relay.damus.io",
			"wss://nos.lol",
			"wss://nostr.mom",
		},
		Kind:           30078,
		PublishTimeout: Duration(10 * time.Second),
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}

	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("target %d has no name", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		seen[t.Name] = true

		if err := t.Validate(); err != nil {
			return err
		}
	}

	switch c.Device.Mobile {
	case MobileAuto, MobileTrue, MobileFalse:
	default:
		return fmt.Errorf("invalid device.mobile %q", c.Device.Mobile)
	}

	switch c.Device.RadioSource {
	case RadioSourceModemManager, RadioSourceNone:
	case RadioSourceStatic:
		if c.Device.StaticRadio == "" {
			return fmt.Errorf("device.static_radio is required with radio_source %q", RadioSourceStatic)
		}
	default:
		return fmt.Errorf("invalid device.radio_source %q", c.Device.RadioSource)
	}

	if c.Announce.Enabled && len(c.Announce.Relays) == 0 {
		return fmt.Errorf("announce is enabled but no relays are configured")
	}

	return nil
}

// Validate checks that exactly one destination is set.
func (t TargetConfig) Validate() error {
	set := 0
	if t.Hostname != "" {
		set++
	}
	if t.Address != "" {
		set++
		if _, err := netip.ParseAddr(t.Address); err != nil {
			return fmt.Errorf("target %q: invalid address: %w", t.Name, err)
		}
	}
	if t.DefaultRoute {
		set++
	}
	if set != 1 {
		return fmt.Errorf("target %q must set exactly one of hostname, address, default_route", t.Name)
	}
	return nil
}

// Kind describes which destination the target watches.
func (t TargetConfig) Kind() string {
	switch {
	case t.DefaultRoute:
		return "default_route"
	case t.Address != "":
		return "address"
	default:
		return "hostname"
	}
}

// Duration is a time.Duration that reads and writes as a Go duration
// string ("250ms", "5m") in JSON. Plain numbers are taken as nanoseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}

	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s: %w", raw, err)
	}
	*d = Duration(n)
	return nil
}
