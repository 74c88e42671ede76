package config_manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"
)

// CurrentConfigVersion is the latest version of the reachability.json format.
const CurrentConfigVersion = "v0.1.0"

// DefaultConfigPath is used when ConfigPathEnv is not set.
const DefaultConfigPath = "/etc/tollgate/reachability.json"

// ConfigPathEnv overrides the config file location.
const ConfigPathEnv = "TOLLGATE_REACHABILITY_CONFIG"

// ErrMalformedConfig is returned by LoadConfig when the file is not valid
// JSON for Config.
var ErrMalformedConfig = errors.New("malformed config file")

var logger = logrus.WithField("module", "config_manager")

// ConfigPath returns the config file location from the environment, or the
// default.
func ConfigPath() string {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p
	}
	return DefaultConfigPath
}

// ConfigManager manages the configuration file
type ConfigManager struct {
	FilePath string
}

// NewConfigManager creates a new ConfigManager instance
func NewConfigManager(filePath string) (*ConfigManager, error) {
	if filePath == "" {
		return nil, fmt.Errorf("config file path is empty")
	}
	return &ConfigManager{FilePath: filePath}, nil
}

// LoadConfig reads the configuration from the managed file. A missing or
// empty file yields a nil config and no error.
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	data, err := os.ReadFile(cm.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Return nil config if file does not exist
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil // Return nil config if file is empty
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrMalformedConfig, cm.FilePath, err)
	}
	return &config, nil
}

// SaveConfig writes the configuration to the managed file with pretty formatting
func (cm *ConfigManager) SaveConfig(config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cm.FilePath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold the announce private key.
	tmp := cm.FilePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, cm.FilePath)
}

// EnsureDefaultConfig ensures a valid configuration exists, creating it if
// necessary. Older files are upgraded in place; malformed ones are moved
// aside and replaced with defaults.
func (cm *ConfigManager) EnsureDefaultConfig() (*Config, error) {
	config, err := cm.LoadConfig()
	if errors.Is(err, ErrMalformedConfig) {
		backup, backupErr := cm.backup()
		if backupErr != nil {
			return nil, fmt.Errorf("failed to back up malformed config: %w", backupErr)
		}
		logger.WithError(err).WithField("backup", backup).Warn("Config file is malformed, writing defaults")
		config = nil
	} else if err != nil {
		return nil, err
	}

	changed := false
	if config == nil {
		config = NewDefaultConfig()
		changed = true
	} else {
		changed = upgradeConfig(config)
	}

	if config.Announce.PrivateKey == "" {
		config.Announce.PrivateKey = nostr.GeneratePrivateKey()
		changed = true
	}

	if changed {
		if err := cm.SaveConfig(config); err != nil {
			return nil, err
		}
	}
	return config, nil
}

func (cm *ConfigManager) backup() (string, error) {
	path := fmt.Sprintf("%s.bak.%d", cm.FilePath, time.Now().Unix())
	return path, os.Rename(cm.FilePath, path)
}

// upgradeConfig brings a config written by an older release up to
// CurrentConfigVersion, filling sections it did not know about. It reports
// whether anything changed.
func upgradeConfig(config *Config) bool {
	current := version.Must(version.NewVersion(CurrentConfigVersion))

	stored, err := version.NewVersion(config.ConfigVersion)
	if err == nil && !stored.LessThan(current) {
		if stored.GreaterThan(current) {
			logger.WithFields(logrus.Fields{
				"file_version":    config.ConfigVersion,
				"current_version": CurrentConfigVersion,
			}).Warn("Config file is newer than this release")
		}
		return false
	}

	logger.WithFields(logrus.Fields{
		"from": config.ConfigVersion,
		"to":   CurrentConfigVersion,
	}).Info("Upgrading config file")

	fillDefaults(config)
	config.ConfigVersion = CurrentConfigVersion
	return true
}

func fillDefaults(config *Config) {
	defaults := NewDefaultConfig()

	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.Targets == nil {
		config.Targets = defaults.Targets
	}

	d := &config.Device
	if d.Mobile == "" {
		d.Mobile = defaults.Device.Mobile
	}
	if d.RadioSource == "" {
		d.RadioSource = defaults.Device.RadioSource
	}
	if d.MmcliPath == "" {
		d.MmcliPath = defaults.Device.MmcliPath
	}
	if d.RadioTimeout == 0 {
		d.RadioTimeout = defaults.Device.RadioTimeout
	}

	n := &config.Netwatch
	if n.SettleTime == 0 {
		n.SettleTime = defaults.Netwatch.SettleTime
	}
	if n.IgnoreInterfaces == nil {
		n.IgnoreInterfaces = defaults.Netwatch.IgnoreInterfaces
	}
	if n.CellularInterfaces == nil {
		n.CellularInterfaces = defaults.Netwatch.CellularInterfaces
	}
	if n.TransientInterfaces == nil {
		n.TransientInterfaces = defaults.Netwatch.TransientInterfaces
	}
	if n.ResolveTimeout == 0 {
		n.ResolveTimeout = defaults.Netwatch.ResolveTimeout
	}
	if n.UCIRoot == "" {
		n.UCIRoot = defaults.Netwatch.UCIRoot
	}
	if n.ResubscribeMaxElapsed == 0 {
		n.ResubscribeMaxElapsed = defaults.Netwatch.ResubscribeMaxElapsed
	}

	if config.CLI.SocketPath == "" {
		config.CLI.SocketPath = defaults.CLI.SocketPath
	}

	a := &config.Announce
	if a.Relays == nil {
		a.Relays = defaults.Announce.Relays
	}
	if a.Kind == 0 {
		a.Kind = defaults.Announce.Kind
	}
	if a.PublishTimeout == 0 {
		a.PublishTimeout = defaults.Announce.PublishTimeout
	}
}
