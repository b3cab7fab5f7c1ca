// Package config loads and watches the Lintas process configuration.
package config

import "path/filepath"

// Config is the process-wide Lintas configuration, read once at startup.
type Config struct {
	// DataDir is the base directory for all local state.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// StorageRoot holds the per-session credential files. Defaults to
	// DataDir/sessions.
	StorageRoot string `json:"storage_root" mapstructure:"storage_root"`

	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`
	Gateway  GatewayConfig  `json:"gateway" mapstructure:"gateway"`
	Journal  JournalConfig  `json:"journal" mapstructure:"journal"`
	Watchdog WatchdogConfig `json:"watchdog" mapstructure:"watchdog"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// SessionsConfig holds session defaults applied to every new session.
type SessionsConfig struct {
	// Defaults are merged into each session's settings; per-session keys
	// override, nested maps merge recursively.
	Defaults map[string]interface{} `json:"defaults" mapstructure:"defaults"`

	// Schema optionally validates the merged settings (JSON schema).
	Schema map[string]interface{} `json:"schema" mapstructure:"schema"`
}

// GatewayConfig holds the websocket operator surface configuration.
type GatewayConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// JournalConfig holds the session lifecycle journal configuration.
type JournalConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// WatchdogConfig holds the periodic health sweep configuration.
type WatchdogConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Schedule string `json:"schedule" mapstructure:"schedule"`
}

// DefaultConfig returns the built-in defaults. DataDir-dependent paths are
// filled in by the loader once DataDir is known.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8321,
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Watchdog: WatchdogConfig{
			Enabled:  true,
			Schedule: "@every 1m",
		},
	}
}

// applyDerivedDefaults fills in paths that hang off DataDir.
func (c *Config) applyDerivedDefaults() {
	if c.StorageRoot == "" {
		c.StorageRoot = filepath.Join(c.DataDir, "sessions")
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.DataDir, "lintas.log")
	}
	if c.Journal.Path == "" {
		c.Journal.Path = filepath.Join(c.DataDir, "journal.db")
	}
}
