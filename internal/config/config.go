// Package config loads and validates the temario configuration.
//
// Precedence, lowest to highest:
//  1. Built-in defaults
//  2. Config file (YAML)
//  3. Environment variables (TEMARIO_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ecervera/temario/internal/errors"
)

// Config is the complete temario configuration.
type Config struct {
	Version  int            `yaml:"version"`
	Paths    PathsConfig    `yaml:"paths"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Relay    RelayConfig    `yaml:"relay"`
	Platform PlatformConfig `yaml:"platform"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PathsConfig locates the data directory holding the topic database and
// the instance lock.
type PathsConfig struct {
	DataDir string `yaml:"data_dir"`
}

// CatalogConfig tunes the query engine's page and result windows.
type CatalogConfig struct {
	// PageSize is the letter-view page window.
	PageSize int `yaml:"page_size"`
	// SearchLimit truncates name and title search results.
	SearchLimit int `yaml:"search_limit"`
	// RecentLimit truncates the recent-topics view.
	RecentLimit int `yaml:"recent_limit"`
}

// RelayConfig tunes the relay engine's retry and pacing policy.
type RelayConfig struct {
	// Mode is "forward" (preserve attribution) or "copy".
	Mode string `yaml:"mode"`
	// OriginChat is the chat id items are relayed from. Runtime changes
	// go through the store-backed Reconfigure operation, not this field.
	OriginChat string `yaml:"origin_chat"`
	// PaceEvery inserts a pause after this many deliveries.
	PaceEvery int `yaml:"pace_every"`
	// PaceDelay is the length of that pause.
	PaceDelay time.Duration `yaml:"pace_delay"`
	// TransientDelay is the sleep between attempts on transient failures.
	TransientDelay time.Duration `yaml:"transient_delay"`
	// TransientCutover bounds continuous transient failure per item.
	// Zero retries forever.
	TransientCutover time.Duration `yaml:"transient_cutover"`
}

// PlatformConfig locates the provider bridge and the administrator.
type PlatformConfig struct {
	// SocketPath is the provider bridge's unix socket.
	SocketPath string `yaml:"socket_path"`
	// Timeout bounds each bridge call.
	Timeout time.Duration `yaml:"timeout"`
	// AdminUser is the only user allowed to run admin actions.
	AdminUser string `yaml:"admin_user"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// New returns the built-in defaults.
func New() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Version: 1,
		Paths:   PathsConfig{DataDir: dataDir},
		Catalog: CatalogConfig{
			PageSize:    10,
			SearchLimit: 25,
			RecentLimit: 10,
		},
		Relay: RelayConfig{
			Mode:             "forward",
			PaceEvery:        70,
			PaceDelay:        2 * time.Second,
			TransientDelay:   2 * time.Second,
			TransientCutover: 30 * time.Second,
		},
		Platform: PlatformConfig{
			SocketPath: filepath.Join(dataDir, "bridge.sock"),
			Timeout:    30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      filepath.Join(dataDir, "temario.log"),
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "temario", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "temario", "config.yaml")
	}
	return filepath.Join(home, ".config", "temario", "config.yaml")
}

// Load builds the effective configuration from defaults, the file at path
// (skipped silently when absent), and environment overrides.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		path = DefaultPath()
	}
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.New(errors.ErrCodeConfigIO, fmt.Sprintf("reading %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.ConfigError(fmt.Sprintf("parsing %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies TEMARIO_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TEMARIO_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("TEMARIO_ORIGIN_CHAT"); v != "" {
		c.Relay.OriginChat = v
	}
	if v := os.Getenv("TEMARIO_RELAY_MODE"); v != "" {
		c.Relay.Mode = v
	}
	if v := os.Getenv("TEMARIO_SOCKET_PATH"); v != "" {
		c.Platform.SocketPath = v
	}
	if v := os.Getenv("TEMARIO_ADMIN_USER"); v != "" {
		c.Platform.AdminUser = v
	}
	if v := os.Getenv("TEMARIO_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TEMARIO_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Catalog.PageSize = n
		}
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Catalog.PageSize < 1 {
		return errors.ConfigError(fmt.Sprintf("catalog.page_size must be positive, got %d", c.Catalog.PageSize), nil)
	}
	if c.Catalog.SearchLimit < 1 {
		return errors.ConfigError(fmt.Sprintf("catalog.search_limit must be positive, got %d", c.Catalog.SearchLimit), nil)
	}
	if c.Relay.Mode != "forward" && c.Relay.Mode != "copy" {
		return errors.ConfigError(fmt.Sprintf("relay.mode must be forward or copy, got %q", c.Relay.Mode), nil)
	}
	if c.Relay.PaceEvery < 0 {
		return errors.ConfigError("relay.pace_every cannot be negative", nil)
	}
	if c.Relay.TransientCutover < 0 {
		return errors.ConfigError("relay.transient_cutover cannot be negative", nil)
	}
	if c.Platform.Timeout <= 0 {
		return errors.ConfigError("platform.timeout must be positive", nil)
	}
	return nil
}

// Save writes the configuration to path atomically (temp file + rename).
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(errors.ErrCodeConfigIO, "creating config directory", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.New(errors.ErrCodeConfigIO, "encoding config", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.New(errors.ErrCodeConfigIO, "writing config", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.New(errors.ErrCodeConfigIO, "saving config", err)
	}
	return nil
}

// DatabasePath returns the topic database location inside the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "topics.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "temario.lock")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".temario")
	}
	return filepath.Join(home, ".temario")
}
