package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hlebuschek/printer-inventory-django-sub001/common/config"
)

// envPrefix is checked before the unprefixed name for shared settings
// (INVENTORY_LOG_LEVEL, then LOG_LEVEL).
const envPrefix = "INVENTORY"

// ConfigSourceTracker records which keys were set by environment variables.
type ConfigSourceTracker struct {
	EnvKeys map[string]bool
}

func newConfigSourceTracker() *ConfigSourceTracker {
	return &ConfigSourceTracker{EnvKeys: make(map[string]bool)}
}

// Keys returns the env-set keys in sorted order.
func (t *ConfigSourceTracker) Keys() []string {
	keys := make([]string, 0, len(t.EnvKeys))
	for k := range t.EnvKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Config represents the server configuration
type Config struct {
	Server    ServerConfig          `toml:"server"`
	Database  config.DatabaseConfig `toml:"database"`
	Logging   config.LoggingConfig  `toml:"logging"`
	Poller    PollerConfig          `toml:"poller"`
	Retention RetentionConfig       `toml:"retention"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	HTTPPort    int    `toml:"http_port"`
	BindAddress string `toml:"bind_address"` // 0.0.0.0 for all interfaces, 127.0.0.1 for localhost
	// AllowedOrigins lists cross-site origins allowed to open the websocket
	// stream. Same-host requests are always allowed.
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxUploadMB    int      `toml:"max_upload_mb"`
}

// PollerConfig controls GLPI agent invocation and the worker pool
type PollerConfig struct {
	GLPIPath              string `toml:"glpi_path"`
	OutputDir             string `toml:"output_dir"`
	Codepage              string `toml:"codepage"`
	Workers               int    `toml:"workers"`
	QueueSize             int    `toml:"queue_size"`
	PollIntervalMinutes   int    `toml:"poll_interval_minutes"`
	CommandTimeoutSeconds int    `toml:"command_timeout_seconds"`
	SNMPPreflight         bool   `toml:"snmp_preflight"`
	SNMPTimeoutSeconds    int    `toml:"snmp_timeout_seconds"`
	MinAgentVersion       string `toml:"min_agent_version"`
}

// RetentionConfig controls inventory history pruning
type RetentionConfig struct {
	KeepDays    int `toml:"keep_days"`
	ArchiveDays int `toml:"archive_days"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:    8080,
			BindAddress: "0.0.0.0",
			MaxUploadMB: 20,
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Path:   "", // Empty = platform data directory
		},
		Logging: config.LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxAgeDays: 14,
			MaxFiles:   10,
		},
		Poller: PollerConfig{
			OutputDir:             "", // Empty = <data dir>/inventory_output
			Workers:               5,
			QueueSize:             100,
			PollIntervalMinutes:   60,
			CommandTimeoutSeconds: 300,
			SNMPPreflight:         false,
			SNMPTimeoutSeconds:    3,
		},
		Retention: RetentionConfig{
			KeepDays:    30,
			ArchiveDays: 365,
		},
	}
}

// LoadConfig loads configuration from a TOML file with environment variable
// overrides. A missing file is not an error.
func LoadConfig(configPath string) (*Config, *ConfigSourceTracker, error) {
	cfg := DefaultConfig()
	tracker := newConfigSourceTracker()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := config.LoadTOML(configPath, cfg); err != nil {
				return nil, nil, err
			}
		}
	}

	envInt := func(name, key string, dst *int) {
		if val := os.Getenv(name); val != "" {
			var v int
			if _, err := fmt.Sscanf(val, "%d", &v); err == nil {
				*dst = v
				tracker.EnvKeys[key] = true
			}
		}
	}
	envString := func(name, key string, dst *string) {
		if val := os.Getenv(name); val != "" {
			*dst = val
			tracker.EnvKeys[key] = true
		}
	}

	envInt("INVENTORY_HTTP_PORT", "server.http_port", &cfg.Server.HTTPPort)
	envString("BIND_ADDRESS", "server.bind_address", &cfg.Server.BindAddress)
	envString("GLPI_PATH", "poller.glpi_path", &cfg.Poller.GLPIPath)
	envString("GLPI_OUTPUT_DIR", "poller.output_dir", &cfg.Poller.OutputDir)
	envInt("POLL_WORKERS", "poller.workers", &cfg.Poller.Workers)
	envInt("POLL_INTERVAL_MINUTES", "poller.poll_interval_minutes", &cfg.Poller.PollIntervalMinutes)
	envInt("POLL_COMMAND_TIMEOUT_SECONDS", "poller.command_timeout_seconds", &cfg.Poller.CommandTimeoutSeconds)
	if val := os.Getenv("SNMP_PREFLIGHT"); val != "" {
		cfg.Poller.SNMPPreflight = val == "true" || val == "1"
		tracker.EnvKeys["poller.snmp_preflight"] = true
	}
	envInt("RETENTION_KEEP_DAYS", "retention.keep_days", &cfg.Retention.KeepDays)
	envInt("RETENTION_ARCHIVE_DAYS", "retention.archive_days", &cfg.Retention.ArchiveDays)

	before := cfg.Logging
	config.ApplyLoggingEnvOverrides(&cfg.Logging, envPrefix)
	if cfg.Logging.Level != before.Level {
		tracker.EnvKeys["logging.level"] = true
	}
	if cfg.Logging.Dir != before.Dir {
		tracker.EnvKeys["logging.dir"] = true
	}

	beforeDB := cfg.Database
	config.ApplyDatabaseEnvOverrides(&cfg.Database, envPrefix)
	if cfg.Database != beforeDB {
		tracker.EnvKeys["database"] = true
	}

	return cfg, tracker, cfg.Validate()
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		problems = append(problems, fmt.Sprintf("server.http_port %d out of range", c.Server.HTTPPort))
	}
	if c.Poller.Workers <= 0 {
		problems = append(problems, "poller.workers must be positive")
	}
	if c.Retention.KeepDays <= 0 || c.Retention.ArchiveDays <= c.Retention.KeepDays {
		problems = append(problems, "retention requires 0 < keep_days < archive_days")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// WriteDefaultConfig writes a default configuration file
func WriteDefaultConfig(configPath string) error {
	return config.WriteDefaultTOML(configPath, DefaultConfig())
}
