// Package config provides shared configuration utilities for the inventory service
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// AppName is used to build platform configuration and data directories.
const AppName = "PrinterInventory"

// FindConfigFile searches for a config file in multiple platform-appropriate locations.
// Returns the path and data of the first file found.
func FindConfigFile(filename string) (string, []byte, error) {
	for _, path := range GetConfigSearchPaths(filename) {
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}
	return "", nil, fmt.Errorf("%s not found in any search path", filename)
}

// GetConfigSearchPaths returns an ordered list of paths to search for config files
func GetConfigSearchPaths(filename string) []string {
	var searchPaths []string

	// 1. System directory
	switch runtime.GOOS {
	case "windows":
		searchPaths = append(searchPaths, filepath.Join(os.Getenv("ProgramData"), AppName, filename))
	case "darwin":
		searchPaths = append(searchPaths, filepath.Join("/Library/Application Support", AppName, filename))
	default:
		searchPaths = append(searchPaths, filepath.Join("/etc/printer-inventory", filename))
	}

	// 2. User config directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "AppData", "Local", AppName, filename))
		case "darwin":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "Library", "Application Support", AppName, filename))
		default:
			searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "printer-inventory", filename))
		}
	}

	// 3. Executable directory
	if exePath, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(filepath.Dir(exePath), filename))
	}

	// 4. Current working directory
	searchPaths = append(searchPaths, filepath.Join(".", filename))

	return searchPaths
}

// GetDataDirectory returns (and creates) the directory for the database and
// agent output. Service mode uses a system-wide location.
func GetDataDirectory(isService bool) (string, error) {
	var dataDir string

	if isService {
		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(os.Getenv("ProgramData"), AppName)
		default:
			dataDir = "/var/lib/printer-inventory"
		}
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(homeDir, "AppData", "Local", AppName)
		case "darwin":
			dataDir = filepath.Join(homeDir, "Library", "Application Support", AppName)
		default:
			dataDir = filepath.Join(homeDir, ".local", "share", "printer-inventory")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}

// GetLogDirectory returns (and creates) the directory for log files
func GetLogDirectory(isService bool) (string, error) {
	logDir := "logs"
	if isService {
		switch runtime.GOOS {
		case "windows":
			logDir = filepath.Join(os.Getenv("ProgramData"), AppName, "logs")
		default:
			logDir = "/var/log/printer-inventory"
		}
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return logDir, nil
}

// WriteDefaultTOML writes cfg as TOML to configPath. It refuses to overwrite
// an existing file.
func WriteDefaultTOML(configPath string, cfg interface{}) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("config file %s already exists", configPath)
		}
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadTOML loads a TOML configuration file into the provided structure
func LoadTOML(configPath string, cfg interface{}) error {
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Driver              string `toml:"driver"`
	Path                string `toml:"path"`
	DSN                 string `toml:"dsn"`
	Host                string `toml:"host"`
	Port                int    `toml:"port"`
	User                string `toml:"user"`
	Password            string `toml:"password"`
	Name                string `toml:"name"`
	SSLMode             string `toml:"sslmode"`
	MaxOpenConns        int    `toml:"max_open_conns"`
	MaxIdleConns        int    `toml:"max_idle_conns"`
	ConnMaxLifetimeSecs int    `toml:"conn_max_lifetime_secs"`
}

// EffectiveDriver returns the normalized driver name, defaulting to sqlite.
func (c *DatabaseConfig) EffectiveDriver() string {
	d := strings.ToLower(strings.TrimSpace(c.Driver))
	if d == "" {
		return "sqlite"
	}
	return d
}

// BuildDSN returns the explicit DSN, or a postgres URL assembled from the
// individual fields. For sqlite it returns the explicit DSN or "".
func (c *DatabaseConfig) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.EffectiveDriver() {
	case "postgres", "postgresql", "pgx":
		if c.Host == "" || c.Name == "" {
			return ""
		}
		host := c.Host
		if c.Port > 0 {
			host = fmt.Sprintf("%s:%d", c.Host, c.Port)
		}
		u := url.URL{Scheme: "postgres", Host: host, Path: "/" + c.Name}
		if c.User != "" {
			if c.Password != "" {
				u.User = url.UserPassword(c.User, c.Password)
			} else {
				u.User = url.User(c.User)
			}
		}
		sslmode := c.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		u.RawQuery = "sslmode=" + url.QueryEscape(sslmode)
		return u.String()
	default:
		return ""
	}
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `toml:"level"`
	Dir   string `toml:"dir"`

	// Rotation of the log file. MaxSizeMB <= 0 disables rotation.
	MaxSizeMB  int `toml:"max_size_mb"`
	MaxAgeDays int `toml:"max_age_days"`
	MaxFiles   int `toml:"max_files"`
}

// envLookup checks PREFIX_NAME first, then NAME.
func envLookup(prefix, name string) (string, bool) {
	if prefix != "" {
		if v := os.Getenv(prefix + "_" + name); v != "" {
			return v, true
		}
	}
	if v := os.Getenv(name); v != "" {
		return v, true
	}
	return "", false
}

// ApplyDatabaseEnvOverrides applies DB_* environment overrides. A component
// prefix (e.g. "INVENTORY") is checked before the generic name.
func ApplyDatabaseEnvOverrides(cfg *DatabaseConfig, prefix string) {
	if v, ok := envLookup(prefix, "DB_DRIVER"); ok {
		cfg.Driver = v
	}
	if v, ok := envLookup(prefix, "DB_PATH"); ok {
		cfg.Path = v
	}
	if v, ok := envLookup(prefix, "DB_DSN"); ok {
		cfg.DSN = v
	}
	if v, ok := envLookup(prefix, "DB_HOST"); ok {
		cfg.Host = v
	}
	if v, ok := envLookup(prefix, "DB_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v, ok := envLookup(prefix, "DB_USER"); ok {
		cfg.User = v
	}
	if v, ok := envLookup(prefix, "DB_PASSWORD"); ok {
		cfg.Password = v
	}
	if v, ok := envLookup(prefix, "DB_NAME"); ok {
		cfg.Name = v
	}
	if v, ok := envLookup(prefix, "DB_SSLMODE"); ok {
		cfg.SSLMode = v
	}
}

// ApplyLoggingEnvOverrides applies LOG_LEVEL / LOG_DIR overrides.
func ApplyLoggingEnvOverrides(cfg *LoggingConfig, prefix string) {
	if v, ok := envLookup(prefix, "LOG_LEVEL"); ok {
		cfg.Level = strings.ToLower(v)
	}
	if v, ok := envLookup(prefix, "LOG_DIR"); ok {
		cfg.Dir = v
	}
}
