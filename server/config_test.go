package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteDefaultConfig(t *testing.T) {
	t.Parallel()

	t.Run("creates new config file", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := WriteDefaultConfig(configPath); err != nil {
			t.Fatalf("WriteDefaultConfig() failed: %v", err)
		}

		content, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("Failed to read config file: %v", err)
		}
		contentStr := string(content)
		for _, section := range []string{"[server]", "[database]", "[logging]", "[poller]", "[retention]"} {
			if !strings.Contains(contentStr, section) {
				t.Errorf("Config file missing expected section: %s", section)
			}
		}
		for _, want := range []string{"http_port = 8080", "poll_interval_minutes = 60", "keep_days = 30"} {
			if !strings.Contains(contentStr, want) {
				t.Errorf("Config file missing default %q", want)
			}
		}
	})

	t.Run("does not overwrite existing config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "config.toml")
		existingContent := "# Custom config\n[server]\nhttp_port = 8888\n"
		if err := os.WriteFile(configPath, []byte(existingContent), 0644); err != nil {
			t.Fatalf("Failed to write existing config: %v", err)
		}

		err := WriteDefaultConfig(configPath)
		if err == nil {
			t.Fatal("WriteDefaultConfig() should have failed when file exists")
		}
		if !strings.Contains(err.Error(), "already exists") {
			t.Errorf("Error should mention 'already exists', got: %v", err)
		}

		content, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("Failed to read config file: %v", err)
		}
		if string(content) != existingContent {
			t.Error("Existing config file was modified")
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "nested", "dir", "config.toml")
		if err := WriteDefaultConfig(configPath); err != nil {
			t.Fatalf("WriteDefaultConfig() failed: %v", err)
		}
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			t.Fatal("Config file was not created in nested directory")
		}
	})
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("Server.HTTPPort = %d, want 8080", cfg.Server.HTTPPort)
	}
	if cfg.Database.Path != "" {
		t.Errorf("Database.Path should be empty (use platform default), got %s", cfg.Database.Path)
	}
	if cfg.Poller.Workers != 5 || cfg.Poller.QueueSize != 100 {
		t.Errorf("Poller workers/queue = %d/%d, want 5/100", cfg.Poller.Workers, cfg.Poller.QueueSize)
	}
	if cfg.Poller.PollIntervalMinutes != 60 {
		t.Errorf("Poller.PollIntervalMinutes = %d, want 60", cfg.Poller.PollIntervalMinutes)
	}
	if cfg.Retention.KeepDays != 30 || cfg.Retention.ArchiveDays != 365 {
		t.Errorf("Retention = %+v, want 30/365", cfg.Retention)
	}
	if cfg.Logging.MaxSizeMB != 50 || cfg.Logging.MaxAgeDays != 14 || cfg.Logging.MaxFiles != 10 {
		t.Errorf("Logging rotation = %+v, want 50/14/10", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	clearConfigEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	configContent := `
[server]
http_port = 9000
bind_address = "127.0.0.1"

[database]
driver = "postgres"
host = "db.internal"
name = "inventory"

[logging]
level = "debug"
max_size_mb = 5

[poller]
glpi_path = "/opt/glpi-agent/bin"
workers = 3
snmp_preflight = true
min_agent_version = "1.5"

[retention]
keep_days = 14
archive_days = 90
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, tracker, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Server.HTTPPort != 9000 || cfg.Server.BindAddress != "127.0.0.1" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Database.EffectiveDriver() != "postgres" || cfg.Database.Host != "db.internal" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
	if cfg.Logging.MaxSizeMB != 5 || cfg.Logging.MaxFiles != 10 {
		t.Errorf("Logging rotation = %+v, want size 5 and default max_files", cfg.Logging)
	}
	if cfg.Poller.GLPIPath != "/opt/glpi-agent/bin" || cfg.Poller.Workers != 3 || !cfg.Poller.SNMPPreflight {
		t.Errorf("Poller = %+v", cfg.Poller)
	}
	if cfg.Poller.QueueSize != 100 {
		t.Errorf("unset Poller.QueueSize should keep default, got %d", cfg.Poller.QueueSize)
	}
	if cfg.Retention.KeepDays != 14 || cfg.Retention.ArchiveDays != 90 {
		t.Errorf("Retention = %+v", cfg.Retention)
	}
	if len(tracker.Keys()) != 0 {
		t.Errorf("no env overrides expected, got %v", tracker.Keys())
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, _, err := LoadConfig(filepath.Join(t.TempDir(), "nonexistent.toml"))
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Server.HTTPPort != 8080 || cfg.Logging.Level != "info" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearConfigEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[server]\nhttp_port = 9000\n[logging]\nlevel = \"info\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INVENTORY_HTTP_PORT", "9100")
	t.Setenv("GLPI_PATH", `C:\glpi`)
	t.Setenv("POLL_WORKERS", "8")
	t.Setenv("SNMP_PREFLIGHT", "true")
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("INVENTORY_DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "pg.local")

	cfg, tracker, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Server.HTTPPort != 9100 {
		t.Errorf("HTTPPort = %d, want env value 9100", cfg.Server.HTTPPort)
	}
	if cfg.Poller.GLPIPath != `C:\glpi` || cfg.Poller.Workers != 8 || !cfg.Poller.SNMPPreflight {
		t.Errorf("Poller = %+v", cfg.Poller)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.Host != "pg.local" {
		t.Errorf("Database = %+v", cfg.Database)
	}

	want := []string{"database", "logging.level", "poller.glpi_path", "poller.snmp_preflight", "poller.workers", "server.http_port"}
	if got := strings.Join(tracker.Keys(), ","); got != strings.Join(want, ",") {
		t.Errorf("tracked keys = %s, want %s", got, strings.Join(want, ","))
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	clearConfigEnv(t)

	tests := map[string]string{
		"port":      "[server]\nhttp_port = 70000\n",
		"workers":   "[poller]\nworkers = 0\n",
		"retention": "[retention]\nkeep_days = 30\narchive_days = 30\n",
	}
	for name, content := range tests {
		configPath := filepath.Join(t.TempDir(), name+".toml")
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, _, err := LoadConfig(configPath); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

// clearConfigEnv blanks every variable LoadConfig reads so the host
// environment cannot leak into a test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"INVENTORY_HTTP_PORT", "BIND_ADDRESS", "GLPI_PATH", "GLPI_OUTPUT_DIR",
		"POLL_WORKERS", "POLL_INTERVAL_MINUTES", "POLL_COMMAND_TIMEOUT_SECONDS", "SNMP_PREFLIGHT",
		"RETENTION_KEEP_DAYS", "RETENTION_ARCHIVE_DAYS",
		"LOG_LEVEL", "LOG_DIR", "INVENTORY_LOG_LEVEL", "INVENTORY_LOG_DIR",
		"DB_DRIVER", "DB_PATH", "DB_DSN", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"INVENTORY_DB_DRIVER", "INVENTORY_DB_PATH", "INVENTORY_DB_DSN", "INVENTORY_DB_HOST",
	} {
		t.Setenv(name, "")
	}
}
