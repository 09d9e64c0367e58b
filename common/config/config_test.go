package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sampleConfig struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func TestWriteDefaultTOML(t *testing.T) {
	t.Parallel()

	t.Run("creates new config file", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := WriteDefaultTOML(configPath, sampleConfig{Name: "test", Value: 42}); err != nil {
			t.Fatalf("WriteDefaultTOML() failed: %v", err)
		}

		content, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("Failed to read config file: %v", err)
		}
		if !strings.Contains(string(content), `name = "test"`) {
			t.Error("Config file missing expected name value")
		}
		if !strings.Contains(string(content), "value = 42") {
			t.Error("Config file missing expected value")
		}
	})

	t.Run("does not overwrite existing file", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "existing.toml")
		existing := "name = \"old\"\nvalue = 99\n"
		if err := os.WriteFile(configPath, []byte(existing), 0644); err != nil {
			t.Fatalf("Failed to create existing file: %v", err)
		}

		err := WriteDefaultTOML(configPath, sampleConfig{Name: "new", Value: 1})
		if err == nil {
			t.Fatal("WriteDefaultTOML() should have failed for existing file")
		}
		if !strings.Contains(err.Error(), "already exists") {
			t.Errorf("Error should mention 'already exists', got: %v", err)
		}

		content, _ := os.ReadFile(configPath)
		if string(content) != existing {
			t.Error("Existing file was modified")
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "deep", "nested", "config.toml")
		if err := WriteDefaultTOML(configPath, sampleConfig{Name: "nested"}); err != nil {
			t.Fatalf("WriteDefaultTOML() failed: %v", err)
		}
		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("Config file was not created in nested path: %v", err)
		}
	})
}

func TestLoadTOML(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := WriteDefaultTOML(configPath, sampleConfig{Name: "printer", Value: 7}); err != nil {
			t.Fatalf("WriteDefaultTOML() failed: %v", err)
		}

		var cfg sampleConfig
		if err := LoadTOML(configPath, &cfg); err != nil {
			t.Fatalf("LoadTOML() failed: %v", err)
		}
		if cfg.Name != "printer" || cfg.Value != 7 {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		var cfg sampleConfig
		err := LoadTOML(filepath.Join(t.TempDir(), "nope.toml"), &cfg)
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Fatalf("expected not found error, got %v", err)
		}
	})

	t.Run("invalid toml", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "bad.toml")
		os.WriteFile(configPath, []byte("name = [unterminated"), 0644)

		var cfg sampleConfig
		err := LoadTOML(configPath, &cfg)
		if err == nil || !strings.Contains(err.Error(), "failed to parse") {
			t.Fatalf("expected parse error, got %v", err)
		}
	})
}

func TestGetConfigSearchPaths(t *testing.T) {
	t.Parallel()

	paths := GetConfigSearchPaths("config.toml")
	if len(paths) < 2 {
		t.Fatalf("expected several search paths, got %v", paths)
	}
	for _, p := range paths {
		if filepath.Base(p) != "config.toml" {
			t.Errorf("search path %q does not end in config.toml", p)
		}
	}
	if last := paths[len(paths)-1]; last != "config.toml" {
		t.Errorf("expected working directory last, got %q", last)
	}
}

func TestDatabaseConfigEffectiveDriver(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":          "sqlite",
		"SQLite":    "sqlite",
		" postgres": "postgres",
	}
	for in, want := range tests {
		cfg := DatabaseConfig{Driver: in}
		if got := cfg.EffectiveDriver(); got != want {
			t.Errorf("EffectiveDriver(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDatabaseConfigBuildDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  DatabaseConfig{Driver: "postgres", DSN: "postgres://x/y", Host: "db"},
			want: "postgres://x/y",
		},
		{
			name: "assembled from fields",
			cfg:  DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "inv", Password: "s3cret", Name: "inventory"},
			want: "postgres://inv:s3cret@db:5432/inventory?sslmode=disable",
		},
		{
			name: "custom sslmode",
			cfg:  DatabaseConfig{Driver: "postgresql", Host: "db", Name: "inventory", SSLMode: "require"},
			want: "postgres://db/inventory?sslmode=require",
		},
		{
			name: "missing host",
			cfg:  DatabaseConfig{Driver: "postgres", Name: "inventory"},
			want: "",
		},
		{
			name: "sqlite has no dsn",
			cfg:  DatabaseConfig{Path: "/tmp/inv.db"},
			want: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.cfg.BuildDSN(); got != tt.want {
				t.Errorf("BuildDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyDatabaseEnvOverrides(t *testing.T) {
	t.Setenv("INVENTORY_DB_DRIVER", "postgres")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "inventory")

	cfg := DatabaseConfig{Driver: "sqlite", Port: 5432}
	ApplyDatabaseEnvOverrides(&cfg, "INVENTORY")

	if cfg.Driver != "postgres" {
		t.Errorf("prefixed variable should win, got driver %q", cfg.Driver)
	}
	if cfg.Host != "db.internal" || cfg.Port != 6543 || cfg.Name != "inventory" {
		t.Errorf("unexpected overrides: %+v", cfg)
	}
}

func TestApplyDatabaseEnvOverridesIgnoresBadPort(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")

	cfg := DatabaseConfig{Port: 5432}
	ApplyDatabaseEnvOverrides(&cfg, "")
	if cfg.Port != 5432 {
		t.Errorf("expected port unchanged, got %d", cfg.Port)
	}
}

func TestApplyLoggingEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_DIR", "/var/tmp/inv")

	cfg := LoggingConfig{Level: "info"}
	ApplyLoggingEnvOverrides(&cfg, "INVENTORY")
	if cfg.Level != "debug" {
		t.Errorf("expected level debug, got %q", cfg.Level)
	}
	if cfg.Dir != "/var/tmp/inv" {
		t.Errorf("expected dir override, got %q", cfg.Dir)
	}
}
