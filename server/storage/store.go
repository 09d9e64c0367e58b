package storage

import (
	"fmt"

	"github.com/hlebuschek/printer-inventory-django-sub001/common/config"
)

// DefaultSQLiteFile is used when no path is configured.
const DefaultSQLiteFile = "inventory.db"

// NewStore opens the backend selected by cfg.Driver. SQLite is the default.
//
//	cfg := &config.DatabaseConfig{Driver: "postgres", Host: "localhost", Name: "inventory"}
//	store, err := NewStore(cfg)
func NewStore(cfg *config.DatabaseConfig) (Store, error) {
	if cfg == nil {
		cfg = &config.DatabaseConfig{}
	}

	switch driver := cfg.EffectiveDriver(); driver {
	case "sqlite", "sqlite3", "modernc", "modernc-sqlite":
		path := cfg.Path
		if path == "" {
			path = DefaultSQLiteFile
		}
		return NewSQLiteStore(path)

	case "postgres", "postgresql", "pgx":
		return NewPostgresStore(cfg)

	default:
		return nil, fmt.Errorf("unsupported database driver: %q (supported: sqlite, postgres)", driver)
	}
}
