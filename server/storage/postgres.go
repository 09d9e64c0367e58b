package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hlebuschek/printer-inventory-django-sub001/common/config"

	// Import postgres driver
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store for PostgreSQL.
type PostgresStore struct {
	BaseStore
}

// NewPostgresStore connects using cfg and initializes the schema.
func NewPostgresStore(cfg *config.DatabaseConfig) (*PostgresStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config required")
	}

	dsn := cfg.BuildDSN()
	if dsn == "" {
		return nil, fmt.Errorf("invalid database configuration: could not build DSN")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeSecs > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeSecs) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{
		BaseStore: BaseStore{db: db, dialect: &PostgresDialect{}},
	}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize postgres schema: %w", err)
	}

	logInfo("Opened PostgreSQL database", "host", cfg.Host, "database", cfg.Name)
	return store, nil
}

// Path is empty for PostgreSQL.
func (s *PostgresStore) Path() string { return "" }
