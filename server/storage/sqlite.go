package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	BaseStore
	dbPath string
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	memory := dbPath == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	connStr := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	if !memory {
		connStr += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite serializes writers, and each new
	// connection to :memory: would see a different database.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		BaseStore: BaseStore{db: db, dialect: &SQLiteDialect{}},
		dbPath:    dbPath,
	}
	if err := store.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	logInfo("Opened SQLite database", "path", dbPath)
	return store, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.dbPath }
