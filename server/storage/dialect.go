package storage

import (
	"fmt"
	"strings"
)

// Dialect abstracts the SQL differences between SQLite and PostgreSQL.
// Queries are written with ? placeholders and rebound per dialect.
type Dialect interface {
	// Name returns the dialect name ("sqlite" or "postgres").
	Name() string

	// Placeholder returns the parameter marker for a 1-based index.
	Placeholder(index int) string

	// AutoIncrement returns the column type for a generated primary key.
	AutoIncrement(big bool) string

	// TimestampType returns the column type for timestamps.
	TimestampType() string

	// BoolType returns the column type for booleans.
	BoolType() string

	// IntegerType returns an integer column type.
	IntegerType(big bool) string

	// ReturningClause returns "RETURNING cols" or "".
	ReturningClause(columns ...string) string

	// LimitOffset returns a LIMIT/OFFSET clause, or "" when limit <= 0.
	LimitOffset(limit, offset int) string
}

// SQLiteDialect implements Dialect for SQLite.
type SQLiteDialect struct{}

var _ Dialect = (*SQLiteDialect)(nil)

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string { return "?" }

func (d *SQLiteDialect) AutoIncrement(big bool) string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d *SQLiteDialect) TimestampType() string { return "DATETIME" }

func (d *SQLiteDialect) BoolType() string { return "INTEGER" }

func (d *SQLiteDialect) IntegerType(big bool) string { return "INTEGER" }

func (d *SQLiteDialect) ReturningClause(columns ...string) string {
	return returning(columns)
}

func (d *SQLiteDialect) LimitOffset(limit, offset int) string {
	return limitOffset(limit, offset)
}

// PostgresDialect implements Dialect for PostgreSQL.
type PostgresDialect struct{}

var _ Dialect = (*PostgresDialect)(nil)

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) AutoIncrement(big bool) string {
	if big {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "SERIAL PRIMARY KEY"
}

func (d *PostgresDialect) TimestampType() string { return "TIMESTAMPTZ" }

func (d *PostgresDialect) BoolType() string { return "BOOLEAN" }

func (d *PostgresDialect) IntegerType(big bool) string {
	if big {
		return "BIGINT"
	}
	return "INTEGER"
}

func (d *PostgresDialect) ReturningClause(columns ...string) string {
	return returning(columns)
}

func (d *PostgresDialect) LimitOffset(limit, offset int) string {
	return limitOffset(limit, offset)
}

func returning(columns []string) string {
	if len(columns) == 0 {
		return ""
	}
	return "RETURNING " + strings.Join(columns, ", ")
}

func limitOffset(limit, offset int) string {
	switch {
	case limit <= 0:
		return ""
	case offset <= 0:
		return fmt.Sprintf("LIMIT %d", limit)
	default:
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	}
}

// ConvertPlaceholders converts ? placeholders to PostgreSQL $n placeholders.
// Question marks inside single-quoted literals are left alone.
func ConvertPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 10)
	n := 1
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			fmt.Fprintf(&b, "$%d", n)
			n++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// PlaceholderSet returns count comma-separated placeholders for an IN clause.
func PlaceholderSet(dialect Dialect, count int, startIndex int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]string, count)
	for i := 0; i < count; i++ {
		placeholders[i] = dialect.Placeholder(startIndex + i)
	}
	return strings.Join(placeholders, ", ")
}
