// Package queue implements the durable per-printer FIFO job store, behind
// one Store interface with SQLite and PostgreSQL backends. The Dialect
// abstraction below isolates the handful of SQL differences between the
// two for schema setup and for the registry and discovery packages; each
// Store backend carries its own job-queue query strings.
package queue

import (
	"fmt"
	"strings"
)

// Dialect abstracts database-specific SQL syntax differences.
// This allows the same business logic to work across SQLite and PostgreSQL.
type Dialect interface {
	// Name returns the dialect name (e.g., "sqlite", "postgres")
	Name() string

	// Placeholder returns a parameter placeholder for the given 1-based index.
	// SQLite uses ?, PostgreSQL uses $1, $2, etc.
	Placeholder(index int) string

	// AutoIncrement returns the column type for auto-incrementing primary keys.
	// SQLite: "INTEGER PRIMARY KEY AUTOINCREMENT"
	// PostgreSQL: "SERIAL PRIMARY KEY" or "BIGSERIAL PRIMARY KEY"
	AutoIncrement(big bool) string

	// TimestampType returns the column type for timestamps.
	// SQLite: "DATETIME"
	// PostgreSQL: "TIMESTAMPTZ" (with timezone)
	TimestampType() string

	// BoolType returns the column type for boolean values.
	// SQLite: "INTEGER" (0/1)
	// PostgreSQL: "BOOLEAN"
	BoolType() string

	// CurrentTimestamp returns the SQL expression for current timestamp.
	// SQLite: "CURRENT_TIMESTAMP"
	// PostgreSQL: "NOW()" or "CURRENT_TIMESTAMP"
	CurrentTimestamp() string

	// UpsertConflict returns the upsert clause for the database.
	// SQLite: "ON CONFLICT (key) DO UPDATE SET ..."
	// PostgreSQL: "ON CONFLICT (key) DO UPDATE SET ..."
	UpsertConflict(conflictColumns []string) string
}

// SQLiteDialect implements Dialect for SQLite.
type SQLiteDialect struct{}

var _ Dialect = (*SQLiteDialect)(nil)

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return "?"
}

func (d *SQLiteDialect) AutoIncrement(big bool) string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d *SQLiteDialect) TimestampType() string {
	return "DATETIME"
}

func (d *SQLiteDialect) BoolType() string {
	return "INTEGER"
}

func (d *SQLiteDialect) CurrentTimestamp() string {
	return "CURRENT_TIMESTAMP"
}

func (d *SQLiteDialect) UpsertConflict(conflictColumns []string) string {
	return fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET", strings.Join(conflictColumns, ", "))
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

func (d *PostgresDialect) TimestampType() string {
	return "TIMESTAMPTZ"
}

func (d *PostgresDialect) BoolType() string {
	return "BOOLEAN"
}

func (d *PostgresDialect) CurrentTimestamp() string {
	return "NOW()"
}

func (d *PostgresDialect) UpsertConflict(conflictColumns []string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET", strings.Join(conflictColumns, ", "))
}
