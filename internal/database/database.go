// Package database is the SQL-backed implementation of storage.Store and of
// the session lock table. It runs on SQLite (modernc.org/sqlite) for single
// instances and PostgreSQL (lib/pq) when several servers share state.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Database wraps a *sql.DB with the dojo schema.
type Database struct {
	db     *sql.DB
	driver string
}

// Open connects with the named driver, verifies the connection and applies
// the schema.
func Open(ctx context.Context, driver, dsn string) (*Database, error) {
	switch driver {
	case DriverSQLite, "sqlite3", "":
		return NewSQLite(ctx, dsn)
	case DriverPostgres, "postgresql":
		return NewPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewSQLite opens a SQLite database. An empty path or ":memory:" yields a
// private in-memory database.
func NewSQLite(ctx context.Context, path string) (*Database, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open(DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if strings.Contains(path, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}
	return initialize(ctx, db, DriverSQLite)
}

// NewPostgres opens a PostgreSQL connection.
func NewPostgres(ctx context.Context, dsn string) (*Database, error) {
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return initialize(ctx, db, DriverPostgres)
}

func initialize(ctx context.Context, db *sql.DB, driver string) (*Database, error) {
	d := &Database{db: db, driver: driver}
	if err := d.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return d, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// DB exposes the underlying handle.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Driver returns the driver name in use.
func (d *Database) Driver() string {
	return d.driver
}

// Ping checks connectivity.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS skills (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		skill_name TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		UNIQUE (user_id, skill_name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_skills_skill_name ON skills(skill_name)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		skill_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_skill_id ON sessions(skill_id)`,
	`CREATE TABLE IF NOT EXISTS belt_history (
		id TEXT PRIMARY KEY,
		skill_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		from_belt TEXT,
		to_belt TEXT NOT NULL,
		achieved_at BIGINT NOT NULL,
		session_id TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_belt_history_skill_id ON belt_history(skill_id)`,
	`CREATE TABLE IF NOT EXISTS session_locks (
		session_id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		acquired_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL
	)`,
}

// Migrate creates any missing tables and indexes. It is idempotent.
func (d *Database) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// q adapts ? placeholders to the active driver.
func (d *Database) q(query string) string {
	if d.driver == DriverPostgres {
		return rebind(query)
	}
	return query
}

// rebind converts ? placeholders to $1, $2, ... for PostgreSQL.
func rebind(query string) string {
	n := 1
	var out strings.Builder
	for _, ch := range query {
		if ch == '?' {
			fmt.Fprintf(&out, "$%d", n)
			n++
			continue
		}
		out.WriteRune(ch)
	}
	return out.String()
}

func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
