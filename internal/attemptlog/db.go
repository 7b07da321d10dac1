// Package attemptlog provides optional SQLite-backed persistence for the
// connection-attempt observability event stream.
//
// internal/netlog emits attempt lifecycle events as structured slog
// records for live observability; attemptlog additionally persists the
// same events to a durable table so an operator can query attempt history
// after the fact (post-mortem on a flaky destination, audit of how often
// ECH/TAI retries fire, etc). A running pool works fine with no DB
// attached — this is an optional sink, not a dependency of
// internal/attemptmgr itself.
//
// Every insert increments a version counter via a SQLite trigger, mirroring
// the teacher's config-version tracking so a caller can cheaply detect
// "has anything happened since I last looked" without re-scanning the
// table.
package attemptlog

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a SQLite database connection holding the attempt event log.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// Open opens or creates a SQLite database at path, running the embedded
// migrations to bring it up to schema.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open attempt log database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{conn: conn}

	if err := db.runMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run attempt log migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) runMigrations() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(db.conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Version returns the current event log version, bumped on every insert.
func (db *DB) Version() (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var version int64
	err := db.conn.QueryRow("SELECT version FROM event_log_version WHERE id = 1").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("get event log version: %w", err)
	}
	return version, nil
}

// Health checks database connectivity.
func (db *DB) Health() error {
	return db.conn.Ping()
}
