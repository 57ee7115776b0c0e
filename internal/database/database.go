// Package database opens the shared SQL handle for the engine's state
// store. Postgres, MySQL, and SQLite are supported; the driver is selected
// by configuration.
package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Config holds connection settings for the state store.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects and verifies the database handle.
func Open(cfg Config) (*sqlx.DB, error) {
	switch cfg.Driver {
	case "postgres", "mysql", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sqlx.Connect(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return db, nil
}

var trackerSchemas = map[string]string{
	"postgres": `
		CREATE TABLE IF NOT EXISTS sla_tracker_state (
			id BIGSERIAL PRIMARY KEY,
			ticket_id TEXT NOT NULL,
			version TEXT NOT NULL,
			prev_version TEXT NOT NULL DEFAULT '',
			has_sla BOOLEAN NOT NULL,
			resolved BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			state TEXT NOT NULL,
			UNIQUE (ticket_id, version)
		)`,
	"mysql": `
		CREATE TABLE IF NOT EXISTS sla_tracker_state (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			ticket_id VARCHAR(191) NOT NULL,
			version VARCHAR(64) NOT NULL,
			prev_version VARCHAR(64) NOT NULL DEFAULT '',
			has_sla BOOLEAN NOT NULL,
			resolved BOOLEAN NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			state MEDIUMTEXT NOT NULL,
			UNIQUE KEY uniq_ticket_version (ticket_id, version)
		)`,
	"sqlite3": `
		CREATE TABLE IF NOT EXISTS sla_tracker_state (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticket_id TEXT NOT NULL,
			version TEXT NOT NULL,
			prev_version TEXT NOT NULL DEFAULT '',
			has_sla BOOLEAN NOT NULL,
			resolved BOOLEAN NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			state TEXT NOT NULL,
			UNIQUE (ticket_id, version)
		)`,
}

// EnsureSchema creates the tracker state table if missing.
func EnsureSchema(db *sqlx.DB) error {
	schema, ok := trackerSchemas[db.DriverName()]
	if !ok {
		return fmt.Errorf("no schema for driver %q", db.DriverName())
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create sla_tracker_state: %w", err)
	}
	return nil
}
