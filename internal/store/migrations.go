// SPDX-License-Identifier: AGPL-3.0-only
package store

import (
	"database/sql"
	"fmt"
)

// migration is one schema step applied inside a transaction.
type migration struct {
	version int
	up      func(tx *sql.Tx) error
}

var migrations = []migration{
	{
		version: 1,
		up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE sessions (
					id         TEXT PRIMARY KEY,
					channel    TEXT NOT NULL,
					started_at TEXT NOT NULL,
					ended_at   TEXT DEFAULT ''
				);
				CREATE TABLE messages (
					session_id   TEXT NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
					seq          INTEGER NOT NULL,
					role         TEXT NOT NULL,
					content      TEXT DEFAULT '',
					tool_name    TEXT DEFAULT '',
					tool_call_id TEXT DEFAULT '',
					PRIMARY KEY (session_id, seq)
				);
			`)
			return err
		},
	},
	{
		version: 2,
		up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE schedule_runs (
					id          INTEGER PRIMARY KEY AUTOINCREMENT,
					schedule_id TEXT NOT NULL,
					session_id  TEXT DEFAULT '',
					prompt      TEXT DEFAULT '',
					output      TEXT DEFAULT '',
					stop        TEXT DEFAULT '',
					error       TEXT DEFAULT '',
					start_time  TEXT NOT NULL,
					end_time    TEXT NOT NULL,
					duration    TEXT DEFAULT ''
				);
				CREATE INDEX idx_schedule_runs_start ON schedule_runs (schedule_id, start_time DESC);
			`)
			return err
		},
	},
}

// runMigrations creates schema_version if needed and applies pending migrations.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := schemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := apply(db, m); err != nil {
			return err
		}
	}
	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var current int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&current)
	if err == sql.ErrNoRows {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (0)"); err != nil {
			return 0, fmt.Errorf("insert initial schema version: %w", err)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return current, nil
}

func apply(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.version, err)
	}
	if err := m.up(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d: %w", m.version, err)
	}
	if _, err := tx.Exec("UPDATE schema_version SET version = ?", m.version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update schema version to %d: %w", m.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.version, err)
	}
	return nil
}
