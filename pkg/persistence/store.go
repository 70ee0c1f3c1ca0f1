// Package persistence provides the SQLite store for prospect searches,
// prospects, campaigns, recipients and delivery events.
package persistence

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // cgo-free sqlite driver

	"outreach/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS prospect_searches (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	request     TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	created_at  TEXT NOT NULL DEFAULT (datetime('now')),
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS prospects (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	search_id    INTEGER NOT NULL REFERENCES prospect_searches(id),
	contact_name TEXT NOT NULL,
	email        TEXT NOT NULL DEFAULT '',
	company      TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'high',
	source       TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_prospects_email
	ON prospects(search_id, lower(email), lower(company));
CREATE INDEX IF NOT EXISTS idx_prospects_name
	ON prospects(search_id, lower(contact_name), lower(company));

CREATE TABLE IF NOT EXISTS campaigns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	csv_path   TEXT NOT NULL DEFAULT '',
	sheet_url  TEXT NOT NULL DEFAULT '',
	gmass_id   TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'draft',
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS recipients (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	campaign_id  INTEGER NOT NULL REFERENCES campaigns(id),
	contact_name TEXT NOT NULL,
	email        TEXT NOT NULL,
	company      TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	language     TEXT NOT NULL DEFAULT 'en',
	status       TEXT NOT NULL DEFAULT 'pending',
	stage        INTEGER NOT NULL DEFAULT 0,
	last_sent_at TEXT
);

CREATE TABLE IF NOT EXISTS events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	recipient_id INTEGER NOT NULL REFERENCES recipients(id),
	event        TEXT NOT NULL,
	detail       TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// Store wraps the single-writer SQLite connection.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	// SQLite has one writer; a pool of one serializes concurrent tool workers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("persistence")
	logger.Info("database ready: %s", path)
	return &Store{db: db, logger: logger}, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.db.Close()
}
