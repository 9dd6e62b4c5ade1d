package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a file-backed sqlite database. It is the single-node alternative
// to the postgres backend, used for local development and small deployments.
type DB struct {
	conn *sql.DB
}

// NewDB opens (and creates if needed) the database at path and bootstraps
// the schema.
func NewDB(ctx context.Context, path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// sqlite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent use.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies database connectivity
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS user_sessions (
	email               TEXT PRIMARY KEY,
	role                TEXT NOT NULL DEFAULT '',
	supervisor_space_id TEXT NOT NULL DEFAULT '',
	active_call         INTEGER NOT NULL DEFAULT 0,
	active_thread_id    TEXT NOT NULL DEFAULT '',
	call_start          TIMESTAMP,
	assignment          TEXT NOT NULL DEFAULT '{}',
	created_at          TIMESTAMP NOT NULL,
	updated_at          TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	message_id  TEXT PRIMARY KEY,
	space_id    TEXT NOT NULL,
	thread_id   TEXT NOT NULL,
	client      TEXT NOT NULL DEFAULT '',
	user_email  TEXT NOT NULL,
	text        TEXT NOT NULL,
	sent_at     TIMESTAMP NOT NULL,
	received_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages (thread_id, received_at);

CREATE TABLE IF NOT EXISTS responses (
	id                   TEXT PRIMARY KEY,
	message_id           TEXT NOT NULL,
	thread_id            TEXT NOT NULL,
	prompt               TEXT NOT NULL,
	answer               TEXT NOT NULL,
	rendered_card        TEXT NOT NULL DEFAULT '',
	prompt_at            TIMESTAMP NOT NULL,
	answer_at            TIMESTAMP NOT NULL,
	user_thanked_at      TIMESTAMP,
	approver_received_at TIMESTAMP,
	approver_email       TEXT,
	approved             INTEGER,
	approval_at          TIMESTAMP,
	user_response_at     TIMESTAMP,
	supervisor_message   TEXT
);
CREATE INDEX IF NOT EXISTS idx_responses_thread ON responses (thread_id, answer_at);

CREATE TABLE IF NOT EXISTS evaluations (
	thread_id        TEXT PRIMARY KEY,
	call_start       TIMESTAMP NOT NULL,
	assignment       TEXT NOT NULL DEFAULT '{}',
	call_complete    INTEGER NOT NULL DEFAULT 0,
	survey_responses TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS offices (
	email_domain TEXT PRIMARY KEY,
	regions      TEXT NOT NULL DEFAULT '[]'
);
`
