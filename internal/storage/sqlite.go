// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/parley-tui/internal/model"
)

var (
	ErrDatabaseError = errors.New("database error")
	ErrNotFound      = errors.New("session not found")
)

// schema holds sessions and their messages. Messages cascade with their
// session; position preserves conversation order across reloads.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	is_error    INTEGER NOT NULL DEFAULT 0,
	attachments TEXT
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, position);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);
`

// =============================================================================
// SQLITE SYNCER
// =============================================================================

// SQLiteSyncer persists session history in a local SQLite database.
type SQLiteSyncer struct {
	db *sql.DB
}

// DefaultDBPath returns the standard history database location.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".parley", "history.db"), nil
}

// NewSQLiteSyncer opens (creating if needed) the history database at path.
func NewSQLiteSyncer(path string) (*SQLiteSyncer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteSyncer{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteSyncer) Close() error {
	return s.db.Close()
}

// =============================================================================
// SYNCER IMPLEMENTATION
// =============================================================================

// LoadSessions returns all persisted sessions, most recently updated first.
func (s *SQLiteSyncer) LoadSessions() ([]*model.Session, error) {
	rows, err := s.db.Query(`
		SELECT id, title, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		var sess model.Session
		var created, updated string
		if err := rows.Scan(&sess.ID, &sess.Title, &created, &updated); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		sess.CreatedAt = parseTime(created)
		sess.UpdatedAt = parseTime(updated)
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	for _, sess := range sessions {
		if err := s.loadMessages(sess); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// loadMessages fills a session's message list in conversation order.
func (s *SQLiteSyncer) loadMessages(sess *model.Session) error {
	rows, err := s.db.Query(`
		SELECT id, role, content, created_at, is_error, attachments
		FROM messages WHERE session_id = ? ORDER BY position`, sess.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg model.Message
		var role, created string
		var isError int
		var attachments sql.NullString
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &created, &isError, &attachments); err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		msg.Role = model.Role(role)
		msg.CreatedAt = parseTime(created)
		msg.IsError = isError != 0
		if attachments.Valid && attachments.String != "" {
			if err := json.Unmarshal([]byte(attachments.String), &msg.Attachments); err != nil {
				// A corrupt attachment blob loses the attachments, not
				// the message.
				msg.Attachments = nil
			}
		}
		sess.Messages = append(sess.Messages, &msg)
	}
	return rows.Err()
}

// SessionSaved replaces the stored state of one session. Upsert the
// session row, then rewrite its message list in a single transaction.
func (s *SQLiteSyncer) SessionSaved(sess *model.Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sessions (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		sess.ID, sess.Title, formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", sess.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	for i, msg := range sess.Messages {
		var attachments any
		if len(msg.Attachments) > 0 {
			blob, err := json.Marshal(msg.Attachments)
			if err != nil {
				return fmt.Errorf("failed to encode attachments: %w", err)
			}
			attachments = string(blob)
		}
		_, err := tx.Exec(`
			INSERT INTO messages (id, session_id, position, role, content, created_at, is_error, attachments)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, sess.ID, i, msg.Role.String(), msg.Content, formatTime(msg.CreatedAt), boolToInt(msg.IsError), attachments)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
	}

	return tx.Commit()
}

// SessionDeleted removes the session; messages cascade.
func (s *SQLiteSyncer) SessionDeleted(id string) error {
	res, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
