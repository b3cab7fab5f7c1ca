// Package journal persists session lifecycle events to a local SQLite
// database so operators can reconstruct what happened to a session after
// the fact (authorization attempts, loop failures, evictions).
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one recorded lifecycle event.
type Entry struct {
	ID        int64
	Session   string
	Event     string
	Detail    string
	Timestamp time.Time
}

// Journal is an append-only lifecycle event log.
type Journal struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the journal database at path.
func Open(path string, logger zerolog.Logger) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	// WAL keeps writers from blocking the occasional reader.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS session_events (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			session   TEXT NOT NULL,
			event     TEXT NOT NULL,
			detail    TEXT NOT NULL DEFAULT '',
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_session_events_session
			ON session_events(session, id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("Session journal opened")
	return &Journal{db: db, logger: logger}, nil
}

// Record appends one event. Implements the supervisor's Recorder.
func (j *Journal) Record(ctx context.Context, session, event, detail string) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO session_events (session, event, detail) VALUES (?, ?, ?)",
		session, event, detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record session event: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for a session, newest first. An empty
// session name returns events across all sessions.
func (j *Journal) Recent(ctx context.Context, session string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT id, session, event, detail, timestamp FROM session_events"
	args := []interface{}{}
	if session != "" {
		query += " WHERE session = ?"
		args = append(args, session)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Session, &e.Event, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan session event: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session events: %w", err)
	}

	return entries, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
