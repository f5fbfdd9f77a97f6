package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Event types recorded by the relay.
const (
	EventProcessStarted  = "process.started"
	EventReplySent       = "reply.sent"
	EventFileAnalyzed    = "file.analyzed"
	EventHistoryReset    = "history.reset"
	EventCircuitOpened   = "circuit.opened"
	EventCircuitHalfOpen = "circuit.half_open"
	EventCircuitClosed   = "circuit.closed"
)

// OpenDB opens (or creates) a SQLite database at the given path, ensuring
// that the parent directory exists.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	return db, nil
}

// InitSchema creates the histories and events tables.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS histories (
			session_key TEXT PRIMARY KEY,
			turns TEXT NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT (unixepoch())
		);

		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			timestamp INTEGER NOT NULL DEFAULT (unixepoch()),
			event_type TEXT NOT NULL,
			session_key TEXT,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_session_key ON events(session_key);
	`)
	return err
}

// LogEvent inserts an event and returns its id. sessionKey may be empty for
// process-level events. A nil payload stores NULL.
func LogEvent(ctx context.Context, db *sql.DB, eventType, sessionKey string, payload map[string]any) (int64, error) {
	var payloadJSON any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal event payload: %w", err)
		}
		payloadJSON = string(data)
	}
	var key any
	if sessionKey != "" {
		key = sessionKey
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO events (event_type, session_key, payload) VALUES (?, ?, ?)`,
		eventType, key, payloadJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event %s: %w", eventType, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get event id: %w", err)
	}
	return id, nil
}

// EventLog records events into a database opened with OpenDB.
type EventLog struct {
	DB *sql.DB
}

// Record logs an event and discards the id.
func (l *EventLog) Record(ctx context.Context, eventType, sessionKey string, payload map[string]any) error {
	_, err := LogEvent(ctx, l.DB, eventType, sessionKey, payload)
	return err
}
