package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore persists history as JSON in the histories table created by
// db.InitSchema.
type SQLiteStore struct {
	DB  *sql.DB
	TTL time.Duration

	now func() time.Time
}

// NewSQLiteStore creates a SQLiteStore. A non-positive ttl keeps rows forever.
func NewSQLiteStore(database *sql.DB, ttl time.Duration) *SQLiteStore {
	return &SQLiteStore{DB: database, TTL: ttl, now: time.Now}
}

// Get returns the stored history for key, oldest turn first.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]Turn, error) {
	var (
		raw       string
		updatedAt int64
	)
	err := s.DB.QueryRowContext(ctx,
		"SELECT turns, updated_at FROM histories WHERE session_key = ?", key,
	).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", key, err)
	}
	if s.TTL > 0 && s.clock().Sub(time.Unix(updatedAt, 0)) > s.TTL {
		if _, err := s.DB.ExecContext(ctx, "DELETE FROM histories WHERE session_key = ?", key); err != nil {
			return nil, fmt.Errorf("expire history %s: %w", key, err)
		}
		return nil, nil
	}

	var turns []Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", key, err)
	}
	return turns, nil
}

// Put upserts the history for key. Empty turns delete the row.
func (s *SQLiteStore) Put(ctx context.Context, key string, turns []Turn) error {
	if len(turns) == 0 {
		if _, err := s.DB.ExecContext(ctx, "DELETE FROM histories WHERE session_key = ?", key); err != nil {
			return fmt.Errorf("clear history %s: %w", key, err)
		}
		return nil
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode history %s: %w", key, err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO histories (session_key, turns, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_key) DO UPDATE SET turns = excluded.turns, updated_at = excluded.updated_at`,
		key, string(data), s.clock().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save history %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
