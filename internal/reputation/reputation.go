// Package reputation persists a per-remote-user history — last-seen
// time and accept/reject counts — across restarts, annotating the
// rendezvous client's LIST/ALIVE presence queries with history the
// signaling protocol itself does not retain.
package reputation

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the reputation database's name under the identity directory.
const FileName = "reputation.db"

// Entry is one remote user id's accumulated history.
type Entry struct {
	UserID        string
	LastSeenAt    time.Time
	AcceptedCalls int
	RejectedCalls int
}

// Store wraps a SQLite-backed reputation database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the reputation database under dir.
func Open(dir string) (*Store, error) {
	path := filepath.Join(dir, FileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("reputation: open %s: %w", path, err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS peers (
	user_id        TEXT PRIMARY KEY,
	last_seen_at   INTEGER NOT NULL,
	accepted_calls INTEGER NOT NULL DEFAULT 0,
	rejected_calls INTEGER NOT NULL DEFAULT 0
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("reputation: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// RecordSeen upserts userID's last-seen timestamp, used on every LIST
// query and every ALIVE received.
func (s *Store) RecordSeen(ctx context.Context, userID string, at time.Time) error {
	const query = `
INSERT INTO peers (user_id, last_seen_at, accepted_calls, rejected_calls)
VALUES (?, ?, 0, 0)
ON CONFLICT(user_id) DO UPDATE SET last_seen_at = excluded.last_seen_at`
	_, err := s.db.ExecContext(ctx, query, userID, at.Unix())
	if err != nil {
		return fmt.Errorf("reputation: record seen for %s: %w", userID, err)
	}
	return nil
}

// RecordOutcome increments userID's accepted or rejected call counter.
func (s *Store) RecordOutcome(ctx context.Context, userID string, at time.Time, accepted bool) error {
	column := "rejected_calls"
	if accepted {
		column = "accepted_calls"
	}
	query := fmt.Sprintf(`
INSERT INTO peers (user_id, last_seen_at, accepted_calls, rejected_calls)
VALUES (?, ?, 0, 0)
ON CONFLICT(user_id) DO UPDATE SET last_seen_at = excluded.last_seen_at, %s = %s + 1`, column, column)
	_, err := s.db.ExecContext(ctx, query, userID, at.Unix())
	if err != nil {
		return fmt.Errorf("reputation: record outcome for %s: %w", userID, err)
	}
	return nil
}

// Lookup returns userID's reputation entry, or ok=false if never seen.
func (s *Store) Lookup(ctx context.Context, userID string) (Entry, bool, error) {
	const query = `SELECT user_id, last_seen_at, accepted_calls, rejected_calls FROM peers WHERE user_id = ?`
	row := s.db.QueryRowContext(ctx, query, userID)

	var entry Entry
	var lastSeenUnix int64
	if err := row.Scan(&entry.UserID, &lastSeenUnix, &entry.AcceptedCalls, &entry.RejectedCalls); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("reputation: lookup %s: %w", userID, err)
	}
	entry.LastSeenAt = time.Unix(lastSeenUnix, 0)
	return entry, true, nil
}

// All returns every tracked remote user's reputation entry, ordered by
// most recently seen first.
func (s *Store) All(ctx context.Context) ([]Entry, error) {
	const query = `SELECT user_id, last_seen_at, accepted_calls, rejected_calls FROM peers ORDER BY last_seen_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reputation: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var lastSeenUnix int64
		if err := rows.Scan(&entry.UserID, &lastSeenUnix, &entry.AcceptedCalls, &entry.RejectedCalls); err != nil {
			return nil, fmt.Errorf("reputation: scan: %w", err)
		}
		entry.LastSeenAt = time.Unix(lastSeenUnix, 0)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
