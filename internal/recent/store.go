package recent

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const timeLayout = "2006-01-02T15:04:05Z"

// Store persists the notified-items dedup set.
type Store struct {
	db *sql.DB
}

// NewStore creates a notified-items store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// HasNotified reports whether the item key is already in the dedup set.
func (s *Store) HasNotified(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM notified_items WHERE item_key = ?`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check notified: %w", err)
	}
	return true, nil
}

// MarkNotified inserts the item key into the dedup set. Idempotent.
func (s *Store) MarkNotified(ctx context.Context, key, title string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notified_items (item_key, title, notified_at)
		VALUES (?, ?, ?)
		ON CONFLICT(item_key) DO NOTHING`,
		key, title, at.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// DeleteBefore prunes dedup records older than cutoff.
// Returns the number of records removed.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM notified_items WHERE notified_at < ?`,
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune notified: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
