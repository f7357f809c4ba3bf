package request

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const timeLayout = "2006-01-02T15:04:05Z"

// Store persists request records.
type Store struct {
	db *sql.DB
}

// NewStore creates a request store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const requestColumns = `id, kind, external_id, title, year, requested_by, requested_at,
	season_selection, backend_item_id, status, backend_error, check_failures,
	last_checked_at, notified_available_at`

// Add inserts a new request record.
func (s *Store) Add(ctx context.Context, r *Request) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.ExternalID, r.Title, r.Year, r.RequestedBy,
		r.RequestedAt.UTC().Format(timeLayout), r.SeasonSelection,
		nullInt64(r.BackendItemID), r.Status, r.BackendError, r.CheckFailures,
		nullTime(r.LastCheckedAt), nullTime(r.NotifiedAt),
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// Get retrieves a request by ID.
// Returns ErrNotFound if the request does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	return r, nil
}

// Update writes back a request's mutable fields.
// Returns ErrNotFound if the request does not exist.
func (s *Store) Update(ctx context.Context, r *Request) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE requests SET backend_item_id = ?, status = ?, backend_error = ?,
			check_failures = ?, last_checked_at = ?, notified_available_at = ?
		WHERE id = ?`,
		nullInt64(r.BackendItemID), r.Status, r.BackendError, r.CheckFailures,
		nullTime(r.LastCheckedAt), nullTime(r.NotifiedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("update request %s: %w", r.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update request %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

// Transition changes a request's status with validation and writes it back.
func (s *Store) Transition(ctx context.Context, r *Request, to Status) error {
	if !r.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	return s.Update(ctx, r)
}

// FindActive returns the non-terminal request for the given requester, content
// and season scope, or ErrNotFound.
func (s *Store) FindActive(ctx context.Context, requestedBy, externalID string, seasons SeasonSelection) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE requested_by = ? AND external_id = ? AND season_selection = ?
		  AND status NOT IN (?, ?)`,
		requestedBy, externalID, seasons, StatusAvailable, StatusFailed)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active request: %w", err)
	}
	return r, nil
}

// List returns requests matching the filter, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]*Request, error) {
	var conditions []string
	var args []any

	if f.RequestedBy != "" {
		conditions = append(conditions, "requested_by = ?")
		args = append(args, f.RequestedBy)
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.Active {
		conditions = append(conditions, "status NOT IN (?, ?)")
		args = append(args, StatusAvailable, StatusFailed)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := `SELECT ` + requestColumns + ` FROM requests ` + whereClause + ` ORDER BY requested_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return results, nil
}

// DeleteTerminalBefore removes terminal requests requested before cutoff.
// Returns the number of records removed.
func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM requests
		WHERE status IN (?, ?) AND requested_at < ?`,
		StatusAvailable, StatusFailed, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("delete old requests: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var (
		r           Request
		requestedAt string
		backendID   sql.NullInt64
		checkedAt   sql.NullString
		notifiedAt  sql.NullString
	)
	err := row.Scan(&r.ID, &r.Kind, &r.ExternalID, &r.Title, &r.Year,
		&r.RequestedBy, &requestedAt, &r.SeasonSelection, &backendID,
		&r.Status, &r.BackendError, &r.CheckFailures, &checkedAt, &notifiedAt)
	if err != nil {
		return nil, err
	}
	r.RequestedAt, _ = time.Parse(timeLayout, requestedAt)
	if backendID.Valid {
		r.BackendItemID = &backendID.Int64
	}
	r.LastCheckedAt = parseNullTime(checkedAt)
	r.NotifiedAt = parseNullTime(notifiedAt)
	return &r, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}
