package request

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stewarr/stewarr/internal/backend"
	"github.com/stewarr/stewarr/internal/migrations"
	"github.com/stewarr/stewarr/internal/notify"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// In-memory databases are per-connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if err := migrations.Run(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

// mockBackend is a scriptable acquisition backend.
type mockBackend struct {
	addID     int64
	addErr    error
	status    *backend.ItemStatus
	statusErr error

	addCalls    int
	statusCalls int
}

func (m *mockBackend) AddItem(ctx context.Context, p backend.AddParams) (int64, error) {
	m.addCalls++
	return m.addID, m.addErr
}

func (m *mockBackend) GetStatus(ctx context.Context, itemID int64) (*backend.ItemStatus, error) {
	m.statusCalls++
	return m.status, m.statusErr
}

func (m *mockBackend) ItemExists(ctx context.Context, externalID string) (bool, error) {
	return false, nil
}

// recordingSink captures dispatched notifications.
type recordingSink struct {
	mu       sync.Mutex
	messages []string
}

func (s *recordingSink) Notify(ctx context.Context, scope notify.Scope, message string, silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func newTestTracker(t *testing.T, movies, series backend.Backend) (*Tracker, *Store, *recordingSink) {
	t.Helper()
	db := setupTestDB(t)
	store := NewStore(db)
	sink := &recordingSink{}
	tracker := NewTracker(store, movies, series, sink, Config{
		FailAfter:         3,
		ReconcileInterval: 15 * time.Minute,
		Retention:         30 * 24 * time.Hour,
	}, testLogger())
	return tracker, store, sink
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
