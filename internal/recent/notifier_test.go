package recent

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stewarr/stewarr/internal/migrations"
	"github.com/stewarr/stewarr/internal/monitor"
	"github.com/stewarr/stewarr/internal/notify"
	"github.com/stewarr/stewarr/internal/request"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if err := migrations.Run(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMonitor serves a fixed recently-added list.
type fakeMonitor struct {
	items []monitor.RecentItem
	err   error
}

func (f *fakeMonitor) RecentlyAdded(ctx context.Context, since time.Time) ([]monitor.RecentItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []monitor.RecentItem
	for _, item := range f.items {
		if item.AddedAt.After(since) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeMonitor) ActiveStreams(ctx context.Context) (bool, error) { return false, nil }

func (f *fakeMonitor) LibraryContains(ctx context.Context, title string, year int) (bool, error) {
	return false, nil
}

func (f *fakeMonitor) Reachable(ctx context.Context) bool { return true }

// fakeRequests serves a fixed request list.
type fakeRequests struct {
	reqs []*request.Request
}

func (f *fakeRequests) List(ctx context.Context, _ request.Filter) ([]*request.Request, error) {
	return f.reqs, nil
}

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

func newTestNotifier(t *testing.T, mon monitor.Monitor, reqs RequestSource) (*Notifier, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	n := NewNotifier(mon, NewStore(setupTestDB(t)), reqs, sink, Config{
		Overlap:   2 * time.Minute,
		Retention: 30 * 24 * time.Hour,
	}, testLogger())
	return n, sink
}

func TestNotifier_Sweep_Broadcasts(t *testing.T) {
	now := time.Now().UTC()
	mon := &fakeMonitor{items: []monitor.RecentItem{
		{Title: "The Matrix", Year: 1999, MediaType: "movie", AddedAt: now},
		{Title: "Breaking Bad", Year: 2008, MediaType: "show", AddedAt: now},
	}}
	n, sink := newTestNotifier(t, mon, &fakeRequests{})
	n.watermark = now.Add(-10 * time.Minute)

	if err := n.sweepAt(context.Background(), now.Add(time.Second)); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sink.count() != 2 {
		t.Fatalf("broadcasts = %d, want 2: %v", sink.count(), sink.messages)
	}
}

func TestNotifier_Sweep_OverlapDeduplicates(t *testing.T) {
	now := time.Now().UTC()
	mon := &fakeMonitor{items: []monitor.RecentItem{
		{Title: "The Matrix", Year: 1999, MediaType: "movie", AddedAt: now},
	}}
	n, sink := newTestNotifier(t, mon, &fakeRequests{})
	n.watermark = now.Add(-10 * time.Minute)

	// The item lands near the boundary: the second sweep's window, widened
	// backwards by the overlap, sees it again. The dedup set holds.
	if err := n.sweepAt(context.Background(), now.Add(time.Minute)); err != nil {
		t.Fatalf("sweep 1: %v", err)
	}
	if err := n.sweepAt(context.Background(), now.Add(2*time.Minute)); err != nil {
		t.Fatalf("sweep 2: %v", err)
	}

	if sink.count() != 1 {
		t.Errorf("broadcasts = %d, want exactly 1 despite overlap", sink.count())
	}
}

func TestNotifier_Sweep_SuppressesRequestOriginated(t *testing.T) {
	now := time.Now().UTC()
	mon := &fakeMonitor{items: []monitor.RecentItem{
		{Title: "Breaking Bad", Year: 2008, MediaType: "show", AddedAt: now},
		{Title: "Fresh Content", Year: 2026, MediaType: "movie", AddedAt: now},
	}}
	reqs := &fakeRequests{reqs: []*request.Request{
		{Kind: request.KindSeries, Title: "Breaking Bad", Year: 2008,
			Status: request.StatusAvailable, RequestedBy: "alice"},
	}}
	n, sink := newTestNotifier(t, mon, reqs)
	n.watermark = now.Add(-10 * time.Minute)

	if err := n.sweepAt(context.Background(), now.Add(time.Second)); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// The requester already got a direct availability notification; the
	// group broadcast covers only the unsolicited item.
	if sink.count() != 1 {
		t.Fatalf("broadcasts = %d, want 1: %v", sink.count(), sink.messages)
	}

	// Suppressed items still enter the dedup set.
	seen, err := n.store.HasNotified(context.Background(), ItemKey("Breaking Bad", 2008))
	if err != nil {
		t.Fatalf("HasNotified: %v", err)
	}
	if !seen {
		t.Error("suppressed item should be marked notified")
	}
}

func TestNotifier_Sweep_FuzzyTitleSuppression(t *testing.T) {
	now := time.Now().UTC()
	// The monitor and the backend render the same title slightly differently.
	mon := &fakeMonitor{items: []monitor.RecentItem{
		{Title: "Amélie", Year: 2001, MediaType: "movie", AddedAt: now},
	}}
	reqs := &fakeRequests{reqs: []*request.Request{
		{Kind: request.KindMovie, Title: "Amelie", Year: 2001,
			Status: request.StatusAvailable, RequestedBy: "bob"},
	}}
	n, sink := newTestNotifier(t, mon, reqs)
	n.watermark = now.Add(-10 * time.Minute)

	if err := n.sweepAt(context.Background(), now.Add(time.Second)); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sink.count() != 0 {
		t.Errorf("broadcasts = %d, want 0 for a fuzzy-matched request", sink.count())
	}
}

func TestNotifier_Sweep_KindMismatchNotSuppressed(t *testing.T) {
	now := time.Now().UTC()
	mon := &fakeMonitor{items: []monitor.RecentItem{
		{Title: "Fargo", Year: 2014, MediaType: "show", AddedAt: now},
	}}
	// A movie request does not suppress the show of the same name.
	reqs := &fakeRequests{reqs: []*request.Request{
		{Kind: request.KindMovie, Title: "Fargo", Year: 2014,
			Status: request.StatusAvailable, RequestedBy: "alice"},
	}}
	n, sink := newTestNotifier(t, mon, reqs)
	n.watermark = now.Add(-10 * time.Minute)

	if err := n.sweepAt(context.Background(), now.Add(time.Second)); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sink.count() != 1 {
		t.Errorf("broadcasts = %d, want 1", sink.count())
	}
}

func TestNotifier_Sweep_MonitorErrorKeepsWatermark(t *testing.T) {
	now := time.Now().UTC()
	mon := &fakeMonitor{err: errors.New("connection refused")}
	n, sink := newTestNotifier(t, mon, &fakeRequests{})
	mark := now.Add(-10 * time.Minute)
	n.watermark = mark

	if err := n.sweepAt(context.Background(), now); err == nil {
		t.Fatal("sweep should surface the monitor error")
	}
	if !n.watermark.Equal(mark) {
		t.Error("watermark must not advance on a failed sweep")
	}

	// Once the monitor recovers, the next sweep still covers the window and
	// announces the item exactly once.
	mon.err = nil
	mon.items = []monitor.RecentItem{
		{Title: "The Matrix", Year: 1999, MediaType: "movie", AddedAt: now.Add(-5 * time.Minute)},
	}
	if err := n.sweepAt(context.Background(), now.Add(5*time.Minute)); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sink.count() != 1 {
		t.Errorf("broadcasts = %d, want 1 after recovery", sink.count())
	}
}

func TestStore_DeleteBefore(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.MarkNotified(ctx, "old_1980", "Old", now.Add(-60*24*time.Hour)); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	if err := store.MarkNotified(ctx, "new_2026", "New", now); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}

	n, err := store.DeleteBefore(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	seen, _ := store.HasNotified(ctx, "new_2026")
	if !seen {
		t.Error("recent record should survive pruning")
	}
}
