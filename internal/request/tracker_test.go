package request

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stewarr/stewarr/internal/backend"
)

func movieParams(by string) CreateParams {
	return CreateParams{
		Kind:        KindMovie,
		TMDBID:      "603",
		Title:       "The Matrix",
		Year:        1999,
		RequestedBy: by,
	}
}

func seriesParams(by string, sel SeasonSelection) CreateParams {
	return CreateParams{
		Kind:        KindSeries,
		TMDBID:      "1396",
		TVDBID:      "81189",
		Title:       "Breaking Bad",
		Year:        2008,
		RequestedBy: by,
		Seasons:     sel,
	}
}

func TestTracker_Create_Movie(t *testing.T) {
	movies := &mockBackend{addID: 7}
	tracker, store, _ := newTestTracker(t, movies, &mockBackend{})

	r, err := tracker.Create(context.Background(), movieParams("alice"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if r.Status != StatusSearching {
		t.Errorf("Status = %q, want searching", r.Status)
	}
	if r.BackendItemID == nil || *r.BackendItemID != 7 {
		t.Errorf("BackendItemID = %v, want 7", r.BackendItemID)
	}
	if movies.addCalls != 1 {
		t.Errorf("addCalls = %d, want 1", movies.addCalls)
	}

	// Persisted, not just in memory.
	stored, err := store.Get(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != StatusSearching {
		t.Errorf("stored Status = %q, want searching", stored.Status)
	}
}

func TestTracker_Create_SeriesExternalID(t *testing.T) {
	tracker, _, _ := newTestTracker(t, &mockBackend{}, &mockBackend{addID: 9})

	r, err := tracker.Create(context.Background(), seriesParams("alice", SeasonsLatest))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.ExternalID != "1396:81189" {
		t.Errorf("ExternalID = %q, want tmdb:tvdb composite", r.ExternalID)
	}
}

func TestTracker_Create_Duplicate(t *testing.T) {
	tracker, store, _ := newTestTracker(t, &mockBackend{addID: 7}, &mockBackend{addID: 9})
	ctx := context.Background()

	first, err := tracker.Create(ctx, seriesParams("alice", SeasonsLatest))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Same user, same content, same scope: rejected, no second record.
	_, err = tracker.Create(ctx, seriesParams("alice", SeasonsLatest))
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("Create duplicate = %v, want ErrDuplicateRequest", err)
	}
	all, _ := store.List(ctx, Filter{})
	if len(all) != 1 {
		t.Errorf("List = %d records, want 1 after rejected duplicate", len(all))
	}

	// Different season scope is a distinct request.
	if _, err := tracker.Create(ctx, seriesParams("alice", SeasonsAll)); err != nil {
		t.Errorf("Create different scope: %v", err)
	}
	// Different user too.
	if _, err := tracker.Create(ctx, seriesParams("bob", SeasonsLatest)); err != nil {
		t.Errorf("Create different user: %v", err)
	}

	// Once the first request is terminal, the same tuple may be requested again.
	if err := store.Transition(ctx, first, StatusDownloading); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := store.Transition(ctx, first, StatusAvailable); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if _, err := tracker.Create(ctx, seriesParams("alice", SeasonsLatest)); err != nil {
		t.Errorf("Create after terminal: %v", err)
	}
}

func TestTracker_Create_AddFailure(t *testing.T) {
	movies := &mockBackend{addErr: errors.New("root folder does not exist")}
	tracker, store, _ := newTestTracker(t, movies, &mockBackend{})

	r, err := tracker.Create(context.Background(), movieParams("alice"))
	if !errors.Is(err, ErrAddFailed) {
		t.Fatalf("Create = %v, want ErrAddFailed", err)
	}

	// The failure is persisted with the backend's error text for display.
	stored, err := store.Get(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", stored.Status)
	}
	if stored.BackendError != "root folder does not exist" {
		t.Errorf("BackendError = %q", stored.BackendError)
	}
}

func TestTracker_Create_Validation(t *testing.T) {
	tracker, _, _ := newTestTracker(t, &mockBackend{}, &mockBackend{})
	ctx := context.Background()

	p := movieParams("alice")
	p.Seasons = SeasonsAll
	if _, err := tracker.Create(ctx, p); !errors.Is(err, ErrInvalidSeasons) {
		t.Errorf("movie with seasons = %v, want ErrInvalidSeasons", err)
	}

	s := seriesParams("alice", "everything")
	if _, err := tracker.Create(ctx, s); !errors.Is(err, ErrInvalidSeasons) {
		t.Errorf("bad selection = %v, want ErrInvalidSeasons", err)
	}

	s = seriesParams("alice", SeasonsAll)
	s.TVDBID = ""
	if _, err := tracker.Create(ctx, s); err == nil {
		t.Error("series without tvdb id should fail")
	}
}

func TestTracker_Reconcile_MovieBecomesAvailable(t *testing.T) {
	movies := &mockBackend{addID: 7, status: &backend.ItemStatus{State: backend.StateQueued}}
	tracker, store, sink := newTestTracker(t, movies, &mockBackend{})
	ctx := context.Background()

	r, err := tracker.Create(ctx, movieParams("alice"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Sweep 1: still queued.
	if err := tracker.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	stored, _ := store.Get(ctx, r.ID)
	if stored.Status != StatusSearching {
		t.Errorf("Status = %q, want searching", stored.Status)
	}
	if stored.LastCheckedAt == nil {
		t.Error("LastCheckedAt should be set on every examined record")
	}

	// Sweep 2: file on disk. The record steps through downloading to
	// available and the requester is notified once.
	movies.status = &backend.ItemStatus{State: backend.StateAvailable}
	if err := tracker.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	stored, _ = store.Get(ctx, r.ID)
	if stored.Status != StatusAvailable {
		t.Errorf("Status = %q, want available", stored.Status)
	}
	if stored.NotifiedAt == nil {
		t.Error("NotifiedAt should be set after availability notification")
	}
	if sink.count() != 1 {
		t.Fatalf("notifications = %d, want exactly 1", sink.count())
	}

	// Further sweeps leave the terminal record alone and never re-notify.
	statusCalls := movies.statusCalls
	if err := tracker.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if movies.statusCalls != statusCalls {
		t.Error("terminal request should not be re-examined")
	}
	if sink.count() != 1 {
		t.Errorf("notifications = %d, want still 1", sink.count())
	}
}

func TestTracker_Reconcile_SeriesLatestScope(t *testing.T) {
	series := &mockBackend{addID: 9}
	tracker, store, sink := newTestTracker(t, &mockBackend{}, series)
	ctx := context.Background()

	r, err := tracker.Create(ctx, seriesParams("alice", SeasonsLatest))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Sweep 1: grabbing episodes.
	series.status = &backend.ItemStatus{
		State: backend.StateDownloading,
		Seasons: []backend.SeasonStatus{
			{Number: 1, Complete: true},
			{Number: 5, Complete: false},
		},
	}
	if err := tracker.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	stored, _ := store.Get(ctx, r.ID)
	if stored.Status != StatusDownloading {
		t.Errorf("Status = %q, want downloading", stored.Status)
	}

	// Sweep 2: still short of the latest season.
	if err := tracker.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if sink.count() != 0 {
		t.Fatalf("notifications = %d, want 0 before scope satisfied", sink.count())
	}

	// Sweep 3: the latest season completes. Earlier seasons being absent
	// does not matter for LATEST scope.
	series.status = &backend.ItemStatus{
		State: backend.StateDownloading,
		Seasons: []backend.SeasonStatus{
			{Number: 1, Complete: false},
			{Number: 5, Complete: true},
		},
	}
	if err := tracker.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	stored, _ = store.Get(ctx, r.ID)
	if stored.Status != StatusAvailable {
		t.Errorf("Status = %q, want available", stored.Status)
	}
	if sink.count() != 1 {
		t.Errorf("notifications = %d, want exactly 1", sink.count())
	}
}

func TestTracker_Reconcile_FailsAfterRepeatedErrors(t *testing.T) {
	movies := &mockBackend{addID: 7, statusErr: errors.New("connection refused")}
	tracker, store, sink := newTestTracker(t, movies, &mockBackend{})
	ctx := context.Background()

	r, err := tracker.Create(ctx, movieParams("alice"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// FailAfter is 3 in the test config: two sweeps tolerated, third fails it.
	for i := 0; i < 2; i++ {
		if err := tracker.Reconcile(ctx); err != nil {
			t.Fatalf("Reconcile %d: %v", i, err)
		}
		stored, _ := store.Get(ctx, r.ID)
		if stored.Status != StatusSearching {
			t.Fatalf("Status = %q after %d failures, want searching", stored.Status, i+1)
		}
	}

	if err := tracker.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	stored, _ := store.Get(ctx, r.ID)
	if stored.Status != StatusFailed {
		t.Errorf("Status = %q, want failed after exhausting retry budget", stored.Status)
	}
	if stored.CheckFailures != 3 {
		t.Errorf("CheckFailures = %d, want 3", stored.CheckFailures)
	}
	if sink.count() != 0 {
		t.Errorf("notifications = %d, want 0 for failure", sink.count())
	}
}

func TestTracker_Reconcile_ErrorCounterResets(t *testing.T) {
	movies := &mockBackend{addID: 7, statusErr: errors.New("timeout")}
	tracker, store, _ := newTestTracker(t, movies, &mockBackend{})
	ctx := context.Background()

	r, err := tracker.Create(ctx, movieParams("alice"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Two failures, then a success: the consecutive counter resets.
	_ = tracker.Reconcile(ctx)
	_ = tracker.Reconcile(ctx)
	movies.statusErr = nil
	movies.status = &backend.ItemStatus{State: backend.StateQueued}
	if err := tracker.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	stored, _ := store.Get(ctx, r.ID)
	if stored.CheckFailures != 0 {
		t.Errorf("CheckFailures = %d, want 0 after successful check", stored.CheckFailures)
	}
	if stored.BackendError != "" {
		t.Errorf("BackendError = %q, want cleared", stored.BackendError)
	}
}

func TestTracker_Reconcile_NotFoundCountsAsFailure(t *testing.T) {
	movies := &mockBackend{addID: 7, status: &backend.ItemStatus{State: backend.StateNotFound}}
	tracker, store, _ := newTestTracker(t, movies, &mockBackend{})
	ctx := context.Background()

	r, err := tracker.Create(ctx, movieParams("alice"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		_ = tracker.Reconcile(ctx)
	}
	stored, _ := store.Get(ctx, r.ID)
	if stored.Status != StatusFailed {
		t.Errorf("Status = %q, want failed when item vanishes from backend", stored.Status)
	}
}

func TestTracker_Reconcile_StalePendingFails(t *testing.T) {
	tracker, store, _ := newTestTracker(t, &mockBackend{}, &mockBackend{})
	ctx := context.Background()

	// A pending record older than the sweep interval is a create that
	// crashed before the backend acknowledged the add.
	stale := &Request{
		ID:          uuid.NewString(),
		Kind:        KindMovie,
		ExternalID:  "603",
		Title:       "The Matrix",
		RequestedBy: "alice",
		RequestedAt: time.Now().UTC().Add(-time.Hour),
		Status:      StatusPending,
	}
	if err := store.Add(ctx, stale); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := tracker.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	stored, _ := store.Get(ctx, stale.ID)
	if stored.Status != StatusFailed {
		t.Errorf("Status = %q, want failed for stale pending", stored.Status)
	}

	// A fresh pending record is left for its create to finish.
	fresh := &Request{
		ID:          uuid.NewString(),
		Kind:        KindMovie,
		ExternalID:  "604",
		Title:       "The Matrix Reloaded",
		RequestedBy: "alice",
		RequestedAt: time.Now().UTC(),
		Status:      StatusPending,
	}
	if err := store.Add(ctx, fresh); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := tracker.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	stored, _ = store.Get(ctx, fresh.ID)
	if stored.Status != StatusPending {
		t.Errorf("Status = %q, want fresh pending left alone", stored.Status)
	}
}

func TestTracker_Query(t *testing.T) {
	tracker, _, _ := newTestTracker(t, &mockBackend{addID: 7}, &mockBackend{addID: 9})
	ctx := context.Background()

	if _, err := tracker.Create(ctx, movieParams("alice")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := tracker.Create(ctx, seriesParams("bob", SeasonsAll)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	mine, err := tracker.Query(ctx, "alice")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(mine) != 1 || mine[0].RequestedBy != "alice" {
		t.Errorf("Query(alice) = %v, want alice's single request", mine)
	}

	all, err := tracker.Query(ctx, "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Query(all) = %d, want 2", len(all))
	}
}

// blockingBackend parks AddItem until released.
type blockingBackend struct {
	mockBackend
	release chan struct{}
}

func (b *blockingBackend) AddItem(ctx context.Context, p backend.AddParams) (int64, error) {
	select {
	case <-b.release:
		return 7, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestTracker_Create_DoesNotBlockReconcile(t *testing.T) {
	movies := &blockingBackend{release: make(chan struct{})}
	tracker, store, _ := newTestTracker(t, movies, &mockBackend{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := tracker.Create(ctx, movieParams("alice"))
		done <- err
	}()

	// Once the pending record is visible, Create is parked inside the
	// backend call.
	deadline := time.After(5 * time.Second)
	for {
		active, err := store.List(ctx, Filter{Active: true})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(active) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("pending record never appeared")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// The sweep must run to completion while the add is still in flight.
	if err := tracker.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	close(movies.release)
	if err := <-done; err != nil {
		t.Fatalf("Create: %v", err)
	}

	r, err := store.FindActive(ctx, "alice", "603", "")
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if r.Status != StatusSearching {
		t.Errorf("Status = %q, want searching", r.Status)
	}
}

func TestScopeSatisfied(t *testing.T) {
	complete := backend.SeasonStatus{Number: 1, Complete: true}
	partial := backend.SeasonStatus{Number: 2, Complete: false}

	tests := []struct {
		name    string
		seasons []backend.SeasonStatus
		sel     SeasonSelection
		want    bool
	}{
		{"all complete", []backend.SeasonStatus{complete, {Number: 2, Complete: true}}, SeasonsAll, true},
		{"all with gap", []backend.SeasonStatus{complete, partial}, SeasonsAll, false},
		{"latest complete", []backend.SeasonStatus{partial, {Number: 5, Complete: true}}, SeasonsLatest, true},
		{"latest incomplete", []backend.SeasonStatus{complete, partial}, SeasonsLatest, false},
		{"first complete", []backend.SeasonStatus{complete, partial}, SeasonsFirst, true},
		{"first incomplete", []backend.SeasonStatus{{Number: 1, Complete: false}, {Number: 2, Complete: true}}, SeasonsFirst, false},
		{"no seasons", nil, SeasonsAll, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scopeSatisfied(tt.seasons, tt.sel); got != tt.want {
				t.Errorf("scopeSatisfied = %v, want %v", got, tt.want)
			}
		})
	}
}
