package request

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stewarr/stewarr/internal/backend"
	"github.com/stewarr/stewarr/internal/notify"
)

// Config tunes the tracker.
type Config struct {
	// FailAfter is the number of consecutive reconcile failures before a
	// request is marked failed.
	FailAfter int
	// ReconcileInterval is the sweep cadence. A pending request older than
	// one interval is treated as a create that crashed before the backend
	// acknowledged the add.
	ReconcileInterval time.Duration
	// Retention is how long terminal requests are kept before pruning.
	Retention time.Duration
}

// Tracker owns the request state machine and its reconciliation sweep.
type Tracker struct {
	store  *Store
	movies backend.Backend
	series backend.Backend
	sink   notify.Sink
	cfg    Config
	log    *slog.Logger

	// Serializes read-modify-write sequences (create's check-then-insert
	// and the reconcile sweep) against each other. Backend calls happen
	// outside the lock; the partial unique index on active requests backs
	// the duplicate invariant across the unlocked window.
	mu sync.Mutex
}

// NewTracker creates a request tracker.
func NewTracker(store *Store, movies, series backend.Backend, sink notify.Sink, cfg Config, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	if cfg.FailAfter <= 0 {
		cfg.FailAfter = 5
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 15 * time.Minute
	}
	return &Tracker{
		store:  store,
		movies: movies,
		series: series,
		sink:   sink,
		cfg:    cfg,
		log:    log,
	}
}

// CreateParams describes a new request.
type CreateParams struct {
	Kind        Kind
	TMDBID      string
	TVDBID      string // series only, resolved by the caller
	Title       string
	Year        int
	RequestedBy string
	Seasons     SeasonSelection // series only
}

// externalID is the stored catalog identifier: the TMDB id, with the resolved
// TVDB id appended for series.
func (p CreateParams) externalID() string {
	if p.Kind == KindSeries {
		return p.TMDBID + ":" + p.TVDBID
	}
	return p.TMDBID
}

// backendID is the identifier the acquisition backend keys on.
func (p CreateParams) backendID() string {
	if p.Kind == KindSeries {
		return p.TVDBID
	}
	return p.TMDBID
}

// Create registers a request and submits it to the acquisition backend.
// Returns ErrDuplicateRequest if the same user already has an outstanding
// request for the same content and season scope, and an ErrAddFailed-wrapped
// error if the backend rejects the add (the request is persisted as failed
// with the backend's error captured for display).
func (t *Tracker) Create(ctx context.Context, p CreateParams) (*Request, error) {
	switch p.Kind {
	case KindMovie:
		if p.Seasons != "" {
			return nil, fmt.Errorf("%w: season selection on a movie request", ErrInvalidSeasons)
		}
	case KindSeries:
		if !p.Seasons.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSeasons, p.Seasons)
		}
		if p.TVDBID == "" {
			return nil, fmt.Errorf("series request requires a tvdb id")
		}
	default:
		return nil, fmt.Errorf("unknown request kind %q", p.Kind)
	}

	r, err := t.insertPending(ctx, p)
	if err != nil {
		return nil, err
	}

	// The backend add can block for the full HTTP timeout; the lock is
	// already released so the reconcile sweep keeps running. The fresh
	// pending record is ignored by the sweep until it goes stale.
	itemID, err := t.backendFor(p.Kind).AddItem(ctx, backend.AddParams{
		ExternalID: p.backendID(),
		Title:      p.Title,
		Year:       p.Year,
		Seasons:    string(p.Seasons),
	})
	if err != nil {
		r.BackendError = err.Error()
		if terr := t.store.Transition(ctx, r, StatusFailed); terr != nil {
			t.log.Error("persist add failure", "request_id", r.ID, "error", terr)
		}
		t.log.Error("backend add failed", "request_id", r.ID, "title", p.Title, "error", err)
		return r, fmt.Errorf("%w: %v", ErrAddFailed, err)
	}

	r.BackendItemID = &itemID
	if err := t.store.Transition(ctx, r, StatusSearching); err != nil {
		return nil, err
	}

	t.log.Info("request created", "request_id", r.ID, "kind", p.Kind,
		"title", p.Title, "requested_by", p.RequestedBy, "backend_item_id", itemID)
	return r, nil
}

// insertPending runs the duplicate check and the pending insert under the
// tracker lock.
func (t *Tracker) insertPending(ctx context.Context, p CreateParams) (*Request, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.store.FindActive(ctx, p.RequestedBy, p.externalID(), p.Seasons); err == nil {
		return nil, fmt.Errorf("%w: %s by %s", ErrDuplicateRequest, p.Title, p.RequestedBy)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	r := &Request{
		ID:              uuid.NewString(),
		Kind:            p.Kind,
		ExternalID:      p.externalID(),
		Title:           p.Title,
		Year:            p.Year,
		RequestedBy:     p.RequestedBy,
		RequestedAt:     time.Now().UTC(),
		SeasonSelection: p.Seasons,
		Status:          StatusPending,
	}
	if err := t.store.Add(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Query returns requests newest-first, optionally filtered to one requester.
func (t *Tracker) Query(ctx context.Context, requestedBy string) ([]*Request, error) {
	return t.store.List(ctx, Filter{RequestedBy: requestedBy})
}

// Reconcile refreshes every non-terminal request against the acquisition
// backend. Each examined record gets its last-checked timestamp bumped; a
// transition into available notifies the requester exactly once.
func (t *Tracker) Reconcile(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	active, err := t.store.List(ctx, Filter{Active: true})
	if err != nil {
		return fmt.Errorf("list active: %w", err)
	}

	t.log.Debug("reconcile started", "active_requests", len(active))

	now := time.Now().UTC()
	var lastErr error
	for _, r := range active {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := t.reconcileOne(ctx, r, now); err != nil {
			t.log.Error("reconcile error", "request_id", r.ID, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

func (t *Tracker) reconcileOne(ctx context.Context, r *Request, now time.Time) error {
	if r.Status == StatusPending {
		// A pending record older than one sweep interval is a create that
		// crashed between the store write and the backend acknowledgment.
		if now.Sub(r.RequestedAt) > t.cfg.ReconcileInterval {
			r.BackendError = "request interrupted before backend acknowledgment"
			r.LastCheckedAt = &now
			t.log.Warn("failing stale pending request", "request_id", r.ID, "title", r.Title)
			return t.store.Transition(ctx, r, StatusFailed)
		}
		return nil
	}

	if r.BackendItemID == nil {
		r.BackendError = "no backend item id"
		r.LastCheckedAt = &now
		return t.store.Transition(ctx, r, StatusFailed)
	}

	status, err := t.backendFor(r.Kind).GetStatus(ctx, *r.BackendItemID)
	r.LastCheckedAt = &now
	if err != nil || status.State == backend.StateNotFound {
		r.CheckFailures++
		if err != nil {
			r.BackendError = err.Error()
		} else {
			r.BackendError = "item no longer tracked by backend"
		}
		if r.CheckFailures >= t.cfg.FailAfter {
			t.log.Warn("request failed after repeated backend errors",
				"request_id", r.ID, "title", r.Title, "failures", r.CheckFailures)
			return t.store.Transition(ctx, r, StatusFailed)
		}
		return t.store.Update(ctx, r)
	}

	r.CheckFailures = 0
	r.BackendError = ""

	target := t.targetStatus(r, status)
	if target == r.Status {
		return t.store.Update(ctx, r)
	}

	// Step through intermediate states so every change follows the
	// machine's directed edges, then notify on arrival at available.
	for r.Status != target {
		next := nextToward(r.Status, target)
		if next == "" {
			// Backend regressed (e.g. downloading back to queued); keep
			// our state and wait for it to move forward again.
			return t.store.Update(ctx, r)
		}
		prev := r.Status
		if err := t.store.Transition(ctx, r, next); err != nil {
			return err
		}
		t.log.Info("request status changed", "request_id", r.ID, "title", r.Title,
			"status", next, "prev", prev)
	}

	if r.Status == StatusAvailable && r.NotifiedAt == nil {
		t.notifyAvailable(ctx, r)
		r.NotifiedAt = &now
		return t.store.Update(ctx, r)
	}
	return nil
}

// targetStatus maps a backend report onto the request state machine. For
// series, availability means the selected season scope is satisfied.
func (t *Tracker) targetStatus(r *Request, status *backend.ItemStatus) Status {
	if r.Kind == KindSeries {
		if scopeSatisfied(status.Seasons, r.SeasonSelection) {
			return StatusAvailable
		}
	} else if status.State == backend.StateAvailable {
		return StatusAvailable
	}

	switch status.State {
	case backend.StateDownloading:
		return StatusDownloading
	default:
		return StatusSearching
	}
}

// forwardPath is the happy-path status sequence.
var forwardPath = []Status{StatusPending, StatusSearching, StatusDownloading, StatusAvailable}

// nextToward returns the next forward step from cur to target, or "" if
// target is not ahead of cur.
func nextToward(cur, target Status) Status {
	ci, ti := -1, -1
	for i, s := range forwardPath {
		if s == cur {
			ci = i
		}
		if s == target {
			ti = i
		}
	}
	if ci < 0 || ti <= ci {
		return ""
	}
	return forwardPath[ci+1]
}

// scopeSatisfied reports whether the season scope is complete.
func scopeSatisfied(seasons []backend.SeasonStatus, sel SeasonSelection) bool {
	if len(seasons) == 0 {
		return false
	}
	switch sel {
	case SeasonsAll:
		for _, s := range seasons {
			if !s.Complete {
				return false
			}
		}
		return true
	case SeasonsLatest:
		latest := seasons[0]
		for _, s := range seasons {
			if s.Number > latest.Number {
				latest = s
			}
		}
		return latest.Complete
	case SeasonsFirst:
		first := seasons[0]
		for _, s := range seasons {
			if s.Number < first.Number {
				first = s
			}
		}
		return first.Complete
	}
	return false
}

func (t *Tracker) notifyAvailable(ctx context.Context, r *Request) {
	kind := "movie"
	icon := "🎬"
	if r.Kind == KindSeries {
		kind = "series"
		icon = "📺"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✅ @%s your requested %s %s", r.RequestedBy, kind, r.Title)
	if r.Year > 0 {
		fmt.Fprintf(&b, " (%d)", r.Year)
	}
	fmt.Fprintf(&b, " is now available %s", icon)

	t.sink.Notify(ctx, notify.ScopeGeneral, b.String(), false)
	t.log.Info("availability notification sent", "request_id", r.ID, "title", r.Title,
		"requested_by", r.RequestedBy)
}

// Prune removes terminal requests older than the retention window.
func (t *Tracker) Prune(ctx context.Context, now time.Time) error {
	if t.cfg.Retention <= 0 {
		return nil
	}
	n, err := t.store.DeleteTerminalBefore(ctx, now.Add(-t.cfg.Retention))
	if err != nil {
		return err
	}
	if n > 0 {
		t.log.Info("pruned old requests", "count", n)
	}
	return nil
}

func (t *Tracker) backendFor(k Kind) backend.Backend {
	if k == KindSeries {
		return t.series
	}
	return t.movies
}
