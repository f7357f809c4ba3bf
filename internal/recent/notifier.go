// Package recent announces newly added library content to the group,
// suppressing items that originated from tracked requests.
package recent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hbollon/go-edlib"

	"github.com/stewarr/stewarr/internal/monitor"
	"github.com/stewarr/stewarr/internal/notify"
	"github.com/stewarr/stewarr/internal/request"
)

// titleMatchThreshold is the Jaro-Winkler similarity above which a library
// item is considered the same title as a tracked request.
const titleMatchThreshold = 0.9

// RequestSource exposes tracked requests for suppression matching.
type RequestSource interface {
	List(ctx context.Context, f request.Filter) ([]*request.Request, error)
}

// Config tunes the notifier.
type Config struct {
	// Overlap widens each sweep window backwards to avoid missing items on
	// the boundary; the dedup set absorbs the resulting duplicates.
	Overlap time.Duration
	// Retention is how long dedup records are kept.
	Retention time.Duration
}

// Notifier sweeps the monitor for newly added items and broadcasts them.
type Notifier struct {
	monitor  monitor.Monitor
	store    *Store
	requests RequestSource
	sink     notify.Sink
	cfg      Config
	log      *slog.Logger

	mu        sync.Mutex
	watermark time.Time
}

// NewNotifier creates a recently-added notifier. The first sweep covers from
// construction time backwards by the overlap tolerance.
func NewNotifier(m monitor.Monitor, store *Store, requests RequestSource, sink notify.Sink, cfg Config, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		monitor:   m,
		store:     store,
		requests:  requests,
		sink:      sink,
		cfg:       cfg,
		log:       log,
		watermark: time.Now().UTC(),
	}
}

// Sweep checks for content added since the last successful sweep and
// broadcasts anything not already announced. The watermark only advances on
// success, and always advances on success even when nothing was found.
func (n *Notifier) Sweep(ctx context.Context) error {
	return n.sweepAt(ctx, time.Now().UTC())
}

func (n *Notifier) sweepAt(ctx context.Context, now time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	since := n.watermark.Add(-n.cfg.Overlap)
	items, err := n.monitor.RecentlyAdded(ctx, since)
	if err != nil {
		return fmt.Errorf("recently added: %w", err)
	}

	announced := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		key := ItemKey(item.Title, item.Year)
		seen, err := n.store.HasNotified(ctx, key)
		if err != nil {
			return err
		}
		if seen {
			continue
		}

		if n.requestOriginated(ctx, item) {
			// The tracker already notified the requester directly.
			n.log.Debug("suppressing request-originated item", "title", item.Title)
			if err := n.store.MarkNotified(ctx, key, item.Title, now); err != nil {
				return err
			}
			continue
		}

		n.broadcast(ctx, item)
		if err := n.store.MarkNotified(ctx, key, item.Title, now); err != nil {
			return err
		}
		announced++
	}

	// Sweep succeeded: the next window starts at this sweep's end.
	n.watermark = now

	if announced > 0 {
		n.log.Info("announced new content", "count", announced)
	}

	if n.cfg.Retention > 0 {
		if pruned, err := n.store.DeleteBefore(ctx, now.Add(-n.cfg.Retention)); err != nil {
			n.log.Error("prune notified items", "error", err)
		} else if pruned > 0 {
			n.log.Debug("pruned notified items", "count", pruned)
		}
	}
	return nil
}

// requestOriginated reports whether the item matches a tracked request that
// already went through availability notification.
func (n *Notifier) requestOriginated(ctx context.Context, item monitor.RecentItem) bool {
	wantKind := request.KindMovie
	if item.MediaType == "show" {
		wantKind = request.KindSeries
	}

	reqs, err := n.requests.List(ctx, request.Filter{
		Statuses: []request.Status{request.StatusAvailable},
	})
	if err != nil {
		n.log.Error("list available requests", "error", err)
		return false
	}

	itemTitle := normalizeTitle(item.Title)
	for _, r := range reqs {
		if r.Kind != wantKind {
			continue
		}
		if item.Year > 0 && r.Year > 0 && abs(item.Year-r.Year) > 1 {
			continue
		}
		reqTitle := normalizeTitle(r.Title)
		if reqTitle == itemTitle {
			return true
		}
		if edlib.JaroWinklerSimilarity(reqTitle, itemTitle) >= titleMatchThreshold {
			return true
		}
	}
	return false
}

func (n *Notifier) broadcast(ctx context.Context, item monitor.RecentItem) {
	kind := "movie"
	icon := "🎬"
	if item.MediaType == "show" {
		kind = "series"
		icon = "📺"
	}
	msg := fmt.Sprintf("%s New %s added: %s", icon, kind, item.Title)
	if item.Year > 0 {
		msg = fmt.Sprintf("%s (%d)", msg, item.Year)
	}
	n.sink.Notify(ctx, notify.ScopeGeneral, msg, true)
	n.log.Info("broadcast new content", "title", item.Title, "type", item.MediaType)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
