// Package monitor adapts the playback/library monitor (Tautulli).
package monitor

import (
	"context"
	"errors"
	"time"
)

// RecentItem is a library item the monitor reports as newly added.
type RecentItem struct {
	Title     string
	Year      int
	MediaType string // "movie" or "show"
	AddedAt   time.Time
}

// Monitor observes the media server's library and playback activity.
type Monitor interface {
	// RecentlyAdded lists items added to the library since the given time.
	RecentlyAdded(ctx context.Context, since time.Time) ([]RecentItem, error)
	// ActiveStreams reports whether anyone is currently streaming.
	ActiveStreams(ctx context.Context) (bool, error)
	// LibraryContains reports whether the library already has the titled item.
	LibraryContains(ctx context.Context, title string, year int) (bool, error)
	// Reachable reports whether the media server responds at all.
	Reachable(ctx context.Context) bool
}

// ErrUnavailable is returned when the monitor cannot be reached.
var ErrUnavailable = errors.New("monitor unavailable")
