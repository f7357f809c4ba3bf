// Package backend adapts acquisition backends (Radarr, Sonarr) behind a common contract.
package backend

import (
	"context"
	"errors"
)

// State is the acquisition state a backend reports for an item.
type State string

const (
	StateQueued      State = "queued"
	StateDownloading State = "downloading"
	StateAvailable   State = "available"
	StateNotFound    State = "notfound"
)

// SeasonStatus is per-season completeness for a series item.
type SeasonStatus struct {
	Number   int
	Complete bool
}

// ItemStatus is a backend's view of a tracked item.
type ItemStatus struct {
	State   State
	Seasons []SeasonStatus // series only, ascending season number
}

// AddParams describes an item to add to a backend.
type AddParams struct {
	ExternalID     string // TMDB id for movies, TVDB id for series
	Title          string
	Year           int
	RootFolder     string
	QualityProfile int
	Seasons        string // "all", "latest", "first"; empty for movies
}

// Backend is an acquisition backend. Radarr and Sonarr expose the same contract;
// API version differences are the adapter's concern.
type Backend interface {
	// AddItem adds the item and triggers a search, returning the backend's item id.
	AddItem(ctx context.Context, p AddParams) (int64, error)
	// GetStatus reports the acquisition state of a previously added item.
	GetStatus(ctx context.Context, itemID int64) (*ItemStatus, error)
	// ItemExists reports whether the backend already tracks the item.
	ItemExists(ctx context.Context, externalID string) (bool, error)
}

// Sentinel errors for the backend package.
var (
	// ErrUnavailable is returned when the backend cannot be reached.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrNotFound is returned when an item is not known to the backend.
	ErrNotFound = errors.New("item not found in backend")

	// ErrInvalidAPIKey is returned when the API key is rejected by the backend.
	ErrInvalidAPIKey = errors.New("invalid api key")
)
