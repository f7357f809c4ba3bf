// Package request tracks media requests from submission through acquisition to availability.
package request

import (
	"time"
)

// Kind distinguishes movie requests from series requests.
type Kind string

const (
	KindMovie  Kind = "movie"
	KindSeries Kind = "series"
)

// SeasonSelection is the season scope requested for a series.
type SeasonSelection string

const (
	SeasonsAll    SeasonSelection = "all"
	SeasonsLatest SeasonSelection = "latest"
	SeasonsFirst  SeasonSelection = "first"
)

// Valid reports whether s is a known season selection.
func (s SeasonSelection) Valid() bool {
	switch s {
	case SeasonsAll, SeasonsLatest, SeasonsFirst:
		return true
	}
	return false
}

// Request is a tracked acquisition request.
type Request struct {
	ID              string
	Kind            Kind
	ExternalID      string // TMDB id; for series "tmdb:tvdb" with the resolved TVDB id
	Title           string
	Year            int
	RequestedBy     string
	RequestedAt     time.Time
	SeasonSelection SeasonSelection // empty for movies
	BackendItemID   *int64
	Status          Status
	BackendError    string // last backend error text, for display
	CheckFailures   int    // consecutive reconcile failures
	LastCheckedAt   *time.Time
	NotifiedAt      *time.Time // availability notification guard
}

// Filter specifies criteria for listing requests.
type Filter struct {
	RequestedBy string
	Statuses    []Status
	Active      bool // only non-terminal requests
}
