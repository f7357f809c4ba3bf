package request

import "errors"

// Sentinel errors for the request package.
var (
	// ErrDuplicateRequest is returned when the same user already has an
	// outstanding request for the same content and season scope.
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrAddFailed is returned when the acquisition backend rejects an add.
	// The request is persisted as failed with the backend's error captured.
	ErrAddFailed = errors.New("backend add failed")

	// ErrInvalidSeasons is returned for a malformed season selection.
	ErrInvalidSeasons = errors.New("invalid season selection")

	// ErrInvalidTransition is returned on a disallowed status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound is returned when a request record is not found in the database.
	ErrNotFound = errors.New("request not found")
)
