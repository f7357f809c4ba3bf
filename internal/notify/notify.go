// Package notify dispatches best-effort notifications to the group chat.
package notify

import "context"

// Scope is the destination for a notification.
type Scope string

const (
	// ScopeGeneral is the shared topic for content announcements.
	ScopeGeneral Scope = "general"
	// ScopeServer is the topic for power-state events.
	ScopeServer Scope = "server"
)

// Sink delivers notifications. Delivery is fire-and-forget: implementations
// log failures, callers never observe them.
type Sink interface {
	Notify(ctx context.Context, scope Scope, message string, silent bool)
}

// Discard is a Sink that drops all notifications.
type Discard struct{}

func (Discard) Notify(context.Context, Scope, string, bool) {}
