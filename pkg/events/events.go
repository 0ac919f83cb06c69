// Package events defines the notification envelope emitted after core state changes commit.
package events

import (
	"context"
	"time"
)

// Event is a best-effort notification for an external dispatcher.
type Event struct {
	Type       string            `json:"type"`
	UserID     string            `json:"user_id"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Publisher hands events to a dispatcher. Implementations must not block on delivery
// and must not report delivery failures back to the caller.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event)

// Publish calls the function.
func (fn PublisherFunc) Publish(ctx context.Context, event Event) {
	fn(ctx, event)
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) {})
