// Package metrics defines the completion outcome events strategies may
// report to their backends.
package metrics

import (
	"context"
	"time"

	"ghosttab/text"
)

// EventType classifies what happened to a suggestion.
type EventType string

const (
	EventShown    EventType = "shown"    // suggestion was rendered
	EventAccepted EventType = "accepted" // user accepted it
	EventRejected EventType = "rejected" // user typed over it or pressed escape
	EventIgnored  EventType = "ignored"  // dismissed without action
)

// SuggestionInfo carries the metadata a backend needs to attribute an event.
type SuggestionInfo struct {
	CompletionID string     // id from the strategy's result metadata
	Strategy     string     // CompletionResult.StrategyUsed
	Stats        text.Stats // line additions/deletions of the suggestion
	ShownAt      time.Time  // for lifespan tracking
}

// Event is one outcome report.
type Event struct {
	Type EventType
	Info SuggestionInfo
}

// Sender is implemented by strategies whose backend accepts feedback.
// Implementations must ignore event types their backend has no notion of,
// and must never block the editor loop on delivery.
type Sender interface {
	SendMetric(ctx context.Context, event Event)
}
