// Package bus publishes evaluation lifecycle events to in-process
// subscribers or to Kafka.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "evaluation.completed").
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID carries the request ID of the call that caused the event.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Key groups events for partitioning, usually the RFQ ID.
	Key string `json:"key,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// Topics for evaluation events.
const (
	TopicEvaluationCompleted = "tbe.evaluation.completed"
	TopicEvaluationFailed    = "tbe.evaluation.failed"
	TopicEvaluationDeleted   = "tbe.evaluation.deleted"
)

// Topics lists every topic the engine publishes to.
func Topics() []string {
	return []string{TopicEvaluationCompleted, TopicEvaluationFailed, TopicEvaluationDeleted}
}

// NewEvent stamps a new event with a random ID and the current time.
func NewEvent(eventType, source string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}
