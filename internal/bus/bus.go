// Package bus carries partial evaluation statistics between shard workers
// and aggregators.
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
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

	// Type is the event type (e.g., "ranking.partial").
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links the events of one evaluation run.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the JSON-encoded event data.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with a fresh ID and a JSON-encoded payload.
func NewEvent(eventType, source, correlationID string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, errors.Wrap(errors.CodeInternal, "failed to marshal event payload", err)
	}
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UnixMilli(),
		CorrelationID: correlationID,
		Payload:       data,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return errors.New(errors.CodeInvalidRequest, "event has no payload")
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return errors.Wrap(errors.CodeInvalidRequest, "failed to decode event payload", err)
	}
	return nil
}

// Topics for evaluation events.
const (
	// TopicRankingPartial carries the statistics of one scored ranking shard.
	TopicRankingPartial = "eval.ranking.partial"

	// TopicSetsPartial carries the statistics of one scored set shard.
	TopicSetsPartial = "eval.sets.partial"
)
