package bus

import (
	"context"

	"github.com/ricesearch/rice-eval/internal/pkg/logger"
)

// LoggedBus wraps another Bus and writes a debug record for every event
// published through it.
type LoggedBus struct {
	inner Bus
	log   *logger.Logger
}

// NewLoggedBus creates a new logged bus that wraps an inner bus.
func NewLoggedBus(inner Bus, log *logger.Logger) *LoggedBus {
	if log == nil {
		log = logger.Default()
	}
	return &LoggedBus{
		inner: inner,
		log:   log,
	}
}

// Publish logs the event and then delegates to the inner bus.
func (b *LoggedBus) Publish(ctx context.Context, topic string, event Event) error {
	err := b.inner.Publish(ctx, topic, event)

	log := b.log.WithContext(ctx)
	if event.CorrelationID != "" {
		log = log.WithRun(event.CorrelationID)
	}
	if err != nil {
		log.WithError(err).Warn("Event publish failed", "topic", topic, "event_id", event.ID)
		return err
	}
	log.Debug("Event published",
		"topic", topic,
		"event_id", event.ID,
		"type", event.Type,
		"bytes", len(event.Payload),
	)
	return nil
}

// Subscribe delegates to the inner bus.
func (b *LoggedBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	b.log.Debug("Subscribing", "topic", topic)
	return b.inner.Subscribe(ctx, topic, handler)
}

// Close closes the inner bus.
func (b *LoggedBus) Close() error {
	return b.inner.Close()
}
