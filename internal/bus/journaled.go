package bus

import (
	"context"

	"github.com/tablefill/table-fill/internal/pkg/logger"
)

// JournaledBus wraps another Bus and records every published event to a
// Journal before delegating. Journal failures are logged, never fatal.
type JournaledBus struct {
	inner   Bus
	journal *Journal
	log     *logger.Logger
}

// NewJournaledBus creates a journaled bus around an inner bus.
func NewJournaledBus(inner Bus, journal *Journal, log *logger.Logger) *JournaledBus {
	if log == nil {
		log = logger.Default()
	}
	return &JournaledBus{
		inner:   inner,
		journal: journal,
		log:     log,
	}
}

// Publish records the event and then delegates to the inner bus.
func (b *JournaledBus) Publish(ctx context.Context, topic string, event Event) error {
	if err := b.journal.Record(topic, event); err != nil {
		b.log.Warn("Failed to journal event",
			"topic", topic,
			"event_type", event.Type,
			"error", err.Error(),
		)
	}

	return b.inner.Publish(ctx, topic, event)
}

// Subscribe delegates to the inner bus.
func (b *JournaledBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.inner.Subscribe(ctx, topic, handler)
}

// Close closes the journal and the inner bus.
func (b *JournaledBus) Close() error {
	if err := b.journal.Close(); err != nil {
		b.log.Warn("Failed to close journal", "error", err.Error())
	}

	return b.inner.Close()
}
