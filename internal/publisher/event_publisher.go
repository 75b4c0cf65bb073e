package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/events"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/messaging"
)

const DefaultStream = "domain-events"

// EventPublisher appends encoded domain events to a single stream.
type EventPublisher struct {
	transport messaging.Transport
	stream    string
}

func NewEventPublisher(transport messaging.Transport, stream string) *EventPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &EventPublisher{transport: transport, stream: stream}
}

// Publish returns once the transport has durably accepted the event.
// Publishing the same event twice produces two entries with one eventId;
// consumers deduplicate.
func (p *EventPublisher) Publish(ctx context.Context, evt events.Event) error {
	data, err := events.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	id, err := p.transport.Append(ctx, p.stream, data)
	if err != nil {
		return fmt.Errorf("failed to publish %s %s: %w", evt.Type, evt.ID(), err)
	}

	slog.Debug("📤 Event published", "stream", p.stream, "event_type", evt.Type, "event_id", evt.ID(), "entry_id", id)
	return nil
}

func (p *EventPublisher) Stream() string {
	return p.stream
}

// Noop discards events. Used by processes started without a transport.
type Noop struct{}

func (Noop) Publish(_ context.Context, _ events.Event) error { return nil }
