package service

import (
	"context"
	"log/slog"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/events"
)

// emitter publishes events correlated to an order on behalf of a service.
type emitter struct {
	publisher Publisher
	source    string
}

func (e emitter) publish(ctx context.Context, orderID int64, payload events.Payload) error {
	evt := events.New(payload, e.source, events.OrderCorrelation(orderID))
	if err := e.publisher.Publish(ctx, evt); err != nil {
		slog.Error("❌ Failed to publish event", "event_type", evt.Type, "order_id", orderID, "err", err)
		return &PublishError{Err: err}
	}
	return nil
}
