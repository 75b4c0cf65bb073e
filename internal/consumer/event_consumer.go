package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/dedup"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/events"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/metrics"
)

// Handler processes one decoded event. A nil error means the event's
// effects are durable and the entry may be acknowledged.
type Handler interface {
	Process(ctx context.Context, evt events.Event) error
}

type HandlerFunc func(ctx context.Context, evt events.Event) error

func (f HandlerFunc) Process(ctx context.Context, evt events.Event) error {
	return f(ctx, evt)
}

type Config struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int
	Block     time.Duration

	// Transport backoff between failed reads.
	RetryInitial time.Duration
	RetryMax     time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 500 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 30 * time.Second
	}
	return c
}

// EventConsumer reads a stream as one member of a consumer group and hands
// each new event to a Handler, acknowledging only after success.
type EventConsumer struct {
	transport messaging.Transport
	store     dedup.Store
	metrics   *metrics.WorkerMetrics
	cfg       Config
}

func NewEventConsumer(transport messaging.Transport, store dedup.Store, cfg Config, m *metrics.WorkerMetrics) (*EventConsumer, error) {
	if cfg.Stream == "" || cfg.Group == "" || cfg.Consumer == "" {
		return nil, errors.New("consumer needs a stream, group and consumer name")
	}
	return &EventConsumer{
		transport: transport,
		store:     store,
		metrics:   m,
		cfg:       cfg.withDefaults(),
	}, nil
}

// Consume runs until ctx is cancelled. Transport failures are retried with
// backoff and never end the loop.
func (c *EventConsumer) Consume(ctx context.Context, handler Handler) error {
	if err := c.ensureGroups(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	slog.Info("👂 Consuming events", "stream", c.cfg.Stream, "group", c.cfg.Group, "consumer", c.cfg.Consumer)

	wait := c.newBackOff()
	for {
		if ctx.Err() != nil {
			slog.Info("Consumer shutting down", "stream", c.cfg.Stream)
			return nil
		}

		entries, err := c.transport.ReadGroup(ctx, c.cfg.Stream, c.cfg.Group, c.cfg.Consumer, c.cfg.BatchSize, c.cfg.Block)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			delay := wait.NextBackOff()
			slog.Error("❌ Failed to read stream", "stream", c.cfg.Stream, "retry_in", delay, "err", err)
			sleep(ctx, delay)
			continue
		}
		wait.Reset()

		for _, entry := range entries {
			if err := c.handleEntry(ctx, handler, entry); err != nil {
				delay := wait.NextBackOff()
				slog.Error("❌ Entry left pending", "stream", c.cfg.Stream, "entry", entry.ID, "retry_in", delay, "err", err)
				sleep(ctx, delay)
			}
		}
	}
}

// ensureGroups binds the group to the stream. The dead-letter stream gets
// the group too only where the transport would otherwise drop dead letters;
// elsewhere a group there would just be an idle reader.
func (c *EventConsumer) ensureGroups(ctx context.Context) error {
	streams := []string{c.cfg.Stream}
	if r, ok := c.transport.(messaging.GroupRetained); ok && r.RetainsForBoundGroupsOnly() {
		streams = append(streams, messaging.DeadLetterStream(c.cfg.Stream))
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		for _, s := range streams {
			if err := c.transport.EnsureGroup(ctx, s, c.cfg.Group); err != nil {
				slog.Warn("⚠️ Consumer group not ready", "stream", s, "group", c.cfg.Group, "err", err)
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(c.newBackOff()), backoff.WithMaxElapsedTime(0))
	if err != nil {
		return fmt.Errorf("failed to ensure consumer group: %w", err)
	}
	return nil
}

// handleEntry returns an error only when the entry is left unacknowledged
// because of an infrastructure failure in the consumer itself.
func (c *EventConsumer) handleEntry(ctx context.Context, handler Handler, entry messaging.Entry) error {
	evt, err := events.Unmarshal(entry.Data)
	if err != nil {
		slog.Error("☠️ Poison entry", "stream", c.cfg.Stream, "entry", entry.ID, "err", err)
		return c.deadLetter(ctx, "malformed", entry)
	}

	typ := string(evt.Type)
	seen, err := c.store.Seen(ctx, c.cfg.Group, evt.ID())
	if err != nil {
		c.nack(ctx, entry)
		return fmt.Errorf("failed to check dedup store: %w", err)
	}
	if seen {
		slog.Info("🔁 Duplicate event skipped", "event_type", typ, "event_id", evt.ID())
		c.metrics.Event(typ, metrics.ResultDuplicate)
		return c.ack(ctx, entry)
	}

	start := time.Now()
	err = handler.Process(ctx, evt)
	c.metrics.ObserveHandler(typ, time.Since(start))

	if err != nil {
		if IsPermanent(err) {
			slog.Error("☠️ Event rejected", "event_type", typ, "event_id", evt.ID(), "err", err)
			c.markProcessed(ctx, evt)
			return c.deadLetter(ctx, typ, entry)
		}
		slog.Error("❌ Event failed, will be redelivered", "event_type", typ, "event_id", evt.ID(), "err", err)
		c.metrics.Event(typ, metrics.ResultFailed)
		c.nack(ctx, entry)
		return nil
	}

	c.markProcessed(ctx, evt)
	if events.IsKnown(evt.Type) {
		c.metrics.Event(typ, metrics.ResultProcessed)
	} else {
		c.metrics.Event(typ, metrics.ResultUnknown)
	}
	return c.ack(ctx, entry)
}

func (c *EventConsumer) markProcessed(ctx context.Context, evt events.Event) {
	// A failed mark only risks one extra, idempotent redelivery.
	if err := c.store.Mark(ctx, c.cfg.Group, evt.ID()); err != nil {
		slog.Warn("⚠️ Failed to mark event processed", "event_id", evt.ID(), "err", err)
	}
}

func (c *EventConsumer) deadLetter(ctx context.Context, typ string, entry messaging.Entry) error {
	dlq := messaging.DeadLetterStream(c.cfg.Stream)
	if _, err := c.transport.Append(ctx, dlq, entry.Data); err != nil {
		c.nack(ctx, entry)
		return fmt.Errorf("failed to dead-letter entry %s: %w", entry.ID, err)
	}
	c.metrics.Event(typ, metrics.ResultDeadLettered)
	slog.Warn("📮 Entry moved to dead-letter stream", "stream", dlq, "entry", entry.ID)
	return c.ack(ctx, entry)
}

func (c *EventConsumer) ack(ctx context.Context, entry messaging.Entry) error {
	if err := c.transport.Ack(ctx, c.cfg.Stream, c.cfg.Group, entry.ID); err != nil {
		return fmt.Errorf("failed to ack entry %s: %w", entry.ID, err)
	}
	return nil
}

func (c *EventConsumer) nack(ctx context.Context, entry messaging.Entry) {
	n, ok := c.transport.(messaging.Nacker)
	if !ok {
		return
	}
	if err := n.Nack(ctx, c.cfg.Stream, c.cfg.Group, entry.ID); err != nil {
		slog.Warn("⚠️ Failed to nack entry", "entry", entry.ID, "err", err)
	}
}

func (c *EventConsumer) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitial
	b.MaxInterval = c.cfg.RetryMax
	b.Multiplier = 2
	b.Reset()
	return b
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
