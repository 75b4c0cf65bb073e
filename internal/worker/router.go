package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/consumer"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/events"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/metrics"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
)

// HandlerFunc handles one event type.
type HandlerFunc func(ctx context.Context, evt events.Event) error

// Router dispatches events to their handler and retries failures according
// to the policy for the event's type. It implements consumer.Handler.
type Router struct {
	handlers  map[events.Type]HandlerFunc
	policy    RetryPolicy
	overrides map[events.Type]RetryPolicy
	metrics   *metrics.WorkerMetrics

	// onRetry is called before each wait between attempts.
	onRetry func(evt events.Event, err error, next time.Duration)
}

type RouterOption func(*Router)

// WithRetryPolicy replaces the default policy for every event type.
func WithRetryPolicy(p RetryPolicy) RouterOption {
	return func(r *Router) { r.policy = p.withDefaults() }
}

// WithTypePolicy overrides the retry policy for a single event type.
func WithTypePolicy(typ events.Type, p RetryPolicy) RouterOption {
	return func(r *Router) { r.overrides[typ] = p.withDefaults() }
}

func WithMetrics(m *metrics.WorkerMetrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

func NewRouter(handlers map[events.Type]HandlerFunc, opts ...RouterOption) *Router {
	r := &Router{
		handlers:  handlers,
		policy:    DefaultRetryPolicy(),
		overrides: make(map[events.Type]RetryPolicy),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Handles(typ events.Type) bool {
	_, ok := r.handlers[typ]
	return ok
}

func (r *Router) PolicyFor(typ events.Type) RetryPolicy {
	if p, ok := r.overrides[typ]; ok {
		return p
	}
	return r.policy
}

// Process runs the handler for evt. Unknown types are logged and dropped.
// Validation failures are not retried and come back marked permanent.
func (r *Router) Process(ctx context.Context, evt events.Event) error {
	handler, ok := r.handlers[evt.Type]
	if !ok {
		slog.Warn("🤷 Unknown event type dropped", "event_type", evt.Type, "event_id", evt.ID())
		return nil
	}

	policy := r.PolicyFor(evt.Type)
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := handler(ctx, evt)
		if err != nil && isPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(uint(policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("⏳ Handler failed, retrying", "event_type", evt.Type, "event_id", evt.ID(), "attempt", attempts, "retry_in", next, "err", err)
			if r.onRetry != nil {
				r.onRetry(evt, err, next)
			}
		}),
	)
	if err == nil {
		return nil
	}

	if isPermanent(err) {
		return consumer.Permanent(err)
	}
	if ctx.Err() != nil {
		return err
	}

	slog.Error("💥 Retries exhausted", "event_type", evt.Type, "event_id", evt.ID(), "attempts", attempts, "err", err)
	r.metrics.Exhausted(string(evt.Type))
	return err
}

// isPermanent reports whether retrying err cannot succeed.
func isPermanent(err error) bool {
	return consumer.IsPermanent(err) ||
		errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrInvalidTransition) ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, events.ErrMalformed)
}
