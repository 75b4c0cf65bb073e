package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/events"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/memstore"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Type
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

var errBrokerDown = errors.New("broker down")

func newOrderService(t *testing.T) (*OrderService, *memstore.OrderRepository, *recordingPublisher) {
	t.Helper()
	repo := memstore.NewOrderRepository()
	pub := &recordingPublisher{}
	return NewOrderService(repo, pub, "order-service"), repo, pub
}

func payloadOf[T events.Payload](t *testing.T, evt events.Event) T {
	t.Helper()
	p, ok := evt.Payload.(T)
	require.True(t, ok, "payload is %T", evt.Payload)
	return p
}
