package consumer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/dedup"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/events"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/metrics"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/publisher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testStream = "domain-events"
	testGroup  = "fulfillment-workers"
)

// plainTransport hides the Nacker implementation of the wrapped transport.
type plainTransport struct {
	messaging.Transport
}

// flakyTransport fails the first n reads.
type flakyTransport struct {
	messaging.Transport
	failures atomic.Int32
}

func (f *flakyTransport) ReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]messaging.Entry, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset")
	}
	return f.Transport.ReadGroup(ctx, stream, group, consumer, count, block)
}

// groupLog records the streams the consumer binds its group to.
type groupLog struct {
	messaging.Transport
	mu      sync.Mutex
	streams []string
}

func (g *groupLog) EnsureGroup(ctx context.Context, stream, group string) error {
	g.mu.Lock()
	g.streams = append(g.streams, stream)
	g.mu.Unlock()
	return g.Transport.EnsureGroup(ctx, stream, group)
}

func (g *groupLog) bound() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.streams...)
}

// retainingLog reports that entries are only kept for bound groups.
type retainingLog struct {
	*groupLog
}

func (retainingLog) RetainsForBoundGroupsOnly() bool { return true }

type recorder struct {
	mu   sync.Mutex
	seen []events.Event
	fn   func(call int) error
}

func (r *recorder) Process(_ context.Context, evt events.Event) error {
	r.mu.Lock()
	r.seen = append(r.seen, evt)
	call := len(r.seen)
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(call)
	}
	return nil
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func testConfig() Config {
	return Config{
		Stream:       testStream,
		Group:        testGroup,
		Consumer:     "test-1",
		BatchSize:    10,
		Block:        20 * time.Millisecond,
		RetryInitial: time.Millisecond,
		RetryMax:     5 * time.Millisecond,
	}
}

func run(t *testing.T, c *EventConsumer, h Handler) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx, h) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
}

func publish(t *testing.T, tr messaging.Transport, evt events.Event) {
	t.Helper()
	require.NoError(t, publisher.NewEventPublisher(tr, testStream).Publish(context.Background(), evt))
}

func TestNewEventConsumerRequiresNames(t *testing.T) {
	_, err := NewEventConsumer(messaging.NewMemory(), dedup.NewMemoryStore(0), Config{Stream: testStream}, nil)
	assert.Error(t, err)
}

func TestDuplicateDeliveryInvokesHandlerOnce(t *testing.T) {
	tr := messaging.NewMemory()
	m := metrics.NewWorkerMetrics(prometheus.NewRegistry())
	c, err := NewEventConsumer(tr, dedup.NewMemoryStore(time.Hour), testConfig(), m)
	require.NoError(t, err)

	evt := events.New(events.OrderCreated{OrderID: 1}, "order-service", "1")
	publish(t, tr, evt)
	publish(t, tr, evt)

	h := &recorder{}
	stop := run(t, c, h)
	assert.Eventually(t, func() bool { return tr.Pending(testStream, testGroup) == 0 && len(tr.Entries(testStream)) == 2 && h.calls() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	stop()

	assert.Equal(t, 1, h.calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("order.created", metrics.ResultProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("order.created", metrics.ResultDuplicate)))
}

func TestFailedEventIsNotAcked(t *testing.T) {
	mem := messaging.NewMemory()
	store := dedup.NewMemoryStore(time.Hour)
	c, err := NewEventConsumer(plainTransport{mem}, store, testConfig(), nil)
	require.NoError(t, err)

	evt := events.New(events.OrderCancelled{OrderID: 1}, "order-service", "1")
	publish(t, mem, evt)

	h := &recorder{fn: func(int) error { return errors.New("db down") }}
	stop := run(t, c, h)
	assert.Eventually(t, func() bool { return h.calls() == 1 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, 1, mem.Pending(testStream, testGroup))
	seen, err := store.Seen(context.Background(), testGroup, evt.ID())
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestFailedEventIsRedeliveredOnNack(t *testing.T) {
	tr := messaging.NewMemory()
	c, err := NewEventConsumer(tr, dedup.NewMemoryStore(time.Hour), testConfig(), nil)
	require.NoError(t, err)

	publish(t, tr, events.New(events.OrderCancelled{OrderID: 1}, "order-service", "1"))

	h := &recorder{fn: func(call int) error {
		if call == 1 {
			return errors.New("timeout")
		}
		return nil
	}}
	stop := run(t, c, h)
	assert.Eventually(t, func() bool { return h.calls() == 2 && tr.Pending(testStream, testGroup) == 0 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, h.seen[0].ID(), h.seen[1].ID())
}

func TestPoisonEntryIsDeadLettered(t *testing.T) {
	tr := messaging.NewMemory()
	m := metrics.NewWorkerMetrics(prometheus.NewRegistry())
	c, err := NewEventConsumer(tr, dedup.NewMemoryStore(time.Hour), testConfig(), m)
	require.NoError(t, err)

	_, err = tr.Append(context.Background(), testStream, []byte("not an event"))
	require.NoError(t, err)

	h := &recorder{}
	stop := run(t, c, h)
	assert.Eventually(t, func() bool { return len(tr.Entries(messaging.DeadLetterStream(testStream))) == 1 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Zero(t, h.calls())
	assert.Zero(t, tr.Pending(testStream, testGroup))
	assert.Equal(t, "not an event", string(tr.Entries(messaging.DeadLetterStream(testStream))[0].Data))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("malformed", metrics.ResultDeadLettered)))
}

func TestPermanentFailureIsDeadLettered(t *testing.T) {
	tr := messaging.NewMemory()
	c, err := NewEventConsumer(tr, dedup.NewMemoryStore(time.Hour), testConfig(), nil)
	require.NoError(t, err)

	publish(t, tr, events.New(events.OrderCreated{OrderID: 9}, "order-service", "9"))

	h := &recorder{fn: func(int) error { return Permanent(errors.New("invalid order")) }}
	stop := run(t, c, h)
	assert.Eventually(t, func() bool { return len(tr.Entries(messaging.DeadLetterStream(testStream))) == 1 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, 1, h.calls())
	assert.Zero(t, tr.Pending(testStream, testGroup))
}

func TestReadFailuresAreRetried(t *testing.T) {
	mem := messaging.NewMemory()
	tr := &flakyTransport{Transport: mem}
	tr.failures.Store(3)
	c, err := NewEventConsumer(tr, dedup.NewMemoryStore(time.Hour), testConfig(), nil)
	require.NoError(t, err)

	publish(t, mem, events.New(events.OrderCreated{OrderID: 1}, "order-service", "1"))

	h := &recorder{}
	stop := run(t, c, h)
	assert.Eventually(t, func() bool { return h.calls() == 1 }, time.Second, 5*time.Millisecond)
	stop()
}

func TestGroupBoundToDeadLetterOnlyWhenNeeded(t *testing.T) {
	tests := []struct {
		name string
		wrap func(*groupLog) messaging.Transport
		want []string
	}{
		{"retains without groups", func(g *groupLog) messaging.Transport { return g }, []string{testStream}},
		{"drops without groups", func(g *groupLog) messaging.Transport { return retainingLog{g} }, []string{testStream, messaging.DeadLetterStream(testStream)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &groupLog{Transport: messaging.NewMemory()}
			c, err := NewEventConsumer(tt.wrap(log), dedup.NewMemoryStore(time.Hour), testConfig(), nil)
			require.NoError(t, err)

			require.NoError(t, c.ensureGroups(context.Background()))
			assert.Equal(t, tt.want, log.bound())
		})
	}
}

func TestPermanentHelpers(t *testing.T) {
	base := errors.New("bad input")
	err := Permanent(base)

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}
