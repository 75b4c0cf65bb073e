package messaging

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRabbitMQNames(t *testing.T) {
	assert.Equal(t, "domain-events.fulfillment", queueName("domain-events", "fulfillment"))
	assert.Equal(t, Entry{ID: "9", Data: []byte("x")}, deliveryEntry(amqp.Delivery{DeliveryTag: 9, Body: []byte("x")}))
	assert.True(t, (&RabbitMQ{}).RetainsForBoundGroupsOnly())
}

func TestRabbitMQRejectsBadDeliveryTags(t *testing.T) {
	r := &RabbitMQ{}
	assert.ErrorContains(t, r.Ack(context.Background(), "events", "workers", "not-a-tag"), "invalid delivery tag")
	assert.ErrorContains(t, r.Nack(context.Background(), "events", "workers", "-1"), "invalid delivery tag")
}

func newTestRabbitMQ(t *testing.T) *RabbitMQ {
	t.Helper()
	url := os.Getenv("TEST_RABBITMQ_URL")
	if url == "" {
		t.Skip("TEST_RABBITMQ_URL not set")
	}
	r, err := NewRabbitMQ(url, 10)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

// readAll reads until want entries arrive or the deadline passes. Each
// group consumes under its own tag since the channel is shared.
func readAll(t *testing.T, r *RabbitMQ, stream, group string, want int) []Entry {
	t.Helper()
	var got []Entry
	deadline := time.Now().Add(10 * time.Second)
	for len(got) < want && time.Now().Before(deadline) {
		entries, err := r.ReadGroup(context.Background(), stream, group, "test-"+group, want-len(got), 500*time.Millisecond)
		require.NoError(t, err)
		got = append(got, entries...)
	}
	require.Len(t, got, want)
	return got
}

func TestRabbitMQAppendReadAck(t *testing.T) {
	r := newTestRabbitMQ(t)
	ctx := context.Background()
	stream := "orderflow-test-" + uuid.NewString()
	group := "workers"

	require.NoError(t, r.EnsureGroup(ctx, stream, group))
	t.Cleanup(func() {
		r.subCh.QueueDelete(queueName(stream, group), false, false, false)
		r.pubCh.ExchangeDelete(stream, false, false)
	})

	seen := map[string]bool{}
	for _, body := range []string{"a", "b", "c"} {
		id, err := r.Append(ctx, stream, []byte(body))
		require.NoError(t, err, "publish is confirmed")
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "confirm tags are unique")
		seen[id] = true
	}

	entries := readAll(t, r, stream, group, 3)
	assert.Equal(t, "a", string(entries[0].Data))
	assert.Equal(t, "b", string(entries[1].Data))
	assert.Equal(t, "c", string(entries[2].Data))

	require.NoError(t, r.Nack(ctx, stream, group, entries[0].ID))
	require.NoError(t, r.Ack(ctx, stream, group, entries[1].ID))
	require.NoError(t, r.Ack(ctx, stream, group, entries[2].ID))

	again := readAll(t, r, stream, group, 1)
	assert.Equal(t, "a", string(again[0].Data), "nack requeues")
	require.NoError(t, r.Ack(ctx, stream, group, again[0].ID))

	empty, err := r.ReadGroup(ctx, stream, group, "w1", 10, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, empty)

	empty, err = r.ReadGroup(ctx, stream, group, "w1", 10, 0)
	require.NoError(t, err, "zero block does not wait")
	assert.Empty(t, empty)
}

func TestRabbitMQGroupsReceiveEveryEntry(t *testing.T) {
	r := newTestRabbitMQ(t)
	ctx := context.Background()
	stream := "orderflow-test-" + uuid.NewString()

	for _, group := range []string{"fulfillment", "audit"} {
		require.NoError(t, r.EnsureGroup(ctx, stream, group))
		t.Cleanup(func() { r.subCh.QueueDelete(queueName(stream, group), false, false, false) })
	}
	t.Cleanup(func() { r.pubCh.ExchangeDelete(stream, false, false) })

	_, err := r.Append(ctx, stream, []byte("evt"))
	require.NoError(t, err)

	for _, group := range []string{"fulfillment", "audit"} {
		got := readAll(t, r, stream, group, 1)
		assert.Equal(t, "evt", string(got[0].Data), group)
		require.NoError(t, r.Ack(ctx, stream, group, got[0].ID))
	}
}
