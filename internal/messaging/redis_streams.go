package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// payloadField is the stream entry field holding the encoded event.
const payloadField = "event"

// ConnectRedis opens a client for url and checks it with a PING.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("✅ Connected to Redis", "addr", opts.Addr)
	return client, nil
}

// RedisStreams implements Transport on Redis Streams consumer groups.
// Entries left pending longer than claimIdle are taken over by the next
// reader with XAUTOCLAIM; a zero claimIdle disables reclaiming.
type RedisStreams struct {
	client    *redis.Client
	claimIdle time.Duration
}

func NewRedisStreams(client *redis.Client, claimIdle time.Duration) *RedisStreams {
	return &RedisStreams{client: client, claimIdle: claimIdle}
}

func (r *RedisStreams) Append(ctx context.Context, stream string, data []byte) (string, error) {
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{payloadField: data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append to stream %s: %w", stream, err)
	}
	return id, nil
}

// EnsureGroup creates the group at the start of the stream, creating the
// stream if needed. An existing group is left untouched.
func (r *RedisStreams) EnsureGroup(ctx context.Context, stream, group string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create group %s on %s: %w", group, stream, err)
	}
	return nil
}

func (r *RedisStreams) ReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]Entry, error) {
	if r.claimIdle > 0 {
		claimed, err := r.claim(ctx, stream, group, consumer, count)
		if err != nil {
			return nil, err
		}
		if len(claimed) > 0 {
			return claimed, nil
		}
	}

	// go-redis omits BLOCK for negative values and treats zero as "forever".
	if block <= 0 {
		block = -1
	}

	res, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read group %s on %s: %w", group, stream, err)
	}

	var entries []Entry
	for _, s := range res {
		entries = append(entries, toEntries(s.Messages)...)
	}
	return entries, nil
}

func (r *RedisStreams) claim(ctx context.Context, stream, group, consumer string, count int) ([]Entry, error) {
	msgs, _, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  r.claimIdle,
		Start:    "0-0",
		Count:    int64(count),
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim idle entries on %s: %w", stream, err)
	}

	entries := toEntries(msgs)
	if len(entries) > 0 {
		slog.Warn("♻️ Reclaimed idle entries", "stream", stream, "group", group, "consumer", consumer, "count", len(entries))
	}
	return entries, nil
}

func (r *RedisStreams) Ack(ctx context.Context, stream, group, id string) error {
	if err := r.client.XAck(ctx, stream, group, id).Err(); err != nil {
		return fmt.Errorf("failed to ack %s on %s: %w", id, stream, err)
	}
	return nil
}

func (r *RedisStreams) Close() error {
	return r.client.Close()
}

func toEntries(msgs []redis.XMessage) []Entry {
	entries := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, Entry{ID: m.ID, Data: fieldBytes(m.Values[payloadField])})
	}
	return entries
}

// fieldBytes returns nil for missing fields so the consumer treats the
// entry as poison.
func fieldBytes(v any) []byte {
	switch val := v.(type) {
	case string:
		return []byte(val)
	case []byte:
		return val
	default:
		return nil
	}
}
