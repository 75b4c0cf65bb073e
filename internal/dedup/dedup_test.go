package dedup

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()

	seen, err := s.Seen(ctx, "workers", id)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Mark(ctx, "workers", id))
	require.NoError(t, s.Mark(ctx, "workers", id))

	seen, err = s.Seen(ctx, "workers", id)
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.Seen(ctx, "auditors", id)
	require.NoError(t, err)
	assert.False(t, seen, "groups are tracked separately")
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(time.Hour))
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Mark(ctx, "workers", "e1"))
	now = now.Add(2 * time.Hour)

	seen, err := s.Seen(ctx, "workers", "e1")
	require.NoError(t, err)
	assert.False(t, seen)

	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	exerciseStore(t, NewRedisStore(client, time.Hour))
}

func TestRedisStoreSetsTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client, time.Hour)
	require.NoError(t, s.Mark(ctx, "workers", "e1"))
	assert.Equal(t, time.Hour, mr.TTL("dedup:workers:e1"))

	mr.FastForward(2 * time.Hour)
	seen, err := s.Seen(ctx, "workers", "e1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS processed_events (
			consumer_group VARCHAR(255) NOT NULL,
			event_id VARCHAR(255) NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (consumer_group, event_id)
		)
	`)
	require.NoError(t, err)

	exerciseStore(t, NewPostgresStore(db, time.Hour))
}
