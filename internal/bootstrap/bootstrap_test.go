package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/config"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/dedup"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/memstore"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() config.Config {
	return config.Config{
		DBDriver:     "memory",
		Transport:    "memory",
		DedupBackend: "memory",
		DedupTTL:     time.Hour,
	}
}

func TestOpenInMemory(t *testing.T) {
	r, err := Open(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer r.Close()

	assert.Nil(t, r.DB)
	assert.Nil(t, r.Redis)
	assert.IsType(t, &messaging.Memory{}, r.Transport)

	orders, reservations, deliveries := r.Repositories()
	assert.IsType(t, &memstore.OrderRepository{}, orders)
	assert.IsType(t, &memstore.ReservationRepository{}, reservations)
	assert.IsType(t, &memstore.DeliveryRepository{}, deliveries)

	store, err := r.DedupStore()
	require.NoError(t, err)
	assert.IsType(t, &dedup.MemoryStore{}, store)
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.Transport = "redis"
	cfg.DedupBackend = "redis"
	cfg.RedisURL = "redis://" + mr.Addr()

	r, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer r.Close()

	require.NotNil(t, r.Redis)
	assert.IsType(t, &messaging.RedisStreams{}, r.Transport)

	store, err := r.DedupStore()
	require.NoError(t, err)
	assert.IsType(t, &dedup.RedisStore{}, store)

	_, err = r.Transport.Append(context.Background(), "s", []byte("x"))
	require.NoError(t, err)
	assert.Len(t, mr.Keys(), 1)
}

func TestOpenGivesUpWhenContextEnds(t *testing.T) {
	cfg := memoryConfig()
	cfg.Transport = "redis"
	cfg.RedisURL = "redis://127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := Open(ctx, cfg)
	assert.ErrorContains(t, err, "redis")
}

func TestPostgresDedupWithoutDatabase(t *testing.T) {
	cfg := memoryConfig()
	cfg.DedupBackend = "postgres"

	r, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.DedupStore()
	assert.Error(t, err)
}
