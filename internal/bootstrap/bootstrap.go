// Package bootstrap turns a config.Config into live connections, stores
// and transports shared by the binaries under cmd/.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/config"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/db"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/dedup"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/memstore"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/service"
	"github.com/redis/go-redis/v9"
)

// connectTimeout bounds how long startup waits for a dependency to come up.
const connectTimeout = 30 * time.Second

type Resources struct {
	cfg config.Config

	DB        *db.PostgresDB // nil when DB_DRIVER=memory
	Redis     *redis.Client  // nil unless the transport or dedup store uses Redis
	Transport messaging.Transport

	closers []func() error
}

// Open connects to the database, Redis and the broker named by cfg. Each
// connection is retried with backoff for up to connectTimeout.
func Open(ctx context.Context, cfg config.Config) (*Resources, error) {
	r := &Resources{cfg: cfg}

	if cfg.DBDriver != "memory" {
		database, err := connect(ctx, "postgres", func() (*db.PostgresDB, error) {
			return db.NewPostgresDB(ctx, cfg.DBDriver, cfg.DatabaseURL)
		})
		if err != nil {
			return nil, err
		}
		r.DB = database
		r.closers = append(r.closers, database.Close)
	}

	if cfg.Transport == "redis" || cfg.DedupBackend == "redis" {
		client, err := connect(ctx, "redis", func() (*redis.Client, error) {
			return messaging.ConnectRedis(ctx, cfg.RedisURL)
		})
		if err != nil {
			r.Close()
			return nil, err
		}
		r.Redis = client
	}

	transport, err := r.openTransport(ctx)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.Transport = transport
	r.closers = append(r.closers, transport.Close)

	// RedisStreams owns the client when it is the transport.
	if r.Redis != nil && cfg.Transport != "redis" {
		r.closers = append(r.closers, r.Redis.Close)
	}
	return r, nil
}

func (r *Resources) openTransport(ctx context.Context) (messaging.Transport, error) {
	switch r.cfg.Transport {
	case "redis":
		return messaging.NewRedisStreams(r.Redis, r.cfg.ConsumerClaimIdle), nil
	case "kafka":
		slog.Info("✅ Using Kafka", "brokers", r.cfg.KafkaBrokers)
		return messaging.NewKafka(r.cfg.KafkaBrokers), nil
	case "rabbitmq":
		return connect(ctx, "rabbitmq", func() (*messaging.RabbitMQ, error) {
			return messaging.NewRabbitMQ(r.cfg.RabbitMQURL, r.cfg.ConsumerBatchSize)
		})
	case "memory":
		slog.Warn("⚠️ Using in-memory transport, events stay inside this process")
		return messaging.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown transport %q", r.cfg.Transport)
}

// Repositories returns Postgres-backed repositories, or in-memory ones when
// no database is configured.
func (r *Resources) Repositories() (service.OrderRepository, service.ReservationRepository, service.DeliveryRepository) {
	if r.DB == nil {
		return memstore.NewOrderRepository(), memstore.NewReservationRepository(), memstore.NewDeliveryRepository()
	}
	return db.NewOrderRepository(r.DB), db.NewReservationRepository(r.DB), db.NewDeliveryRepository(r.DB)
}

// DedupStore returns the store selected by DEDUP_BACKEND.
func (r *Resources) DedupStore() (dedup.Store, error) {
	switch r.cfg.DedupBackend {
	case "redis":
		return dedup.NewRedisStore(r.Redis, r.cfg.DedupTTL), nil
	case "postgres":
		if r.DB == nil {
			return nil, errors.New("postgres dedup store needs a database")
		}
		return dedup.NewPostgresStore(r.DB.Conn, r.cfg.DedupTTL), nil
	case "memory":
		return dedup.NewMemoryStore(r.cfg.DedupTTL), nil
	}
	return nil, fmt.Errorf("unknown dedup backend %q", r.cfg.DedupBackend)
}

// Close releases everything Open acquired, in reverse order.
func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			slog.Warn("⚠️ Error during shutdown", "err", err)
		}
	}
	r.closers = nil
}

func connect[T any](ctx context.Context, name string, dial func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	v, err := backoff.Retry(ctx, dial,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(connectTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("⏳ Waiting for dependency", "name", name, "retry_in", next, "err", err)
		}),
	)
	if err != nil {
		return v, fmt.Errorf("failed to connect to %s: %w", name, err)
	}
	return v, nil
}
