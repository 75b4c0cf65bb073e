package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/bootstrap"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/config"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/consumer"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/dedup"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/handlers"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/metrics"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/publisher"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/service"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/worker"
)

const serviceName = "orderflow-worker"

func main() {
	if err := run(); err != nil {
		slog.Error("❌ Worker stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(8090)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	store, err := res.DedupStore()
	if err != nil {
		return err
	}

	pub := publisher.NewEventPublisher(res.Transport, cfg.EventStream)
	orderRepo, reservationRepo, deliveryRepo := res.Repositories()
	orders := service.NewOrderService(orderRepo, pub, serviceName)
	inventory := service.NewInventoryService(reservationRepo, pub, serviceName, cfg.ReservationTTL)
	deliveries := service.NewDeliveryService(deliveryRepo, orderRepo, pub, serviceName)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	workerMetrics := metrics.NewWorkerMetrics(reg)

	router := worker.NewRouter(
		worker.NewHandlers(orders, inventory, deliveries, nil).Table(),
		worker.WithRetryPolicy(worker.RetryPolicy{
			MaxAttempts:  cfg.RetryMaxAttempts,
			InitialDelay: cfg.RetryInitialDelay,
			Multiplier:   cfg.RetryMultiplier,
			MaxDelay:     cfg.RetryMaxDelay,
		}),
		worker.WithMetrics(workerMetrics),
	)

	eventConsumer, err := consumer.NewEventConsumer(res.Transport, store, consumer.Config{
		Stream:    cfg.EventStream,
		Group:     cfg.ConsumerGroup,
		Consumer:  cfg.ConsumerName,
		BatchSize: cfg.ConsumerBatchSize,
		Block:     cfg.ConsumerBlock,
	}, workerMetrics)
	if err != nil {
		return err
	}

	// Redis expires dedup keys itself and has no Purge.
	var purger dedup.Purger
	if p, ok := store.(dedup.Purger); ok {
		purger = p
	}
	sweeper := worker.NewSweeper(inventory, purger, cfg.ExpirySweepInterval, 100)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: handlers.NewEngine(serviceName, reg, healthChecks(res)),
	}
	go func() {
		slog.Info("🚀 Worker health endpoint listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("❌ HTTP server failed", "err", err)
			stop()
		}
	}()

	if cfg.ConsulEnabled {
		deregister := register(cfg, []string{"worker", cfg.Transport})
		defer deregister()
	}

	go sweeper.Run(ctx)

	slog.Info("🚀 Worker started", "transport", cfg.Transport, "stream", cfg.EventStream,
		"group", cfg.ConsumerGroup, "consumer", cfg.ConsumerName)
	consumeErr := eventConsumer.Consume(ctx, router)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("⚠️ HTTP shutdown", "err", err)
	}
	slog.Info("👋 Worker stopped")
	return consumeErr
}

func healthChecks(res *bootstrap.Resources) map[string]handlers.Check {
	checks := map[string]handlers.Check{}
	if res.DB != nil {
		checks["postgres"] = res.DB.Conn.PingContext
	}
	if res.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return res.Redis.Ping(ctx).Err() }
	}
	return checks
}

// register announces the worker to Consul. Consul being down is logged,
// not fatal, since the worker does not serve traffic through it.
func register(cfg config.Config, tags []string) func() {
	consul, err := discovery.NewConsulClient(cfg.ConsulHost, cfg.ConsulPort)
	if err != nil {
		slog.Warn("⚠️ Consul unavailable, skipping registration", "err", err)
		return func() {}
	}
	id, err := consul.Register(discovery.ServiceConfig{Name: serviceName, Port: cfg.HTTPPort, Tags: tags})
	if err != nil {
		slog.Warn("⚠️ Consul registration failed", "err", err)
		return func() {}
	}
	return func() {
		if err := consul.Deregister(id); err != nil {
			slog.Warn("⚠️ Consul deregistration failed", "err", err)
		}
	}
}
