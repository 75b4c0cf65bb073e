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
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/handlers"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/publisher"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/service"
)

const serviceName = "order-service"

func main() {
	if err := run(); err != nil {
		slog.Error("❌ Order service stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(8082)
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

	pub := publisher.NewEventPublisher(res.Transport, cfg.EventStream)
	orderRepo, _, deliveryRepo := res.Repositories()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	checks := map[string]handlers.Check{}
	if res.DB != nil {
		checks["postgres"] = res.DB.Conn.PingContext
	}

	router := handlers.NewEngine(serviceName, reg, checks)
	handlers.NewOrderHandler(service.NewOrderService(orderRepo, pub, serviceName)).Register(router)
	handlers.NewDeliveryHandler(service.NewDeliveryService(deliveryRepo, orderRepo, pub, serviceName)).Register(router)

	if cfg.ConsulEnabled {
		consul, err := discovery.NewConsulClient(cfg.ConsulHost, cfg.ConsulPort)
		if err != nil {
			return err
		}
		id, err := consul.Register(discovery.ServiceConfig{Name: serviceName, Port: cfg.HTTPPort, Tags: []string{"api", "orders"}})
		if err != nil {
			return err
		}
		defer consul.Deregister(id)
	}

	srv := &http.Server{Addr: cfg.Addr(), Handler: router}
	go func() {
		<-ctx.Done()
		slog.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("🚀 Order Service starting", "addr", srv.Addr, "transport", cfg.Transport, "stream", cfg.EventStream)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
