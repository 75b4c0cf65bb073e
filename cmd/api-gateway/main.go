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

	"github.com/gin-gonic/gin"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/config"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/discovery"
)

const (
	orderService  = "order-service"
	workerService = "orderflow-worker"
)

func main() {
	cfg, err := config.Load(8080)
	if err != nil {
		slog.Error("❌ Invalid configuration", "err", err)
		os.Exit(1)
	}

	var r resolver
	if cfg.ConsulEnabled {
		consul, err := discovery.NewConsulClient(cfg.ConsulHost, cfg.ConsulPort)
		if err != nil {
			slog.Warn("⚠️ Failed to connect to Consul, using K8s DNS", "err", err)
		} else {
			r = consul
		}
	}

	gateway := NewGateway(r, map[string]string{
		orderService:  "http://order-service:8082",
		workerService: "http://orderflow-worker:8090",
	})

	stop := make(chan struct{})
	go gateway.watchServices(10*time.Second, stop)

	router := gin.Default()
	gateway.Register(router)

	srv := &http.Server{Addr: cfg.Addr(), Handler: router}
	go func() {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()
		close(stop)
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("🚀 API Gateway starting", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("❌ Gateway stopped", "err", err)
		os.Exit(1)
	}
}
