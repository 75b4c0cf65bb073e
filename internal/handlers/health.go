package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/metrics"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// HealthCheck reports "healthy" when every check passes and 503 with the
// failing checks otherwise.
func HealthCheck(serviceName string, checks map[string]Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		failed := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}

		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "service": serviceName, "failed": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	}
}

// NewEngine returns a gin engine with request metrics, /health and
// /metrics already routed.
func NewEngine(serviceName string, reg *prometheus.Registry, checks map[string]Check) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	if reg != nil {
		router.Use(metrics.NewServerMetrics(reg).Middleware())
		router.GET("/metrics", gin.WrapH(metrics.Handler(reg)))
	}
	router.GET("/health", HealthCheck(serviceName, checks))
	return router
}
