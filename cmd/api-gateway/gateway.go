package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// resolver looks up a healthy instance of a service.
type resolver interface {
	GetServiceURL(serviceName string) (string, error)
}

type Gateway struct {
	resolver  resolver
	fallbacks map[string]string
	client    *http.Client

	mutex    sync.RWMutex
	proxies  map[string]*httputil.ReverseProxy
	services map[string]string
}

// NewGateway routes to the services named in fallbacks. Consul is asked
// first; the fallback URL (K8s DNS by default) is used when it has no
// healthy instance. A nil resolver means fallbacks only.
func NewGateway(r resolver, fallbacks map[string]string) *Gateway {
	g := &Gateway{
		resolver:  r,
		fallbacks: fallbacks,
		client:    &http.Client{Timeout: 2 * time.Second},
		proxies:   make(map[string]*httputil.ReverseProxy),
		services:  make(map[string]string),
	}
	g.discoverServices()
	return g
}

func (g *Gateway) discoverServices() {
	for svc, fallback := range g.fallbacks {
		target := fallback
		if g.resolver != nil {
			u, err := g.resolver.GetServiceURL(svc)
			if err == nil {
				target = u
			} else {
				slog.Warn("⚠️ Service not found in Consul, using fallback", "service", svc, "fallback", fallback, "err", err)
			}
		}
		g.updateProxy(svc, target)
	}
}

func (g *Gateway) updateProxy(serviceName, serviceURL string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.services[serviceName] == serviceURL {
		return
	}

	target, err := url.Parse(serviceURL)
	if err != nil {
		slog.Error("❌ Invalid service URL", "service", serviceName, "url", serviceURL, "err", err)
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		slog.Error("❌ Proxy error", "service", serviceName, "err", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error": "service unavailable"}`)
	}

	g.proxies[serviceName] = proxy
	g.services[serviceName] = serviceURL
	slog.Info("✅ Updated route", "service", serviceName, "url", serviceURL)
}

// watchServices re-resolves every interval until stop is closed.
func (g *Gateway) watchServices(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			g.discoverServices()
		}
	}
}

func (g *Gateway) getProxy(serviceName string) *httputil.ReverseProxy {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.proxies[serviceName]
}

// Proxy forwards the request to serviceName, stripping prefix from the path.
func (g *Gateway) Proxy(serviceName, prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxy := g.getProxy(serviceName)
		if proxy == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": serviceName + " unavailable"})
			return
		}
		slog.Info("🔀 Routing", "method", c.Request.Method, "path", c.Request.URL.Path, "service", serviceName)

		req := c.Request
		if prefix != "" {
			req = req.Clone(req.Context())
			req.URL.Path = strings.TrimPrefix(req.URL.Path, prefix)
			if req.URL.Path == "" {
				req.URL.Path = "/"
			}
			req.URL.RawPath = ""
		}
		proxy.ServeHTTP(c.Writer, req)
	}
}

func (g *Gateway) HealthCheck(c *gin.Context) {
	g.mutex.RLock()
	services := make(map[string]string, len(g.services))
	for name, u := range g.services {
		services[name] = u
	}
	g.mutex.RUnlock()

	statuses := make(map[string]string)
	allHealthy := true

	for name, u := range services {
		resp, err := g.client.Get(u + "/health")
		if err != nil || resp.StatusCode != http.StatusOK {
			statuses[name] = "unhealthy"
			allHealthy = false
		} else {
			statuses[name] = "healthy"
		}
		if resp != nil {
			resp.Body.Close()
		}
	}

	status := "healthy"
	if !allHealthy {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"service":  "api-gateway",
		"services": statuses,
	})
}

func (g *Gateway) ListServices(c *gin.Context) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	c.JSON(http.StatusOK, gin.H{"services": g.services})
}

func (g *Gateway) Register(router gin.IRouter) {
	router.GET("/health", g.HealthCheck)
	router.GET("/services", g.ListServices)

	orders := g.Proxy(orderService, "")
	router.Any("/orders", orders)
	router.Any("/orders/*path", orders)
	router.Any("/deliveries/*path", orders)

	router.Any("/worker/*path", g.Proxy(workerService, "/worker"))
}
