package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderflow"

// Event outcomes recorded by the consumer.
const (
	ResultProcessed    = "processed"
	ResultDuplicate    = "duplicate"
	ResultFailed       = "failed"
	ResultDeadLettered = "dead_lettered"
	ResultUnknown      = "unknown"
)

type WorkerMetrics struct {
	Events           *prometheus.CounterVec
	RetriesExhausted *prometheus.CounterVec
	HandlerMS        *prometheus.HistogramVec
}

func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "events_total",
		Help:      "Events taken off the stream, by type and outcome.",
	}, []string{"type", "result"})
	exhausted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "retries_exhausted_total",
		Help:      "Events whose handler failed on every attempt.",
	}, []string{"type"})
	handlerMS := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "handler_duration_ms",
		Help:      "Handler latency in milliseconds, retries included.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
	}, []string{"type"})

	reg.MustRegister(events, exhausted, handlerMS)
	return &WorkerMetrics{Events: events, RetriesExhausted: exhausted, HandlerMS: handlerMS}
}

// Nil receivers are valid and record nothing.

func (m *WorkerMetrics) Event(typ, result string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(typ, result).Inc()
}

func (m *WorkerMetrics) Exhausted(typ string) {
	if m == nil {
		return
	}
	m.RetriesExhausted.WithLabelValues(typ).Inc()
}

func (m *WorkerMetrics) ObserveHandler(typ string, d time.Duration) {
	if m == nil {
		return
	}
	m.HandlerMS.WithLabelValues(typ).Observe(float64(d.Milliseconds()))
}

type ServerMetrics struct {
	Requests *prometheus.CounterVec
}

func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})

	reg.MustRegister(requests)
	return &ServerMetrics{Requests: requests}
}

// Middleware counts requests by matched route and status code.
func (m *ServerMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
