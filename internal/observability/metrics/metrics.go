package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics exposes request-level Prometheus instruments.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP instruments on the default registry.
func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inkwell",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inkwell",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// GinMiddleware records request counts and latency.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Engine counters shared by the messaging services.
var (
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inkwell",
		Subsystem: "messaging",
		Name:      "messages_sent_total",
		Help:      "Messages accepted for delivery by type.",
	}, []string{"type"})

	SendsRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inkwell",
		Subsystem: "messaging",
		Name:      "sends_rate_limited_total",
		Help:      "Send attempts rejected by the per-sender rate limit.",
	})

	SendsBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inkwell",
		Subsystem: "messaging",
		Name:      "sends_blocked_total",
		Help:      "Send attempts rejected because sender or all recipients were blocked.",
	})

	FanoutEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inkwell",
		Subsystem: "fanout",
		Name:      "events_total",
		Help:      "Events broadcast to live listeners by envelope type.",
	}, []string{"type"})

	FanoutListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "inkwell",
		Subsystem: "fanout",
		Name:      "listeners",
		Help:      "Currently connected live listeners across all scopes.",
	})
)
