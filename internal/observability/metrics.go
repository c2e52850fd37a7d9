package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peeraid_http_requests_total",
			Help: "Total number of HTTP requests processed by the messaging service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peeraid_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// WSActiveConnections gauges live websocket connections.
	WSActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "peeraid_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)

	// WSEventsTotal counts inbound websocket events by name.
	WSEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peeraid_ws_events_total",
			Help: "Total number of inbound websocket events.",
		},
		[]string{"event"},
	)

	// WSBroadcastTotal counts outbound fan-out deliveries by event name.
	WSBroadcastTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peeraid_ws_broadcast_total",
			Help: "Total number of events delivered through room fan-out.",
		},
		[]string{"event"},
	)

	// ActiveCalls gauges calls currently in flight.
	ActiveCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "peeraid_active_calls",
			Help: "Number of audio calls currently in flight.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		WSActiveConnections,
		WSEventsTotal,
		WSBroadcastTotal,
		ActiveCalls,
	)
}

// GinMiddleware records request counts and latencies per route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
