package monitoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector registers the service's Prometheus metrics: the HTTP
// surface plus pipeline counters and gauges fed by the dispatcher, the
// websocket hub, and the outbound-call guard.
type MetricsCollector struct {
	namespace string

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInFlight        prometheus.Gauge
	buildInfo           *prometheus.GaugeVec

	tasksTotal *prometheus.CounterVec
}

// NewMetricsCollector registers the fixed metrics on the default registry.
// Call once per process.
func NewMetricsCollector(serviceName, version, commit string) *MetricsCollector {
	// Prometheus metric names cannot carry hyphens.
	ns := strings.ReplaceAll(serviceName, "-", "_")

	mc := &MetricsCollector{namespace: ns}

	mc.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		},
		[]string{"method", "endpoint", "status"},
	)

	mc.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	mc.httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served",
		},
	)

	mc.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "build_info",
			Help:      "Build version and commit",
		},
		[]string{"version", "commit"},
	)

	mc.tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "tasks_total",
			Help:      "Dispatched task executions by kind, lane and outcome",
		},
		[]string{"kind", "lane", "outcome"},
	)

	prometheus.MustRegister(
		mc.httpRequestsTotal,
		mc.httpRequestDuration,
		mc.httpInFlight,
		mc.buildInfo,
		mc.tasksTotal,
	)
	mc.buildInfo.WithLabelValues(version, commit).Set(1)

	return mc
}

// TaskDone records one task execution outcome. Wired to the dispatcher's
// Observe hook.
func (mc *MetricsCollector) TaskDone(kind, lane, outcome string) {
	mc.tasksTotal.WithLabelValues(kind, lane, outcome).Inc()
}

// TrackGauge registers a gauge whose value is read from fn at scrape time.
// Used for queue depth and open websocket connections.
func (mc *MetricsCollector) TrackGauge(name, help string, fn func() float64) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: mc.namespace,
			Name:      name,
			Help:      help,
		},
		fn,
	))
}

// TrackServiceGauge is TrackGauge with a fixed service label, one gauge per
// guarded third-party service (breaker state, quota usage).
func (mc *MetricsCollector) TrackServiceGauge(name, help, service string, fn func() float64) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   mc.namespace,
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"service": service},
		},
		fn,
	))
}

// MetricsMiddleware instruments every HTTP request.
func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		mc.httpInFlight.Inc()
		defer mc.httpInFlight.Dec()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		mc.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		mc.httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus scrape endpoint.
func (mc *MetricsCollector) Handler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
