package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private Prometheus registry and the service's collectors
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	RecommendationDuration *prometheus.HistogramVec
	ViewsTracked           prometheus.Counter
	SearchesTotal          *prometheus.CounterVec
	CacheLookups           *prometheus.CounterVec
	BreakerState           *prometheus.GaugeVec
}

// New creates the registry with Go runtime and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "http_server_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.RecommendationDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recommendation_duration_seconds",
		Help:    "Time to build a ranked product list",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	m.ViewsTracked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "product_views_tracked_total",
		Help: "Product views recorded",
	})
	reg.MustRegister(m.ViewsTracked)

	m.SearchesTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "product_searches_total",
		Help: "Text searches by whether any product was found",
	}, []string{"found"})

	m.CacheLookups = m.NewCounterVec(prometheus.CounterOpts{
		Name: "recommendation_cache_lookups_total",
		Help: "Ranked list cache lookups by result",
	}, []string{"key", "result"})

	m.BreakerState = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0: closed, 1: half-open, 2: open)",
	}, []string{"name"})

	return m
}

// NewCounterVec creates and registers a counter vector
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec creates and registers a gauge vector
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec creates and registers a histogram vector
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRecommendation records how long a strategy took
func (m *Metrics) ObserveRecommendation(strategy string, start time.Time) {
	m.RecommendationDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
}

// Middleware counts requests and latency per route template
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
