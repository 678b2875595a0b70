package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atrium-hq/atrium/internal/permcache"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics initializes the registry and the base HTTP metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atrium_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	registry.MustRegister(requests, duration)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// RegisterPermissionCache exposes decision-cache counters to Prometheus. The
// stats function is polled at scrape time.
func (m *Metrics) RegisterPermissionCache(stats func() permcache.Stats) {
	if m == nil || stats == nil {
		return
	}
	m.registry.MustRegister(&permcacheCollector{stats: stats})
}

type permcacheCollector struct {
	stats func() permcache.Stats
}

var (
	permcacheSizeDesc    = prometheus.NewDesc("atrium_permcache_entries", "Current number of cached permission decisions.", nil, nil)
	permcacheHitsDesc    = prometheus.NewDesc("atrium_permcache_hits_total", "Permission cache hits.", nil, nil)
	permcacheMissesDesc  = prometheus.NewDesc("atrium_permcache_misses_total", "Permission cache misses.", nil, nil)
	permcacheSetsDesc    = prometheus.NewDesc("atrium_permcache_sets_total", "Permission cache writes.", nil, nil)
	permcacheDeletesDesc = prometheus.NewDesc("atrium_permcache_deletes_total", "Permission cache deletions, including expiries and invalidations.", nil, nil)
)

func (c *permcacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- permcacheSizeDesc
	ch <- permcacheHitsDesc
	ch <- permcacheMissesDesc
	ch <- permcacheSetsDesc
	ch <- permcacheDeletesDesc
}

func (c *permcacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(permcacheSizeDesc, prometheus.GaugeValue, float64(s.Size))
	ch <- prometheus.MustNewConstMetric(permcacheHitsDesc, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(permcacheMissesDesc, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(permcacheSetsDesc, prometheus.CounterValue, float64(s.Sets))
	ch <- prometheus.MustNewConstMetric(permcacheDeletesDesc, prometheus.CounterValue, float64(s.Deletes))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
