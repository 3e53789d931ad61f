package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Auth metrics
	SessionsIssuedTotal     prometheus.Counter
	MagicLinksIssuedTotal   prometheus.Counter
	MagicLinksRedeemedTotal *prometheus.CounterVec

	// Permission cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atrium_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atrium_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		SessionsIssuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atrium_sessions_issued_total",
			Help: "Total number of sessions issued",
		}),
		MagicLinksIssuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atrium_magic_links_issued_total",
			Help: "Total number of magic links issued",
		}),
		MagicLinksRedeemedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atrium_magic_links_redeemed_total",
				Help: "Total number of magic link redemption attempts",
			},
			[]string{"result"},
		),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atrium_permission_cache_hits_total",
			Help: "Total number of permission cache hits",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atrium_permission_cache_misses_total",
			Help: "Total number of permission cache misses",
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SessionsIssuedTotal,
		m.MagicLinksIssuedTotal,
		m.MagicLinksRedeemedTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
