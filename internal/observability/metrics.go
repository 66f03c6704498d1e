// Package observability exposes prometheus metrics for the billing client and
// the HTTP server.
package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	clientRequestsTotal   *prometheus.CounterVec
	clientRequestDuration *prometheus.HistogramVec

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		clientRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_client_requests_total",
				Help: "Total number of billing API requests",
			},
			[]string{"method", "path", "status"},
		),
		clientRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_client_request_duration_seconds",
				Help:    "Duration of billing API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of served HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being served",
			},
		),
	}
	reg.MustRegister(
		m.clientRequestsTotal,
		m.clientRequestDuration,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveClientRequest matches billing.Observer. The query string is dropped
// from path to bound label cardinality.
func (m *Metrics) ObserveClientRequest(method, path string, status int, elapsed time.Duration) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.clientRequestsTotal.WithLabelValues(method, path, label).Inc()
	m.clientRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// InFlight adjusts the in-flight gauge by delta.
func (m *Metrics) InFlight(delta float64) { m.httpRequestsInFlight.Add(delta) }
