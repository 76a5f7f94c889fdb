// Package metrics registers the screener's Prometheus collectors:
//
//	screener_cache_requests_total{tier,result}
//	screener_fetch_items_total{market,status}
//	screener_analysis_duration_seconds{operation}
//	go_* and process_* runtime metrics
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors on a dedicated registry.
type Metrics struct {
	registry         *prometheus.Registry
	cacheRequests    *prometheus.CounterVec
	fetchItems       *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_cache_requests_total",
				Help: "Result cache lookups by tier and outcome",
			},
			[]string{"tier", "result"},
		),
		fetchItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_fetch_items_total",
				Help: "Upstream fetch items (symbols or chunks) by outcome",
			},
			[]string{"market", "status"},
		),
		analysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "screener_analysis_duration_seconds",
				Help:    "Wall time of uncached analyses",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			},
			[]string{"operation"},
		),
	}

	m.registry.MustRegister(
		m.cacheRequests,
		m.fetchItems,
		m.analysisDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// CacheResult counts one cache lookup.
func (m *Metrics) CacheResult(tier, result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(tier, result).Inc()
}

// FetchItem counts one fetched symbol or chunk.
func (m *Metrics) FetchItem(market, status string) {
	if m == nil {
		return
	}
	m.fetchItems.WithLabelValues(market, status).Inc()
}

// ObserveAnalysis records the duration of an uncached analysis.
func (m *Metrics) ObserveAnalysis(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.analysisDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// Registry exposes the registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns the exposition handler for /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
