// Package metrics defines the Prometheus collectors for the index, search
// and HTTP layers and exposes a scrape handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records
// nothing, so library code never has to check whether metrics are wired.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter

	DocsAddedTotal      prometheus.Counter
	DocsDeletedTotal    prometheus.Counter
	FlushesTotal        *prometheus.CounterVec
	FlushDuration       prometheus.Histogram
	MergesTotal         *prometheus.CounterVec
	MergeDuration       prometheus.Histogram
	SegmentCount        prometheus.Gauge
	BufferedDocs        prometheus.Gauge
	BufferedBytes       prometheus.Gauge
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. Passing nil
// registers with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by outcome (hit, zero_result, parse_error, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "search_results_count",
			Help:    "Total matching documents per search.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 1000},
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "search_cache_hits_total",
			Help: "Total number of search cache hits.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "search_cache_misses_total",
			Help: "Total number of search cache misses.",
		}),
		DocsAddedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "index_docs_added_total",
			Help: "Total documents added to the memory segment.",
		}),
		DocsDeletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "index_docs_deleted_total",
			Help: "Total documents deleted.",
		}),
		FlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total flush operations by status.",
			},
			[]string{"status"},
		),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "index_flush_duration_seconds",
			Help:    "Time spent writing a memory segment to disk.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		MergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_merges_total",
				Help: "Total merge operations by status.",
			},
			[]string{"status"},
		),
		MergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "index_merge_duration_seconds",
			Help:    "Time spent merging segments.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		SegmentCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "index_segments",
			Help: "Number of committed disk segments.",
		}),
		BufferedDocs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "index_buffered_docs",
			Help: "Documents held in memory segments awaiting flush.",
		}),
		BufferedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "index_buffered_bytes",
			Help: "Approximate bytes held in memory segments awaiting flush.",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsAddedTotal,
		m.DocsDeletedTotal,
		m.FlushesTotal,
		m.FlushDuration,
		m.MergesTotal,
		m.MergeDuration,
		m.SegmentCount,
		m.BufferedDocs,
		m.BufferedBytes,
		m.CircuitBreakerState,
	)
	return m
}

// ObserveFlush records the outcome of one flush.
func (m *Metrics) ObserveFlush(seconds float64, err error) {
	if m == nil {
		return
	}
	m.FlushesTotal.WithLabelValues(status(err)).Inc()
	if err == nil {
		m.FlushDuration.Observe(seconds)
	}
}

// ObserveMerge records the outcome of one merge.
func (m *Metrics) ObserveMerge(seconds float64, err error) {
	if m == nil {
		return
	}
	m.MergesTotal.WithLabelValues(status(err)).Inc()
	if err == nil {
		m.MergeDuration.Observe(seconds)
	}
}

// DocAdded counts one buffered document.
func (m *Metrics) DocAdded() {
	if m == nil {
		return
	}
	m.DocsAddedTotal.Inc()
}

// DocDeleted counts one deletion.
func (m *Metrics) DocDeleted() {
	if m == nil {
		return
	}
	m.DocsDeletedTotal.Inc()
}

// SetIndexShape publishes the current segment and buffer gauges.
func (m *Metrics) SetIndexShape(segments, bufferedDocs int, bufferedBytes int64) {
	if m == nil {
		return
	}
	m.SegmentCount.Set(float64(segments))
	m.BufferedDocs.Set(float64(bufferedDocs))
	m.BufferedBytes.Set(float64(bufferedBytes))
}

// ObserveSearch records the latency, outcome and total hits of one search.
func (m *Metrics) ObserveSearch(seconds float64, cacheStatus, outcome string, total int) {
	if m == nil {
		return
	}
	m.SearchLatency.WithLabelValues(cacheStatus).Observe(seconds)
	m.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	if outcome == "hit" || outcome == "zero_result" {
		m.SearchResultsCount.Observe(float64(total))
	}
}

// CacheHit counts a cache hit.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// CacheMiss counts a cache miss.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// SetBreakerState publishes a circuit breaker state.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a scrape handler for a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
