// Package server: metrics.go registers the Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label used to partition metrics by the
	// matched route pattern rather than the raw URL path.
	labelHandler = "handler"

	// unmatchedHandler labels requests no route matched, bounding cardinality.
	unmatchedHandler = "unmatched"
)

// Outcome label values for upload and query counters.
const (
	outcomeOK          = "ok"
	outcomeClientError = "client_error"
	outcomeError       = "error"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New so tests can inject a fresh
// prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// uploadsTotal counts /upload requests by outcome.
	uploadsTotal *prometheus.CounterVec

	// uploadChunks records how many chunks each successful upload produced.
	uploadChunks prometheus.Histogram

	// queriesTotal counts /query requests by outcome and provider choice.
	queriesTotal *prometheus.CounterVec

	// queryDurationSeconds records the wall-clock duration of /query,
	// including retrieval and generation.
	queryDurationSeconds *prometheus.HistogramVec

	// httpRequestsTotal counts all HTTP requests, partitioned by method,
	// route pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec

	// rateLimitedTotal counts requests refused by the per-client limiter.
	rateLimitedTotal *prometheus.CounterVec
}

// newServerMetrics registers all server metrics against reg. The chunk gauge
// reads store.Len at scrape time.
func newServerMetrics(reg prometheus.Registerer, store knowledgeStore) *serverMetrics {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "docqa",
		Subsystem: "index",
		Name:      "chunks",
		Help:      "Number of chunks currently held by the knowledge store.",
	}, func() float64 { return float64(store.Len()) })

	return &serverMetrics{
		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "upload",
			Name:      "requests_total",
			Help:      "Total number of /upload requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		uploadChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "upload",
			Name:      "chunks",
			Help:      "Number of chunks indexed per successful upload.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),

		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of /query requests completed, partitioned by outcome and provider.",
		}, []string{"outcome", "provider"}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /query requests including retrieval and generation.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),

		rateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests refused by the per-client rate limiter.",
		}, []string{labelHandler}),
	}
}

// middleware records request count and latency. The handler label is the
// route pattern the mux matched, read after the request has been served.
func (m *serverMetrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		handler := r.Pattern
		if handler == "" {
			handler = unmatchedHandler
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(elapsed.Seconds())
	})
}

// outcomeFor maps an HTTP status code to an outcome label value.
func outcomeFor(status int) string {
	switch {
	case status < 400:
		return outcomeOK
	case status < 500:
		return outcomeClientError
	default:
		return outcomeError
	}
}
