package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: cache lookups per tier (memory, durable) and result.
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dreamspace_cache_lookups_total",
			Help: "Response cache lookups by tier and result.",
		},
		[]string{"tier", "result"},
	)

	// Counter: durable write outcomes (stored, stored_after_prune, memory_only).
	CacheWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dreamspace_cache_writes_total",
			Help: "Durable cache write outcomes.",
		},
		[]string{"outcome"},
	)

	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dreamspace_cache_evictions_total",
			Help: "Durable entries removed by quota pruning.",
		},
	)

	CacheStoreLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dreamspace_cache_store_latency_seconds",
			Help:    "Durable store operation latency in seconds.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
		},
		[]string{"backend", "op"},
	)

	// Histogram: one upstream generation call (a single attempt).
	UpstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dreamspace_upstream_latency_seconds",
			Help:    "Generation API call latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"operation", "outcome"},
	)

	// Counter: executor attempts by outcome (success, transient, fatal).
	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dreamspace_retry_attempts_total",
			Help: "Executor attempts by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// Counter: callers that joined an identical in-flight request.
	DedupSharedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dreamspace_inflight_shared_total",
			Help: "Calls served by an identical in-flight request.",
		},
		[]string{"operation"},
	)

	// Histogram: gateway HTTP latency in seconds.
	GatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dreamspace_http_latency_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15, 30, 60},
		},
		[]string{"route", "method", "status_code"},
	)
)

var registerOnce sync.Once

// Register is called once in main() to register metrics.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CacheLookupsTotal,
			CacheWritesTotal,
			CacheEvictionsTotal,
			CacheStoreLatencySeconds,
			UpstreamLatencySeconds,
			RetryAttemptsTotal,
			DedupSharedTotal,
			GatewayLatencySeconds,
		)
	})
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures latency for each HTTP request, labelled by the chi
// route pattern so path parameters do not blow up cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		GatewayLatencySeconds.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
