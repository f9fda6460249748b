package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsCreatedTotal counts sessions created via /prepare.
	SessionsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_sessions_created_total",
			Help: "Total number of relay sessions created.",
		},
	)

	// SessionsExpiredTotal counts sessions removed by the TTL sweep.
	SessionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_sessions_expired_total",
			Help: "Total number of relay sessions removed by the TTL sweep.",
		},
	)

	// ActiveStreams tracks currently open client SSE connections.
	ActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_streams",
			Help: "Number of SSE streams currently being relayed.",
		},
	)

	// ChunksRelayedTotal counts normalized content chunks sent to clients.
	ChunksRelayedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_chunks_relayed_total",
			Help: "Total number of normalized content chunks relayed to clients.",
		},
	)

	// StreamOutcomesTotal counts terminal stream states:
	// completed | failed | timed_out | client_closed.
	StreamOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_stream_outcomes_total",
			Help: "Terminal outcomes of relay stream attempts.",
		},
		[]string{"outcome"},
	)

	// FallbackAttemptsTotal counts upstream candidate attempts by position in
	// the fallback list (position 0 is the session's own model).
	FallbackAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_fallback_attempts_total",
			Help: "Upstream candidate attempts by fallback position.",
		},
		[]string{"position"},
	)

	// PayloadDecodeFailuresTotal counts upstream payloads that were not valid
	// JSON and were dropped.
	PayloadDecodeFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_payload_decode_failures_total",
			Help: "Upstream SSE payloads dropped because they failed JSON decoding.",
		},
	)

	// CatalogCacheHitsTotal counts model catalog responses served from cache.
	CatalogCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_catalog_cache_hits_total",
			Help: "Total number of model catalog cache hits.",
		},
	)

	// GatewayLatencySeconds is the HTTP latency histogram for the gateway.
	GatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "HTTP request latency for the gateway in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		SessionsCreatedTotal,
		SessionsExpiredTotal,
		ActiveStreams,
		ChunksRelayedTotal,
		StreamOutcomesTotal,
		FallbackAttemptsTotal,
		PayloadDecodeFailuresTotal,
		CatalogCacheHitsTotal,
		GatewayLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures gateway latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		// Label with the chi route pattern, not the raw path: paths like
		// /stream/<uuid> would otherwise create a series per session id.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		GatewayLatencySeconds.
			WithLabelValues(path, r.Method, strconv.Itoa(rec.statusCode)).
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

// Flush passes flushes through so SSE streaming works behind the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
