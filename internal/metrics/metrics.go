package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"method", "path"},
	)

	alertsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_alerts_ingested_total",
			Help: "Alerts accepted by the command service, by parse quality",
		},
		[]string{"quality"},
	)

	acksIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_acks_total",
			Help: "Acknowledgments issued by capacity status",
		},
		[]string{"capacity"},
	)

	relaySubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_relay_submissions_total",
			Help: "Relay submissions by outcome (forwarded, queued, rejected)",
		},
		[]string{"outcome"},
	)

	forwardAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_forward_attempts_total",
			Help: "Forward attempts to the command service by source and result",
		},
		[]string{"source", "result"},
	)

	retryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_retry_queue_depth",
			Help: "Items waiting in the relay retry queue",
		},
	)

	wsSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_ws_subscribers",
			Help: "Connected fan-out subscribers",
		},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_rate_limit_rejections_total",
			Help: "Requests rejected by the relay rate limiter",
		},
	)
)

// Forward attempt sources.
const (
	SourceIngress = "ingress"
	SourceQueue   = "queue"
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAlertIngested counts a parsed alert.
func RecordAlertIngested(degraded bool) {
	quality := "ok"
	if degraded {
		quality = "degraded"
	}
	alertsIngested.WithLabelValues(quality).Inc()
}

// RecordAck counts an issued ack by its capacity status.
func RecordAck(capacity string) {
	acksIssued.WithLabelValues(capacity).Inc()
}

// RecordRelaySubmission counts a relay submission outcome.
func RecordRelaySubmission(outcome string) {
	relaySubmissions.WithLabelValues(outcome).Inc()
}

// RecordForwardAttempt counts one forward attempt.
func RecordForwardAttempt(source string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	forwardAttempts.WithLabelValues(source, result).Inc()
}

// SetRetryQueueDepth sets the current retry queue length
func SetRetryQueueDepth(n int) {
	retryQueueDepth.Set(float64(n))
}

// SetWSSubscribers sets the connected subscriber count
func SetWSSubscribers(n int) {
	wsSubscribers.Set(float64(n))
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the fan-out endpoint upgrade through this middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware returns HTTP middleware that records request metrics.
// Paths are labelled by chi route pattern when available to keep cardinality
// bounded (PUT /safe_bases/{id}).
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		RecordRequest(r.Method, path, wrapped.status, time.Since(start))
	})
}
