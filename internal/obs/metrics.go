package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Admission metrics. Labels carry only coarse outcomes, never code values.
var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invite_generations_total",
			Help: "Invite code generation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	redemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invite_redemptions_total",
			Help: "Invite code redemption attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers the metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		generationsTotal, redemptionsTotal,
	)
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordGeneration counts a generation attempt. Outcomes: issued,
// rate_limited, exhausted, error.
func RecordGeneration(outcome string) {
	generationsTotal.WithLabelValues(outcome).Inc()
}

// RecordRedemption counts a redemption attempt. Outcomes: admitted,
// invalid_code, self_use, rate_limited, bad_format, email_conflict, error.
func RecordRedemption(outcome string) {
	redemptionsTotal.WithLabelValues(outcome).Inc()
}

// Instrument wraps a handler with RPS, latency and in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
