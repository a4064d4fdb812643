package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-wide metrics.
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
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)

	readinessGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 while the service is up and not shutting down, 0 otherwise.",
	})
)

// Domain metrics, named after the operations in C7/C8/C9/C1.
var (
	DocumentsUploaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "documents_uploaded_total",
		Help: "Documents successfully uploaded and finalized to READY.",
	})

	DocumentsSigned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "documents_signed_total",
		Help: "Documents that reached SIGNED status.",
	})

	OtpSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_sent_total",
		Help: "OTP codes minted, labeled by channel.",
	}, []string{"channel"})

	OtpVerified = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_verified_total",
		Help: "OTP verification attempts, labeled by outcome.",
	}, []string{"outcome"})

	AuditChainVerify = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_chain_verify_total",
		Help: "verifyChainForDocument invocations, labeled by result.",
	}, []string{"result"})

	SignerCommits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signer_commits_total",
		Help: "Signer commit attempts, labeled by outcome.",
	}, []string{"outcome"})

	RemindersSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reminders_sent_total",
		Help: "Reminder notifications sent by the C10 scheduler hook.",
	})

	DocumentsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "documents_expired_total",
		Help: "Documents transitioned to EXPIRED by the C10 scheduler hook.",
	})
)

// Init registers every metric on the default registry. Call once at boot.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, readinessGauge,
		DocumentsUploaded, DocumentsSigned, OtpSent, OtpVerified,
		AuditChainVerify, SignerCommits, RemindersSent, DocumentsExpired,
	)
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady sets the service_ready gauge. cmd/api sets it to 1 just before
// the HTTP server starts listening and to 0 when shutdown begins; /readyz
// does not update it.
func SetReady(ready bool) {
	if ready {
		readinessGauge.Set(1)
		return
	}
	readinessGauge.Set(0)
}

// Instrument wraps a handler with request-rate/latency/in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
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

// CanonicalPath collapses path segments that look like opaque identifiers
// (ULIDs, UUIDs, share tokens) so that per-path metric series stay bounded
// in cardinality instead of growing one series per document/signer.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		if looksOpaque(seg) {
			segments[i] = ":id"
		}
	}
	return "/" + strings.Join(segments, "/")
}

func looksOpaque(seg string) bool {
	if len(seg) < 16 {
		return false
	}
	hasDigit := false
	for _, r := range seg {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-', r == '_':
			// allowed
		default:
			return false
		}
	}
	return hasDigit
}

// statusWriter captures the status code written by the handler.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
