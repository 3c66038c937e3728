// Package telemetry provides Prometheus metrics for the lab server.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xsslab/internal/policy"
)

// Metrics holds all Prometheus metrics for xsslab
type Metrics struct {
	gatherer prometheus.Gatherer

	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Mitigation metrics
	Analyses         *prometheus.CounterVec
	Detections       *prometheus.CounterVec
	SecuredOutputs   *prometheus.CounterVec
	SecurityEvents   *prometheus.CounterVec
	RecorderFailures prometheus.Counter

	// Lab metrics
	CollectedCookies prometheus.Counter
	AdminViews       *prometheus.CounterVec
	Emulations       *prometheus.CounterVec
}

var _ policy.Observer = (*Metrics)(nil)

// NewMetrics creates and registers all metrics. A nil registry uses a
// fresh one so that tests and multiple servers never collide.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	factory := promauto.With(registry)

	return &Metrics{
		gatherer: registry,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xsslab_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xsslab_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "route"},
		),

		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "xsslab_http_requests_in_flight",
				Help: "Number of requests currently being processed",
			},
		),

		Analyses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xsslab_analyses_total",
				Help: "Inputs analyzed by the classifier",
			},
			[]string{"context", "result"},
		),

		Detections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xsslab_detections_total",
				Help: "Pattern family detections by category",
			},
			[]string{"category"},
		),

		SecuredOutputs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xsslab_secured_outputs_total",
				Help: "Values passed through the output securer",
			},
			[]string{"mode", "outcome"},
		),

		SecurityEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xsslab_security_events_total",
				Help: "Suspicious-input events recorded",
			},
			[]string{"level"},
		),

		RecorderFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "xsslab_event_recorder_failures_total",
				Help: "Event recorder failures swallowed by the securer",
			},
		),

		CollectedCookies: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "xsslab_collected_cookies_total",
				Help: "Non-empty values received by the cookie collector",
			},
		),

		AdminViews: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xsslab_admin_views_total",
				Help: "Admin panel views",
			},
			[]string{"panel"},
		),

		Emulations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xsslab_payload_emulations_total",
				Help: "Payload dry-runs by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveAnalysis implements policy.Observer
func (m *Metrics) ObserveAnalysis(a policy.Analysis) {
	result := "clean"
	if a.Suspicious {
		result = "suspicious"
	}
	m.Analyses.WithLabelValues(contextLabel(a.Context), result).Inc()
	for _, category := range a.Categories {
		m.Detections.WithLabelValues(category).Inc()
	}
}

// contextLabel keeps caller-supplied contexts from growing label
// cardinality.
func contextLabel(ctx string) string {
	switch ctx {
	case "":
		return "none"
	case "html", "text", "attribute", "url", "js", "css":
		return ctx
	default:
		return "other"
	}
}

// ObserveOutcome implements policy.Observer
func (m *Metrics) ObserveOutcome(mode policy.Mode, outcome string) {
	m.SecuredOutputs.WithLabelValues(string(mode), outcome).Inc()
}

// ObserveRecorderFailure implements policy.Observer
func (m *Metrics) ObserveRecorderFailure() {
	m.RecorderFailures.Inc()
}

// ObserveSecurityEvent implements audit.Observer
func (m *Metrics) ObserveSecurityEvent(level string) {
	m.SecurityEvents.WithLabelValues(level).Inc()
}

// RecordCollectedCookie counts a collector hit
func (m *Metrics) RecordCollectedCookie() {
	m.CollectedCookies.Inc()
}

// RecordAdminView counts an admin panel view
func (m *Metrics) RecordAdminView(panel string) {
	m.AdminViews.WithLabelValues(panel).Inc()
}

// RecordEmulation counts a payload dry-run
func (m *Metrics) RecordEmulation(outcome string) {
	m.Emulations.WithLabelValues(outcome).Inc()
}

// RecordRequest records a completed HTTP request
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware records request count, duration and in-flight requests. The
// route label is the matched mux pattern, so raw query strings never
// become label values.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.RecordRequest(r.Method, route, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
