package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	opDurationBuckets   = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets     = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the editorial engine.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Lifecycle metrics
	StageTransitionsTotal   *prometheus.CounterVec
	TransitionsRejectedTotal *prometheus.CounterVec
	SubmissionsByStatus     *prometheus.GaugeVec
	PublicationsTotal       prometheus.Counter

	// Assignment metrics
	AssignmentsCreatedTotal   *prometheus.CounterVec
	AssignmentsCompletedTotal *prometheus.CounterVec
	AssignmentDuration        *prometheus.HistogramVec

	// Artifact metrics
	ArtifactSavesTotal       *prometheus.CounterVec
	StaleSaveConflictsTotal  *prometheus.CounterVec
	ArtifactSaveDuration     *prometheus.HistogramVec

	// Cache metrics
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter

	// System metrics
	PolicyReloadTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quill_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quill_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quill_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Lifecycle
		StageTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_stage_transitions_total",
			Help: "Total number of submission lifecycle transitions.",
		}, []string{"from", "to"}),
		TransitionsRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_transitions_rejected_total",
			Help: "Total number of rejected lifecycle transitions.",
		}, []string{"code"}),
		SubmissionsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quill_submissions_by_status",
			Help: "Number of submissions per lifecycle status.",
		}, []string{"status"}),
		PublicationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quill_publications_total",
			Help: "Total number of submissions published.",
		}),

		// Assignments
		AssignmentsCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_assignments_created_total",
			Help: "Total number of assignments created.",
		}, []string{"stage"}),
		AssignmentsCompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_assignments_completed_total",
			Help: "Total number of assignments reaching a terminal state.",
		}, []string{"stage", "final_status"}),
		AssignmentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quill_assignment_duration_seconds",
			Help:    "Time from assignment invitation to terminal state, in seconds.",
			Buckets: []float64{3600, 86400, 259200, 604800, 1209600, 2592000},
		}, []string{"stage"}),

		// Artifacts
		ArtifactSavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_artifact_saves_total",
			Help: "Total number of artifact versions saved.",
		}, []string{"role_tag"}),
		StaleSaveConflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_stale_save_conflicts_total",
			Help: "Total number of artifact saves rejected for a stale base version.",
		}, []string{"role_tag"}),
		ArtifactSaveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quill_artifact_save_duration_seconds",
			Help:    "Artifact save duration in seconds.",
			Buckets: opDurationBuckets,
		}, []string{"role_tag"}),

		// Cache
		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quill_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quill_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),

		// System
		PolicyReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_policy_reload_total",
			Help: "Total capability policy reloads.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Lifecycle
		m.StageTransitionsTotal,
		m.TransitionsRejectedTotal,
		m.SubmissionsByStatus,
		m.PublicationsTotal,
		// Assignments
		m.AssignmentsCreatedTotal,
		m.AssignmentsCompletedTotal,
		m.AssignmentDuration,
		// Artifacts
		m.ArtifactSavesTotal,
		m.StaleSaveConflictsTotal,
		m.ArtifactSaveDuration,
		// Cache
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
		// System
		m.PolicyReloadTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordStageTransition records a submission lifecycle transition.
func (m *Metrics) RecordStageTransition(from, to string) {
	m.StageTransitionsTotal.WithLabelValues(from, to).Inc()
	m.SubmissionsByStatus.WithLabelValues(from).Dec()
	m.SubmissionsByStatus.WithLabelValues(to).Inc()
}

// RecordTransitionRejected records a rejected transition by error code.
func (m *Metrics) RecordTransitionRejected(code string) {
	m.TransitionsRejectedTotal.WithLabelValues(code).Inc()
}

// RecordPublication records a published submission.
func (m *Metrics) RecordPublication() {
	m.PublicationsTotal.Inc()
}

// RecordAssignmentCreated records a new assignment.
func (m *Metrics) RecordAssignmentCreated(stage string) {
	m.AssignmentsCreatedTotal.WithLabelValues(stage).Inc()
}

// RecordAssignmentClosed records an assignment reaching a terminal state.
func (m *Metrics) RecordAssignmentClosed(stage, finalStatus string, lifetime time.Duration) {
	m.AssignmentsCompletedTotal.WithLabelValues(stage, finalStatus).Inc()
	m.AssignmentDuration.WithLabelValues(stage).Observe(lifetime.Seconds())
}

// RecordArtifactSave records an artifact version save.
func (m *Metrics) RecordArtifactSave(roleTag string, duration time.Duration) {
	m.ArtifactSavesTotal.WithLabelValues(roleTag).Inc()
	m.ArtifactSaveDuration.WithLabelValues(roleTag).Observe(duration.Seconds())
}

// RecordStaleSaveConflict records an artifact save rejected for staleness.
func (m *Metrics) RecordStaleSaveConflict(roleTag string) {
	m.StaleSaveConflictsTotal.WithLabelValues(roleTag).Inc()
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	m.CapabilityCacheMissesTotal.Inc()
}

// RecordPolicyReload records a capability policy reload.
func (m *Metrics) RecordPolicyReload(status string) {
	m.PolicyReloadTotal.WithLabelValues(status).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
