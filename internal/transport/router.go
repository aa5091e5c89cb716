package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/quill/internal/config"
	"github.com/pitabwire/quill/internal/observability"
	"github.com/pitabwire/quill/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config             *config.Config
	Handlers           *Handlers
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver
	Metrics            *observability.Metrics
	ReadinessChecks    observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes that bypass authentication.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.ReadinessChecks))
	if deps.Config.Observability.Metrics.Enabled {
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	// Authenticated routes get the full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	h := deps.Handlers
	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext)
		r.Use(ResolveCapabilities(deps.CapabilityResolver))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)
		r.Use(observability.TracingMiddleware)
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Route("/api/submissions", func(r chi.Router) {
			r.Post("/", h.HandleCreateSubmission)
			r.Get("/", h.HandleListSubmissions)

			r.Route("/{submissionID}", func(r chi.Router) {
				r.Get("/", h.HandleGetSubmission)
				r.Post("/submit", h.HandleSubmitForReview)
				r.Get("/history", h.HandleSubmissionHistory)

				r.Post("/assignments", h.HandleAssignStage)
				r.Get("/assignments", h.HandleListAssignments)

				r.Post("/drafts", h.HandleUploadDraft)
				r.Get("/artifacts", h.HandleListArtifacts)
				r.Post("/documents/{roleTag}", h.HandleSaveDocument)
				r.Get("/documents/{roleTag}", h.HandleLoadDocument)

				r.Post("/schedule", h.HandleCreateSchedule)
				r.Get("/schedule", h.HandleGetScheduleForSubmission)
			})
		})

		r.Route("/api/assignments/{assignmentID}", func(r chi.Router) {
			r.Get("/", h.HandleGetAssignment)
			r.Post("/respond", h.HandleRespondAssignment)
			r.Post("/start", h.HandleStartAssignment)
			r.Post("/complete", h.HandleCompleteAssignment)
			r.Post("/cancel", h.HandleCancelAssignment)
		})

		r.Post("/api/artifacts/{artifactID}/approve", h.HandleApproveArtifact)

		r.Route("/api/schedules/{scheduleID}", func(r chi.Router) {
			r.Get("/", h.HandleGetSchedule)
			r.Post("/publish", h.HandlePublishNow)
			r.Post("/cancel", h.HandleCancelSchedule)
		})
	})

	return r
}
