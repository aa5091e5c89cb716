package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/quill/internal/editorial"
	"github.com/pitabwire/quill/model"
)

// Handlers holds the HTTP handlers backed by the editorial engine.
type Handlers struct {
	engine *editorial.Engine
}

// NewHandlers creates the handler set.
func NewHandlers(engine *editorial.Engine) *Handlers {
	return &Handlers{engine: engine}
}

type createSubmissionRequest struct {
	Title string `json:"title"`
}

// HandleCreateSubmission handles POST /api/submissions.
func (h *Handlers) HandleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	var req createSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid JSON body"))
		return
	}

	sub, err := h.engine.CreateSubmission(r.Context(), rctx, req.Title)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, sub)
}

// HandleGetSubmission handles GET /api/submissions/{submissionID}.
func (h *Handlers) HandleGetSubmission(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	sub, err := h.engine.GetSubmission(r.Context(), rctx, chi.URLParam(r, "submissionID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sub)
}

// HandleListSubmissions handles GET /api/submissions.
func (h *Handlers) HandleListSubmissions(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	filters := editorial.SubmissionFilters{
		Status:   model.SubmissionStatus(r.URL.Query().Get("status")),
		AuthorID: r.URL.Query().Get("author_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters.Offset = n
		}
	}

	summaries, err := h.engine.ListSubmissions(r.Context(), rctx, filters)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"submissions": summaries})
}

// HandleSubmitForReview handles POST /api/submissions/{submissionID}/submit.
func (h *Handlers) HandleSubmitForReview(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	sub, err := h.engine.SubmitForReview(r.Context(), rctx, chi.URLParam(r, "submissionID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sub)
}

// HandleSubmissionHistory handles GET /api/submissions/{submissionID}/history.
func (h *Handlers) HandleSubmissionHistory(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	events, err := h.engine.History(r.Context(), rctx, chi.URLParam(r, "submissionID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
