package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/quill/internal/editorial"
	"github.com/pitabwire/quill/model"
)

type assignStageRequest struct {
	Stage      string     `json:"stage"`
	AssigneeID string     `json:"assignee_id"`
	DueDate    *time.Time `json:"due_date,omitempty"`
}

// HandleAssignStage handles POST /api/submissions/{submissionID}/assignments.
func (h *Handlers) HandleAssignStage(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	var req assignStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid JSON body"))
		return
	}

	asgn, err := h.engine.AssignStage(r.Context(), rctx,
		chi.URLParam(r, "submissionID"), model.StageType(req.Stage), req.AssigneeID, req.DueDate)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, asgn)
}

// HandleListAssignments handles GET /api/submissions/{submissionID}/assignments.
func (h *Handlers) HandleListAssignments(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	filters := editorial.AssignmentFilters{
		Stage:      model.StageType(r.URL.Query().Get("stage")),
		AssigneeID: r.URL.Query().Get("assignee_id"),
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}

	asgns, err := h.engine.ListAssignments(r.Context(), rctx, chi.URLParam(r, "submissionID"), filters)
	if err != nil {
		WriteError(w, err)
		return
	}

	// Overdue is derived per response, never stored.
	now := time.Now().UTC()
	type assignmentView struct {
		model.Assignment
		Overdue bool `json:"overdue"`
	}
	views := make([]assignmentView, 0, len(asgns))
	for _, asgn := range asgns {
		views = append(views, assignmentView{Assignment: asgn, Overdue: asgn.IsOverdue(now)})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"assignments": views})
}

// HandleGetAssignment handles GET /api/assignments/{assignmentID}.
func (h *Handlers) HandleGetAssignment(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	asgn, err := h.engine.GetAssignment(r.Context(), rctx, chi.URLParam(r, "assignmentID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, asgn)
}

type respondRequest struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason,omitempty"`
}

// HandleRespondAssignment handles POST /api/assignments/{assignmentID}/respond.
func (h *Handlers) HandleRespondAssignment(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid JSON body"))
		return
	}

	asgn, err := h.engine.RespondAssignment(r.Context(), rctx, chi.URLParam(r, "assignmentID"), req.Accept, req.Reason)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, asgn)
}

// HandleStartAssignment handles POST /api/assignments/{assignmentID}/start.
func (h *Handlers) HandleStartAssignment(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	asgn, err := h.engine.StartAssignment(r.Context(), rctx, chi.URLParam(r, "assignmentID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, asgn)
}

type completeRequest struct {
	Recommendation string `json:"recommendation,omitempty"`
	Comment        string `json:"comment,omitempty"`
	OverrideNote   string `json:"override_note,omitempty"`
}

// HandleCompleteAssignment handles POST /api/assignments/{assignmentID}/complete.
// The completion contract differs per stage: review carries a recommendation,
// copyediting may carry an override note, production carries nothing.
func (h *Handlers) HandleCompleteAssignment(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())
	assignmentID := chi.URLParam(r, "assignmentID")

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid JSON body"))
		return
	}

	asgn, err := h.engine.GetAssignment(r.Context(), rctx, assignmentID)
	if err != nil {
		WriteError(w, err)
		return
	}

	switch asgn.Stage {
	case model.StageReview:
		asgn, err = h.engine.CompleteReview(r.Context(), rctx, assignmentID, req.Recommendation, req.Comment)
	case model.StageCopyediting:
		asgn, err = h.engine.CompleteCopyediting(r.Context(), rctx, assignmentID, req.OverrideNote)
	case model.StageProduction:
		asgn, err = h.engine.CompleteProduction(r.Context(), rctx, assignmentID)
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, asgn)
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// HandleCancelAssignment handles POST /api/assignments/{assignmentID}/cancel.
func (h *Handlers) HandleCancelAssignment(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid JSON body"))
		return
	}

	asgn, err := h.engine.CancelAssignment(r.Context(), rctx, chi.URLParam(r, "assignmentID"), req.Reason)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, asgn)
}
