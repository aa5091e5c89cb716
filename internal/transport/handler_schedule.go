package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/quill/model"
)

type createScheduleRequest struct {
	ScheduledDate time.Time `json:"scheduled_date"`
	Volume        int       `json:"volume"`
	Issue         int       `json:"issue"`
}

// HandleCreateSchedule handles POST /api/submissions/{submissionID}/schedule.
func (h *Handlers) HandleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid JSON body"))
		return
	}
	if req.ScheduledDate.IsZero() {
		WriteValidationError(w, []model.FieldError{
			{Field: "scheduled_date", Code: "required", Message: "scheduled_date must be set"},
		})
		return
	}

	sched, err := h.engine.CreateSchedule(r.Context(), rctx,
		chi.URLParam(r, "submissionID"), req.ScheduledDate, req.Volume, req.Issue)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, sched)
}

// HandleGetScheduleForSubmission handles GET /api/submissions/{submissionID}/schedule.
func (h *Handlers) HandleGetScheduleForSubmission(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	sched, err := h.engine.GetScheduleForSubmission(r.Context(), rctx, chi.URLParam(r, "submissionID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sched)
}

// HandleGetSchedule handles GET /api/schedules/{scheduleID}.
func (h *Handlers) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	sched, err := h.engine.GetSchedule(r.Context(), rctx, chi.URLParam(r, "scheduleID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sched)
}

// HandlePublishNow handles POST /api/schedules/{scheduleID}/publish.
func (h *Handlers) HandlePublishNow(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	sched, err := h.engine.PublishNow(r.Context(), rctx, chi.URLParam(r, "scheduleID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sched)
}

// HandleCancelSchedule handles POST /api/schedules/{scheduleID}/cancel.
func (h *Handlers) HandleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid JSON body"))
		return
	}

	sched, err := h.engine.CancelSchedule(r.Context(), rctx, chi.URLParam(r, "scheduleID"), req.Reason)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sched)
}
