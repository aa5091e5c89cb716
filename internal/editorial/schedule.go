package editorial

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/quill/model"
)

// CreateSchedule places a submission with completed production output on the
// publication calendar and moves it to scheduled.
func (e *Engine) CreateSchedule(ctx context.Context, rctx *model.RequestContext, submissionID string, scheduledDate time.Time, volume, issue int) (model.PublicationSchedule, error) {
	if err := e.requireCapability(rctx, "schedule:create"); err != nil {
		return model.PublicationSchedule{}, err
	}

	unlock := e.lockSubmission(submissionID)
	defer unlock()

	sub, err := e.store.GetSubmission(ctx, rctx.JournalID, submissionID)
	if err != nil {
		return model.PublicationSchedule{}, err
	}

	if sub.Status.Terminal() {
		return model.PublicationSchedule{}, model.NewImmutableStateError(
			fmt.Sprintf("submission %q is %s and cannot be changed", submissionID, sub.Status),
			string(sub.Status),
		)
	}
	if sub.Status != model.StatusInProduction {
		return model.PublicationSchedule{}, model.NewInvalidStageOrderError(
			fmt.Sprintf("submission %q is %s; scheduling requires completed production", submissionID, sub.Status),
			string(sub.Status),
			string(model.StatusInProduction),
		)
	}

	if err := e.requireCompletedProduction(ctx, rctx, submissionID); err != nil {
		return model.PublicationSchedule{}, err
	}

	now := e.now()
	sched := model.PublicationSchedule{
		ID:            uuid.New().String(),
		SubmissionID:  submissionID,
		JournalID:     rctx.JournalID,
		Status:        model.ScheduleScheduled,
		ScheduledDate: scheduledDate,
		Volume:        volume,
		Issue:         issue,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := e.store.CreateSchedule(ctx, sched); err != nil {
		return model.PublicationSchedule{}, err
	}

	if err := e.advanceSubmission(ctx, rctx, sub, model.StatusScheduled); err != nil {
		return model.PublicationSchedule{}, err
	}

	return sched, nil
}

// PublishNow publishes a scheduled submission immediately. Publishing is
// idempotent: a schedule that is already published is returned unchanged. A
// DOI is minted from the configured prefix when the schedule carries none.
func (e *Engine) PublishNow(ctx context.Context, rctx *model.RequestContext, scheduleID string) (model.PublicationSchedule, error) {
	if err := e.requireCapability(rctx, "schedule:publish"); err != nil {
		return model.PublicationSchedule{}, err
	}

	sched, err := e.store.GetSchedule(ctx, rctx.JournalID, scheduleID)
	if err != nil {
		return model.PublicationSchedule{}, err
	}

	unlock := e.lockSubmission(sched.SubmissionID)
	defer unlock()

	sched, err = e.store.GetSchedule(ctx, rctx.JournalID, scheduleID)
	if err != nil {
		return model.PublicationSchedule{}, err
	}

	if sched.Status == model.SchedulePublished {
		return sched, nil
	}
	if sched.Status != model.ScheduleScheduled {
		return model.PublicationSchedule{}, model.NewInvalidTransitionError(
			fmt.Sprintf("schedule %q is %s and cannot be published", scheduleID, sched.Status),
			string(sched.Status),
			string(model.ScheduleScheduled),
		)
	}

	now := e.now()
	sched.Status = model.SchedulePublished
	sched.PublishedDate = &now
	if sched.DOI == "" {
		sched.DOI = e.mintDOI(sched)
	}

	if err := e.store.UpdateSchedule(ctx, sched); err != nil {
		return model.PublicationSchedule{}, err
	}

	sub, err := e.store.GetSubmission(ctx, rctx.JournalID, sched.SubmissionID)
	if err != nil {
		return model.PublicationSchedule{}, err
	}
	if err := e.advanceSubmission(ctx, rctx, sub, model.StatusPublished); err != nil {
		return model.PublicationSchedule{}, err
	}

	e.logger.Info("submission published",
		zap.String("submission_id", sched.SubmissionID),
		zap.String("schedule_id", sched.ID),
		zap.String("doi", sched.DOI),
	)

	if err := e.emit(ctx, model.Event{
		JournalID:    sched.JournalID,
		SubmissionID: sched.SubmissionID,
		Type:         model.EventPublished,
		ActorID:      rctx.SubjectID,
		Data: map[string]any{
			"schedule_id": sched.ID,
			"doi":         sched.DOI,
			"volume":      sched.Volume,
			"issue":       sched.Issue,
		},
	}); err != nil {
		return model.PublicationSchedule{}, err
	}

	return e.store.GetSchedule(ctx, rctx.JournalID, scheduleID)
}

// CancelSchedule withdraws a scheduled submission from the calendar and
// returns it to production. A published schedule is immutable.
func (e *Engine) CancelSchedule(ctx context.Context, rctx *model.RequestContext, scheduleID, reason string) (model.PublicationSchedule, error) {
	if err := e.requireCapability(rctx, "schedule:cancel"); err != nil {
		return model.PublicationSchedule{}, err
	}

	sched, err := e.store.GetSchedule(ctx, rctx.JournalID, scheduleID)
	if err != nil {
		return model.PublicationSchedule{}, err
	}

	unlock := e.lockSubmission(sched.SubmissionID)
	defer unlock()

	sched, err = e.store.GetSchedule(ctx, rctx.JournalID, scheduleID)
	if err != nil {
		return model.PublicationSchedule{}, err
	}

	if sched.Status == model.SchedulePublished {
		return model.PublicationSchedule{}, model.NewImmutableStateError(
			fmt.Sprintf("schedule %q is published and cannot be cancelled", scheduleID),
			string(sched.Status),
		)
	}
	if sched.Status != model.ScheduleScheduled {
		return model.PublicationSchedule{}, model.NewInvalidTransitionError(
			fmt.Sprintf("schedule %q is %s and cannot be cancelled", scheduleID, sched.Status),
			string(sched.Status),
			string(model.ScheduleScheduled),
		)
	}

	sched.Status = model.ScheduleCancelled
	if err := e.store.UpdateSchedule(ctx, sched); err != nil {
		return model.PublicationSchedule{}, err
	}

	sub, err := e.store.GetSubmission(ctx, rctx.JournalID, sched.SubmissionID)
	if err != nil {
		return model.PublicationSchedule{}, err
	}
	if err := e.advanceSubmission(ctx, rctx, sub, model.StatusInProduction); err != nil {
		return model.PublicationSchedule{}, err
	}

	if reason != "" {
		e.logger.Info("schedule cancelled",
			zap.String("schedule_id", sched.ID),
			zap.String("reason", reason),
		)
	}

	return e.store.GetSchedule(ctx, rctx.JournalID, scheduleID)
}

// GetSchedule retrieves a schedule by ID.
func (e *Engine) GetSchedule(ctx context.Context, rctx *model.RequestContext, scheduleID string) (model.PublicationSchedule, error) {
	return e.store.GetSchedule(ctx, rctx.JournalID, scheduleID)
}

// GetScheduleForSubmission retrieves a submission's newest schedule.
func (e *Engine) GetScheduleForSubmission(ctx context.Context, rctx *model.RequestContext, submissionID string) (model.PublicationSchedule, error) {
	return e.store.GetScheduleBySubmission(ctx, rctx.JournalID, submissionID)
}

// requireCompletedProduction verifies the submission has a completed
// production assignment and no active one.
func (e *Engine) requireCompletedProduction(ctx context.Context, rctx *model.RequestContext, submissionID string) error {
	asgns, err := e.store.FindAssignments(ctx, rctx.JournalID, submissionID, AssignmentFilters{
		Stage: model.StageProduction,
	})
	if err != nil {
		return err
	}

	completed := false
	for _, asgn := range asgns {
		switch asgn.Status {
		case model.AssignmentCompleted:
			completed = true
		case model.AssignmentPending, model.AssignmentInProgress:
			return model.NewPreconditionFailedError(
				fmt.Sprintf("production assignment %q is still %s", asgn.ID, asgn.Status),
			)
		}
	}
	if !completed {
		return model.NewPreconditionFailedError(
			"scheduling requires a completed production assignment",
		)
	}
	return nil
}

// mintDOI derives a DOI from the configured registrant prefix, the issue
// coordinates, and a short submission fragment.
func (e *Engine) mintDOI(sched model.PublicationSchedule) string {
	frag := sched.SubmissionID
	if len(frag) > 8 {
		frag = frag[:8]
	}
	return fmt.Sprintf("%s/quill.v%di%d.%s", e.doiPrefix, sched.Volume, sched.Issue, frag)
}
