package editorial

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/quill/model"
)

// assignableFrom maps each stage to the submission statuses in which a new
// assignment may be opened. Opening a stage out of order is rejected with
// INVALID_STAGE_ORDER.
var assignableFrom = map[model.StageType][]model.SubmissionStatus{
	model.StageReview:      {model.StatusSubmitted, model.StatusUnderReview},
	model.StageCopyediting: {model.StatusAccepted},
	model.StageProduction:  {model.StatusInProduction},
}

// AssignStage invites a role-holder to a stage. At most one non-terminal
// assignment may exist per (submission, stage); the first review assignment
// moves the submission from submitted to under_review.
func (e *Engine) AssignStage(ctx context.Context, rctx *model.RequestContext, submissionID string, stage model.StageType, assigneeID string, dueDate *time.Time) (model.Assignment, error) {
	allowed, ok := assignableFrom[stage]
	if !ok {
		return model.Assignment{}, model.NewValidationError([]model.FieldError{
			{Field: "stage", Code: "invalid", Message: fmt.Sprintf("unknown stage %q", stage)},
		})
	}
	if assigneeID == "" {
		return model.Assignment{}, model.NewValidationError([]model.FieldError{
			{Field: "assignee_id", Code: "required", Message: "assignee_id must not be empty"},
		})
	}

	if err := e.requireCapability(rctx, string(stage)+":assign", "stage:manage"); err != nil {
		return model.Assignment{}, err
	}

	unlock := e.lockSubmission(submissionID)
	defer unlock()

	sub, err := e.store.GetSubmission(ctx, rctx.JournalID, submissionID)
	if err != nil {
		return model.Assignment{}, err
	}

	if sub.Status.Terminal() {
		return model.Assignment{}, model.NewImmutableStateError(
			fmt.Sprintf("submission %q is %s and cannot be changed", submissionID, sub.Status),
			string(sub.Status),
		)
	}
	if !statusIn(sub.Status, allowed) {
		return model.Assignment{}, model.NewInvalidStageOrderError(
			fmt.Sprintf("submission %q is %s; the %s stage is not open", submissionID, sub.Status, stage),
			string(sub.Status),
			string(allowed[0]),
		)
	}

	active, err := e.store.FindAssignments(ctx, rctx.JournalID, submissionID, AssignmentFilters{
		Stage:      stage,
		ActiveOnly: true,
	})
	if err != nil {
		return model.Assignment{}, err
	}
	if len(active) > 0 {
		return model.Assignment{}, model.NewDuplicateActiveAssignmentError(
			fmt.Sprintf("submission %q already has an active %s assignment (%s)", submissionID, stage, active[0].ID),
		)
	}

	now := e.now()
	asgn := model.Assignment{
		ID:           uuid.New().String(),
		SubmissionID: submissionID,
		JournalID:    rctx.JournalID,
		Stage:        stage,
		AssigneeID:   assigneeID,
		AssignerID:   rctx.SubjectID,
		Status:       model.AssignmentPending,
		InvitedAt:    now,
		DueDate:      dueDate,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := e.store.CreateAssignment(ctx, asgn); err != nil {
		return model.Assignment{}, err
	}

	if err := e.emit(ctx, model.Event{
		JournalID:    asgn.JournalID,
		SubmissionID: submissionID,
		AssignmentID: asgn.ID,
		Type:         model.EventAssignmentCreated,
		ActorID:      rctx.SubjectID,
		Data: map[string]any{
			"stage":       string(stage),
			"assignee_id": assigneeID,
		},
	}); err != nil {
		return model.Assignment{}, err
	}

	// The first review invitation opens the review stage.
	if stage == model.StageReview && sub.Status == model.StatusSubmitted {
		if err := e.advanceSubmission(ctx, rctx, sub, model.StatusUnderReview); err != nil {
			return model.Assignment{}, err
		}
	}

	return asgn, nil
}

// RespondAssignment records the assignee's accept or decline of a pending
// invitation. Accepting a review assignment starts the work immediately;
// copyediting and production are started explicitly via StartAssignment.
func (e *Engine) RespondAssignment(ctx context.Context, rctx *model.RequestContext, assignmentID string, accept bool, reason string) (model.Assignment, error) {
	asgn, err := e.store.GetAssignment(ctx, rctx.JournalID, assignmentID)
	if err != nil {
		return model.Assignment{}, err
	}

	if asgn.AssigneeID != rctx.SubjectID {
		return model.Assignment{}, model.NewForbiddenError(
			fmt.Sprintf("only the assignee may respond to assignment %q", assignmentID),
		)
	}
	if err := e.requireCapability(rctx, string(asgn.Stage)+":respond"); err != nil {
		return model.Assignment{}, err
	}

	unlock := e.lockSubmission(asgn.SubmissionID)
	defer unlock()

	// Reload under the lock.
	asgn, err = e.store.GetAssignment(ctx, rctx.JournalID, assignmentID)
	if err != nil {
		return model.Assignment{}, err
	}

	if asgn.Status != model.AssignmentPending {
		return model.Assignment{}, invalidAssignmentTransition(asgn, model.AssignmentPending)
	}
	if asgn.AssignedAt != nil {
		return model.Assignment{}, model.NewInvalidTransitionError(
			fmt.Sprintf("assignment %q has already been accepted", assignmentID),
			string(asgn.Status),
			string(model.AssignmentPending),
		)
	}

	now := e.now()
	eventType := model.EventAssignmentAccepted
	if accept {
		asgn.AssignedAt = &now
		if asgn.Stage == model.StageReview {
			asgn.Status = model.AssignmentInProgress
		}
	} else {
		asgn.Status = model.AssignmentDeclined
		asgn.Reason = reason
		eventType = model.EventAssignmentDeclined
	}

	if err := e.store.UpdateAssignment(ctx, asgn); err != nil {
		return model.Assignment{}, err
	}

	if err := e.emit(ctx, model.Event{
		JournalID:    asgn.JournalID,
		SubmissionID: asgn.SubmissionID,
		AssignmentID: asgn.ID,
		Type:         eventType,
		ActorID:      rctx.SubjectID,
		Data:         map[string]any{"stage": string(asgn.Stage)},
		Comment:      reason,
	}); err != nil {
		return model.Assignment{}, err
	}

	return e.store.GetAssignment(ctx, rctx.JournalID, assignmentID)
}

// StartAssignment moves an accepted copyediting or production assignment
// into progress. Review work starts on acceptance and is rejected here.
func (e *Engine) StartAssignment(ctx context.Context, rctx *model.RequestContext, assignmentID string) (model.Assignment, error) {
	asgn, err := e.store.GetAssignment(ctx, rctx.JournalID, assignmentID)
	if err != nil {
		return model.Assignment{}, err
	}

	if asgn.Stage == model.StageReview {
		return model.Assignment{}, model.NewInvalidTransitionError(
			fmt.Sprintf("review assignment %q starts on acceptance", assignmentID),
			string(asgn.Status),
			string(model.AssignmentInProgress),
		)
	}
	if asgn.AssigneeID != rctx.SubjectID && !e.hasCapability(rctx, "stage:manage") {
		return model.Assignment{}, model.NewForbiddenError(
			fmt.Sprintf("only the assignee may start assignment %q", assignmentID),
		)
	}
	if asgn.AssigneeID == rctx.SubjectID {
		if err := e.requireCapability(rctx, string(asgn.Stage)+":respond", "stage:manage"); err != nil {
			return model.Assignment{}, err
		}
	}

	unlock := e.lockSubmission(asgn.SubmissionID)
	defer unlock()

	asgn, err = e.store.GetAssignment(ctx, rctx.JournalID, assignmentID)
	if err != nil {
		return model.Assignment{}, err
	}

	if asgn.Status != model.AssignmentPending {
		return model.Assignment{}, invalidAssignmentTransition(asgn, model.AssignmentPending)
	}
	if asgn.AssignedAt == nil {
		return model.Assignment{}, model.NewInvalidTransitionError(
			fmt.Sprintf("assignment %q must be accepted before it is started", assignmentID),
			string(asgn.Status),
			"accepted",
		)
	}

	asgn.Status = model.AssignmentInProgress
	if err := e.store.UpdateAssignment(ctx, asgn); err != nil {
		return model.Assignment{}, err
	}

	if err := e.emit(ctx, model.Event{
		JournalID:    asgn.JournalID,
		SubmissionID: asgn.SubmissionID,
		AssignmentID: asgn.ID,
		Type:         model.EventAssignmentStarted,
		ActorID:      rctx.SubjectID,
		Data:         map[string]any{"stage": string(asgn.Stage)},
	}); err != nil {
		return model.Assignment{}, err
	}

	return e.store.GetAssignment(ctx, rctx.JournalID, assignmentID)
}

// CompleteReview closes an in-progress review assignment with a
// recommendation and routes the submission accordingly: accept moves it to
// accepted, revise to revision_required, reject to the terminal rejected
// state.
func (e *Engine) CompleteReview(ctx context.Context, rctx *model.RequestContext, assignmentID, recommendation, comment string) (model.Assignment, error) {
	switch recommendation {
	case model.RecommendationAccept, model.RecommendationRevise, model.RecommendationReject:
	default:
		return model.Assignment{}, model.NewValidationError([]model.FieldError{
			{Field: "recommendation", Code: "invalid", Message: fmt.Sprintf("unknown recommendation %q", recommendation)},
		})
	}

	var next model.SubmissionStatus
	switch recommendation {
	case model.RecommendationAccept:
		next = model.StatusAccepted
	case model.RecommendationRevise:
		next = model.StatusRevisionRequired
	case model.RecommendationReject:
		next = model.StatusRejected
	}

	return e.completeAssignment(ctx, rctx, assignmentID, model.StageReview,
		func(asgn *model.Assignment) error {
			asgn.Recommendation = recommendation
			asgn.CompletionNote = comment
			return nil
		},
		func(asgn model.Assignment) error {
			sub, err := e.store.GetSubmission(ctx, rctx.JournalID, asgn.SubmissionID)
			if err != nil {
				return err
			}
			return e.advanceSubmission(ctx, rctx, sub, next)
		})
}

// CompleteCopyediting closes an in-progress copyediting assignment. It
// requires an author-confirmed final version, or an explicit override note
// from the editor, then freezes the copyediting artifact set and moves the
// submission into production.
func (e *Engine) CompleteCopyediting(ctx context.Context, rctx *model.RequestContext, assignmentID, overrideNote string) (model.Assignment, error) {
	return e.completeAssignment(ctx, rctx, assignmentID, model.StageCopyediting,
		func(asgn *model.Assignment) error {
			_, err := e.store.LatestArtifact(ctx, rctx.JournalID, asgn.SubmissionID, model.TagAuthorFinal)
			if err != nil {
				if env, ok := err.(*model.ErrorEnvelope); ok && env.Code == model.ErrNotFound {
					if overrideNote == "" {
						return model.NewPreconditionFailedError(
							"copyediting requires an author-confirmed version or an override note",
						)
					}
					asgn.CompletionNote = overrideNote
					return nil
				}
				return err
			}
			asgn.CompletionNote = overrideNote
			return nil
		},
		func(asgn model.Assignment) error {
			// Freeze the copyediting artifact set: these versions are now
			// the final files that production works from.
			if err := e.freezeArtifacts(ctx, rctx, asgn.SubmissionID,
				model.TagDraft, model.TagCopyedited, model.TagAuthorFinal); err != nil {
				return err
			}

			sub, err := e.store.GetSubmission(ctx, rctx.JournalID, asgn.SubmissionID)
			if err != nil {
				return err
			}
			return e.advanceSubmission(ctx, rctx, sub, model.StatusInProduction)
		})
}

// CompleteProduction closes an in-progress production assignment. At least
// one production galley must exist. The submission stays in_production until
// it is scheduled.
func (e *Engine) CompleteProduction(ctx context.Context, rctx *model.RequestContext, assignmentID string) (model.Assignment, error) {
	return e.completeAssignment(ctx, rctx, assignmentID, model.StageProduction,
		func(asgn *model.Assignment) error {
			_, err := e.store.LatestArtifact(ctx, rctx.JournalID, asgn.SubmissionID, model.TagProductionGalley)
			if err != nil {
				if env, ok := err.(*model.ErrorEnvelope); ok && env.Code == model.ErrNotFound {
					return model.NewPreconditionFailedError(
						"production requires at least one galley before completion",
					)
				}
				return err
			}
			return nil
		},
		nil)
}

// CancelAssignment terminates a pending or in-progress assignment. Requires
// the stage management capability.
func (e *Engine) CancelAssignment(ctx context.Context, rctx *model.RequestContext, assignmentID, reason string) (model.Assignment, error) {
	if err := e.requireCapability(rctx, "stage:manage"); err != nil {
		return model.Assignment{}, err
	}

	asgn, err := e.store.GetAssignment(ctx, rctx.JournalID, assignmentID)
	if err != nil {
		return model.Assignment{}, err
	}

	unlock := e.lockSubmission(asgn.SubmissionID)
	defer unlock()

	asgn, err = e.store.GetAssignment(ctx, rctx.JournalID, assignmentID)
	if err != nil {
		return model.Assignment{}, err
	}

	if asgn.Status.Terminal() {
		return model.Assignment{}, model.NewImmutableStateError(
			fmt.Sprintf("assignment %q is %s and cannot be cancelled", assignmentID, asgn.Status),
			string(asgn.Status),
		)
	}

	asgn.Status = model.AssignmentCancelled
	asgn.Reason = reason
	if err := e.store.UpdateAssignment(ctx, asgn); err != nil {
		return model.Assignment{}, err
	}

	if err := e.emit(ctx, model.Event{
		JournalID:    asgn.JournalID,
		SubmissionID: asgn.SubmissionID,
		AssignmentID: asgn.ID,
		Type:         model.EventAssignmentCancelled,
		ActorID:      rctx.SubjectID,
		Data:         map[string]any{"stage": string(asgn.Stage)},
		Comment:      reason,
	}); err != nil {
		return model.Assignment{}, err
	}

	return e.store.GetAssignment(ctx, rctx.JournalID, assignmentID)
}

// GetAssignment retrieves an assignment by ID.
func (e *Engine) GetAssignment(ctx context.Context, rctx *model.RequestContext, assignmentID string) (model.Assignment, error) {
	return e.store.GetAssignment(ctx, rctx.JournalID, assignmentID)
}

// ListAssignments returns a submission's assignments, oldest first.
func (e *Engine) ListAssignments(ctx context.Context, rctx *model.RequestContext, submissionID string, filters AssignmentFilters) ([]model.Assignment, error) {
	return e.store.FindAssignments(ctx, rctx.JournalID, submissionID, filters)
}

// completeAssignment is the shared completion path: authorization, the
// in-progress guard, a stage-specific precondition check, the terminal write,
// and the lifecycle routing. Completion and routing run under a single lock
// acquisition; if routing fails the assignment is restored to in progress so
// the completion can be retried.
func (e *Engine) completeAssignment(ctx context.Context, rctx *model.RequestContext, assignmentID string, stage model.StageType, precondition func(*model.Assignment) error, route func(model.Assignment) error) (model.Assignment, error) {
	asgn, err := e.store.GetAssignment(ctx, rctx.JournalID, assignmentID)
	if err != nil {
		return model.Assignment{}, err
	}

	if asgn.Stage != stage {
		return model.Assignment{}, model.NewValidationError([]model.FieldError{
			{Field: "assignment_id", Code: "wrong_stage", Message: fmt.Sprintf("assignment %q is a %s assignment", assignmentID, asgn.Stage)},
		})
	}
	if asgn.AssigneeID != rctx.SubjectID && !e.hasCapability(rctx, "stage:manage") {
		return model.Assignment{}, model.NewForbiddenError(
			fmt.Sprintf("only the assignee may complete assignment %q", assignmentID),
		)
	}
	if asgn.AssigneeID == rctx.SubjectID {
		if err := e.requireCapability(rctx, string(stage)+":complete", "stage:manage"); err != nil {
			return model.Assignment{}, err
		}
	}

	unlock := e.lockSubmission(asgn.SubmissionID)
	defer unlock()

	asgn, err = e.store.GetAssignment(ctx, rctx.JournalID, assignmentID)
	if err != nil {
		return model.Assignment{}, err
	}

	if asgn.Status != model.AssignmentInProgress {
		return model.Assignment{}, invalidAssignmentTransition(asgn, model.AssignmentInProgress)
	}

	if precondition != nil {
		if err := precondition(&asgn); err != nil {
			return model.Assignment{}, err
		}
	}

	now := e.now()
	asgn.Status = model.AssignmentCompleted
	asgn.CompletedAt = &now
	if err := e.store.UpdateAssignment(ctx, asgn); err != nil {
		return model.Assignment{}, err
	}

	if route != nil {
		if rerr := route(asgn); rerr != nil {
			// Restore the in-progress assignment so completion can be
			// retried.
			if cur, err := e.store.GetAssignment(ctx, rctx.JournalID, assignmentID); err == nil {
				cur.Status = model.AssignmentInProgress
				cur.CompletedAt = nil
				cur.Recommendation = ""
				cur.CompletionNote = ""
				if err := e.store.UpdateAssignment(ctx, cur); err != nil {
					e.logger.Error("failed to restore assignment after routing failure",
						zap.String("assignment_id", assignmentID),
						zap.Error(err),
					)
				}
			}
			return model.Assignment{}, rerr
		}
	}

	e.logger.Info("stage completed",
		zap.String("submission_id", asgn.SubmissionID),
		zap.String("assignment_id", asgn.ID),
		zap.String("stage", string(stage)),
	)

	if err := e.emit(ctx, model.Event{
		JournalID:    asgn.JournalID,
		SubmissionID: asgn.SubmissionID,
		AssignmentID: asgn.ID,
		Type:         model.EventStageCompleted,
		ActorID:      rctx.SubjectID,
		Data: map[string]any{
			"stage":          string(stage),
			"recommendation": asgn.Recommendation,
		},
	}); err != nil {
		return model.Assignment{}, err
	}

	return e.store.GetAssignment(ctx, rctx.JournalID, assignmentID)
}

// freezeArtifacts marks all versions of the given tags read-only. The caller
// holds the submission lock.
func (e *Engine) freezeArtifacts(ctx context.Context, rctx *model.RequestContext, submissionID string, tags ...model.RoleTag) error {
	for _, tag := range tags {
		arts, err := e.store.FindArtifacts(ctx, rctx.JournalID, submissionID, ArtifactFilters{RoleTag: tag})
		if err != nil {
			return err
		}
		for _, art := range arts {
			if art.Frozen {
				continue
			}
			art.Frozen = true
			if err := e.store.UpdateArtifact(ctx, art); err != nil {
				return err
			}
		}
	}
	return nil
}

func invalidAssignmentTransition(asgn model.Assignment, required model.AssignmentStatus) error {
	if asgn.Status.Terminal() {
		return model.NewImmutableStateError(
			fmt.Sprintf("assignment %q is %s and cannot be changed", asgn.ID, asgn.Status),
			string(asgn.Status),
		)
	}
	return model.NewInvalidTransitionError(
		fmt.Sprintf("assignment %q is %s", asgn.ID, asgn.Status),
		string(asgn.Status),
		string(required),
	)
}

func statusIn(status model.SubmissionStatus, set []model.SubmissionStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
