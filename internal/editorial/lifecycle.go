package editorial

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/quill/model"
)

// CreateSubmission registers a new draft manuscript owned by the actor.
func (e *Engine) CreateSubmission(ctx context.Context, rctx *model.RequestContext, title string) (model.Submission, error) {
	if err := e.requireCapability(rctx, "submission:create"); err != nil {
		return model.Submission{}, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return model.Submission{}, model.NewValidationError([]model.FieldError{
			{Field: "title", Code: "required", Message: "title must not be empty"},
		})
	}

	now := e.now()
	sub := model.Submission{
		ID:        uuid.New().String(),
		JournalID: rctx.JournalID,
		Title:     title,
		AuthorID:  rctx.SubjectID,
		Status:    model.StatusDraft,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.store.CreateSubmission(ctx, sub); err != nil {
		return model.Submission{}, err
	}

	e.logger.Info("submission created",
		zap.String("submission_id", sub.ID),
		zap.String("journal_id", sub.JournalID),
		zap.String("author_id", sub.AuthorID),
	)
	return sub, nil
}

// GetSubmission retrieves a submission by ID.
func (e *Engine) GetSubmission(ctx context.Context, rctx *model.RequestContext, submissionID string) (model.Submission, error) {
	return e.store.GetSubmission(ctx, rctx.JournalID, submissionID)
}

// ListSubmissions returns submissions for the actor's journal, newest first.
func (e *Engine) ListSubmissions(ctx context.Context, rctx *model.RequestContext, filters SubmissionFilters) ([]model.SubmissionSummary, error) {
	subs, err := e.store.ListSubmissions(ctx, rctx.JournalID, filters)
	if err != nil {
		return nil, err
	}

	summaries := make([]model.SubmissionSummary, 0, len(subs))
	for _, sub := range subs {
		summaries = append(summaries, model.SubmissionSummary{
			ID:          sub.ID,
			Title:       sub.Title,
			AuthorID:    sub.AuthorID,
			Status:      sub.Status,
			ReviewRound: sub.ReviewRound,
			CreatedAt:   sub.CreatedAt,
			UpdatedAt:   sub.UpdatedAt,
		})
	}
	return summaries, nil
}

// SubmitForReview moves a draft (or revision) into the submitted state.
// The submission must carry at least one draft artifact. Resubmission after
// a revision request opens a new review round.
func (e *Engine) SubmitForReview(ctx context.Context, rctx *model.RequestContext, submissionID string) (model.Submission, error) {
	if err := e.requireCapability(rctx, "submission:submit", "stage:manage"); err != nil {
		return model.Submission{}, err
	}

	unlock := e.lockSubmission(submissionID)
	defer unlock()

	sub, err := e.store.GetSubmission(ctx, rctx.JournalID, submissionID)
	if err != nil {
		return model.Submission{}, err
	}

	if sub.AuthorID != rctx.SubjectID && !e.hasCapability(rctx, "stage:manage") {
		return model.Submission{}, model.NewForbiddenError(
			fmt.Sprintf("only the author may submit submission %q", submissionID),
		)
	}

	if sub.Status.Terminal() {
		return model.Submission{}, model.NewImmutableStateError(
			fmt.Sprintf("submission %q is %s and cannot be changed", submissionID, sub.Status),
			string(sub.Status),
		)
	}

	switch sub.Status {
	case model.StatusDraft, model.StatusRevisionRequired:
	default:
		return model.Submission{}, model.NewInvalidTransitionError(
			fmt.Sprintf("submission %q cannot be submitted from %s", submissionID, sub.Status),
			string(sub.Status),
			string(model.StatusDraft),
		)
	}

	if _, err := e.store.LatestArtifact(ctx, rctx.JournalID, submissionID, model.TagDraft); err != nil {
		if env, ok := err.(*model.ErrorEnvelope); ok && env.Code == model.ErrNotFound {
			return model.Submission{}, model.NewPreconditionFailedError(
				"a draft document must be uploaded before submitting",
			)
		}
		return model.Submission{}, err
	}

	from := sub.Status
	sub.ReviewRound++
	sub.Status = model.StatusSubmitted
	if err := e.store.UpdateSubmission(ctx, sub); err != nil {
		return model.Submission{}, err
	}

	if err := e.emit(ctx, model.Event{
		JournalID:    sub.JournalID,
		SubmissionID: sub.ID,
		Type:         model.EventSubmissionAdvanced,
		ActorID:      rctx.SubjectID,
		Data: map[string]any{
			"from":         string(from),
			"to":           string(model.StatusSubmitted),
			"review_round": sub.ReviewRound,
		},
	}); err != nil {
		return model.Submission{}, err
	}

	// Reflect the store's version bump in the returned record.
	return e.store.GetSubmission(ctx, rctx.JournalID, submissionID)
}
