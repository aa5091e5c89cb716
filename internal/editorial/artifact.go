package editorial

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/quill/model"
)

// saveCapability maps each role tag to the capability required to save a
// new version under it.
var saveCapability = map[model.RoleTag]string{
	model.TagDraft:            "artifact:upload_draft",
	model.TagCopyedited:       "copyediting:save",
	model.TagAuthorFinal:      "artifact:confirm",
	model.TagProductionGalley: "production:save",
}

// saveStage maps the role tags produced under a stage assignment to that
// stage. Saves for these tags require an in-progress assignment.
var saveStage = map[model.RoleTag]model.StageType{
	model.TagCopyedited:       model.StageCopyediting,
	model.TagProductionGalley: model.StageProduction,
}

// draftUploadStatuses are the submission statuses in which the author may
// append draft versions.
var draftUploadStatuses = []model.SubmissionStatus{
	model.StatusDraft,
	model.StatusSubmitted,
	model.StatusRevisionRequired,
}

// UploadDraft appends a new draft version for the author. Draft uploads are
// append-only: no base version is declared and no conflict is possible.
func (e *Engine) UploadDraft(ctx context.Context, rctx *model.RequestContext, submissionID, fileName string, content []byte, contentType string) (model.Artifact, error) {
	if err := e.requireCapability(rctx, "artifact:upload_draft", "stage:manage"); err != nil {
		return model.Artifact{}, err
	}

	unlock := e.lockSubmission(submissionID)
	defer unlock()

	sub, err := e.store.GetSubmission(ctx, rctx.JournalID, submissionID)
	if err != nil {
		return model.Artifact{}, err
	}

	if sub.AuthorID != rctx.SubjectID && !e.hasCapability(rctx, "stage:manage") {
		return model.Artifact{}, model.NewForbiddenError(
			fmt.Sprintf("only the author may upload drafts for submission %q", submissionID),
		)
	}
	if !statusIn(sub.Status, draftUploadStatuses) {
		return model.Artifact{}, model.NewInvalidTransitionError(
			fmt.Sprintf("submission %q is %s; drafts may not be uploaded", submissionID, sub.Status),
			string(sub.Status),
			string(model.StatusDraft),
		)
	}

	head := 0
	if latest, err := e.store.LatestArtifact(ctx, rctx.JournalID, submissionID, model.TagDraft); err == nil {
		head = latest.Version
	} else if env, ok := err.(*model.ErrorEnvelope); !ok || env.Code != model.ErrNotFound {
		return model.Artifact{}, err
	}

	return e.writeArtifact(ctx, rctx, sub, "", model.TagDraft, head+1, fileName, content, contentType)
}

// SaveDocument persists a new version of a document under a role tag. The
// save declares the version it was based on; if another save landed first
// the base is stale and the write is rejected with STALE_VERSION_CONFLICT.
func (e *Engine) SaveDocument(ctx context.Context, rctx *model.RequestContext, submissionID string, tag model.RoleTag, baseVersion int, assignmentID, fileName string, content []byte, contentType string) (model.Artifact, error) {
	capability, ok := saveCapability[tag]
	if !ok {
		return model.Artifact{}, model.NewValidationError([]model.FieldError{
			{Field: "role_tag", Code: "invalid", Message: fmt.Sprintf("unknown role tag %q", tag)},
		})
	}
	if err := e.requireCapability(rctx, capability, "stage:manage"); err != nil {
		return model.Artifact{}, err
	}

	unlock := e.lockSubmission(submissionID)
	defer unlock()

	sub, err := e.store.GetSubmission(ctx, rctx.JournalID, submissionID)
	if err != nil {
		return model.Artifact{}, err
	}
	if sub.Status.Terminal() {
		return model.Artifact{}, model.NewImmutableStateError(
			fmt.Sprintf("submission %q is %s and cannot be changed", submissionID, sub.Status),
			string(sub.Status),
		)
	}

	// A tag may not appear before its pipeline predecessor exists.
	if pred, ok := tag.Predecessor(); ok {
		if _, err := e.store.LatestArtifact(ctx, rctx.JournalID, submissionID, pred); err != nil {
			if env, ok := err.(*model.ErrorEnvelope); ok && env.Code == model.ErrNotFound {
				return model.Artifact{}, model.NewInvalidStageOrderError(
					fmt.Sprintf("a %s version must exist before %s", pred, tag),
					"missing "+string(pred),
					string(pred),
				)
			}
			return model.Artifact{}, err
		}
	}

	head := 0
	if latest, err := e.store.LatestArtifact(ctx, rctx.JournalID, submissionID, tag); err == nil {
		if latest.Frozen {
			return model.Artifact{}, model.NewImmutableStateError(
				fmt.Sprintf("the %s artifact set for submission %q is frozen", tag, submissionID),
				"frozen",
			)
		}
		head = latest.Version
	} else if env, ok := err.(*model.ErrorEnvelope); !ok || env.Code != model.ErrNotFound {
		return model.Artifact{}, err
	}

	if stage, ok := saveStage[tag]; ok {
		if err := e.requireInProgressAssignment(ctx, rctx.JournalID, submissionID, stage, tag); err != nil {
			return model.Artifact{}, err
		}
	}

	if baseVersion != head {
		if e.metrics != nil {
			e.metrics.RecordStaleSaveConflict(string(tag))
		}
		return model.Artifact{}, model.NewStaleVersionConflictError(baseVersion, head)
	}

	return e.writeArtifact(ctx, rctx, sub, assignmentID, tag, head+1, fileName, content, contentType)
}

// requireInProgressAssignment enforces that stage-bound documents are only
// saved while the stage's assignment is in progress.
func (e *Engine) requireInProgressAssignment(ctx context.Context, journalID, submissionID string, stage model.StageType, tag model.RoleTag) error {
	asgns, err := e.store.FindAssignments(ctx, journalID, submissionID, AssignmentFilters{Stage: stage, ActiveOnly: true})
	if err != nil {
		return err
	}
	for _, asgn := range asgns {
		if asgn.Status == model.AssignmentInProgress {
			return nil
		}
	}
	return model.NewPreconditionFailedError(
		fmt.Sprintf("saving %s versions requires an in-progress %s assignment", tag, stage),
	)
}

// LoadDocument opens an editing session on the latest version of a role tag:
// it returns the handle carrying the base version a subsequent save must
// declare, plus the document bytes.
func (e *Engine) LoadDocument(ctx context.Context, rctx *model.RequestContext, submissionID string, tag model.RoleTag) (model.DocumentHandle, []byte, error) {
	art, err := e.store.LatestArtifact(ctx, rctx.JournalID, submissionID, tag)
	if err != nil {
		return model.DocumentHandle{}, nil, err
	}

	content, err := e.blobs.Fetch(ctx, art.FileRef)
	if err != nil {
		return model.DocumentHandle{}, nil, err
	}

	return model.DocumentHandle{
		ArtifactID:  art.ID,
		FileRef:     art.FileRef,
		BaseVersion: art.Version,
	}, content, nil
}

// ApproveArtifact marks an artifact version editorially approved.
func (e *Engine) ApproveArtifact(ctx context.Context, rctx *model.RequestContext, artifactID string) (model.Artifact, error) {
	if err := e.requireCapability(rctx, "artifact:approve", "stage:manage"); err != nil {
		return model.Artifact{}, err
	}

	art, err := e.store.GetArtifact(ctx, rctx.JournalID, artifactID)
	if err != nil {
		return model.Artifact{}, err
	}

	unlock := e.lockSubmission(art.SubmissionID)
	defer unlock()

	art, err = e.store.GetArtifact(ctx, rctx.JournalID, artifactID)
	if err != nil {
		return model.Artifact{}, err
	}
	if art.Approval == model.ApprovalApproved {
		return art, nil
	}

	art.Approval = model.ApprovalApproved
	if err := e.store.UpdateArtifact(ctx, art); err != nil {
		return model.Artifact{}, err
	}
	return art, nil
}

// ListArtifacts returns a submission's artifact versions.
func (e *Engine) ListArtifacts(ctx context.Context, rctx *model.RequestContext, submissionID string, filters ArtifactFilters) ([]model.Artifact, error) {
	return e.store.FindArtifacts(ctx, rctx.JournalID, submissionID, filters)
}

// writeArtifact stores the blob and persists the new artifact version. The
// caller holds the submission lock and has validated the version number.
func (e *Engine) writeArtifact(ctx context.Context, rctx *model.RequestContext, sub model.Submission, assignmentID string, tag model.RoleTag, version int, fileName string, content []byte, contentType string) (model.Artifact, error) {
	start := time.Now()

	ref, err := e.blobs.Store(ctx, content, contentType)
	if err != nil {
		return model.Artifact{}, err
	}

	now := e.now()
	art := model.Artifact{
		ID:           uuid.New().String(),
		SubmissionID: sub.ID,
		JournalID:    sub.JournalID,
		AssignmentID: assignmentID,
		RoleTag:      tag,
		Version:      version,
		FileRef:      ref,
		FileName:     fileName,
		LastEditedBy: rctx.SubjectID,
		LastEditedAt: now,
		Approval:     model.ApprovalPending,
		CreatedAt:    now,
	}

	if err := e.store.CreateArtifact(ctx, art); err != nil {
		return model.Artifact{}, err
	}

	if e.metrics != nil {
		e.metrics.RecordArtifactSave(string(tag), time.Since(start))
	}

	e.logger.Info("artifact saved",
		zap.String("submission_id", sub.ID),
		zap.String("role_tag", string(tag)),
		zap.Int("version", version),
	)

	if err := e.emit(ctx, model.Event{
		JournalID:    sub.JournalID,
		SubmissionID: sub.ID,
		AssignmentID: assignmentID,
		Type:         model.EventArtifactSaved,
		ActorID:      rctx.SubjectID,
		Data: map[string]any{
			"role_tag": string(tag),
			"version":  version,
		},
	}); err != nil {
		return model.Artifact{}, err
	}

	return art, nil
}
