package editorial

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/quill/internal/observability"
	"github.com/pitabwire/quill/model"
)

// --- UploadDraft tests ---

func TestUploadDraft_versionsIncrease(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, err := f.engine.CreateSubmission(ctx, authorRctx(), "Versioned Manuscript")
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	v1, err := f.engine.UploadDraft(ctx, authorRctx(), sub.ID, "m.docx", []byte("one"), "application/octet-stream")
	if err != nil {
		t.Fatalf("UploadDraft: %v", err)
	}
	v2, err := f.engine.UploadDraft(ctx, authorRctx(), sub.ID, "m.docx", []byte("two"), "application/octet-stream")
	if err != nil {
		t.Fatalf("UploadDraft: %v", err)
	}

	if v1.Version != 1 || v2.Version != 2 {
		t.Errorf("versions = %d, %d; want 1, 2", v1.Version, v2.Version)
	}
	if v1.RoleTag != model.TagDraft {
		t.Errorf("RoleTag = %q", v1.RoleTag)
	}
	if v1.Approval != model.ApprovalPending {
		t.Errorf("Approval = %q, want pending", v1.Approval)
	}
}

func TestUploadDraft_notAuthor(t *testing.T) {
	f := newFixture()

	sub := seedDraft(t, f)
	other := &model.RequestContext{SubjectID: "user-other", JournalID: testJournal}
	f.resolver.bySubject["user-other"] = model.CapabilitySet{"artifact:upload_draft": true}

	_, err := f.engine.UploadDraft(context.Background(), other, sub.ID, "m.docx", []byte("x"), "application/octet-stream")
	assertCode(t, err, model.ErrForbidden)
}

func TestUploadDraft_underReviewRejected(t *testing.T) {
	f := newFixture()

	sub, _ := seedUnderReview(t, f)
	_, err := f.engine.UploadDraft(context.Background(), authorRctx(), sub.ID, "m.docx", []byte("x"), "application/octet-stream")
	assertCode(t, err, model.ErrInvalidTransition)
}

// --- SaveDocument tests ---

func TestSaveDocument_predecessorRequired(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub := seedAccepted(t, f)

	// No copyedited version exists yet, so a galley may not appear.
	_, err := f.engine.SaveDocument(ctx, editorRctx(), sub.ID, model.TagProductionGalley, 0, "", "g.pdf", []byte("galley"), "application/pdf")
	assertCode(t, err, model.ErrInvalidStageOrder)
}

func TestSaveDocument_staleBase(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, _ := seedCopyediting(t, f)
	if _, err := f.engine.SaveDocument(ctx, editorRctx(), sub.ID, model.TagCopyedited, 0, "", "c.docx", []byte("v1"), "application/octet-stream"); err != nil {
		t.Fatalf("SaveDocument v1: %v", err)
	}

	// Two editors loaded version 1; the first save wins, the second is stale.
	if _, err := f.engine.SaveDocument(ctx, editorRctx(), sub.ID, model.TagCopyedited, 1, "", "c.docx", []byte("v2"), "application/octet-stream"); err != nil {
		t.Fatalf("SaveDocument v2: %v", err)
	}
	_, err := f.engine.SaveDocument(ctx, editorRctx(), sub.ID, model.TagCopyedited, 1, "", "c.docx", []byte("v2-conflict"), "application/octet-stream")
	assertCode(t, err, model.ErrStaleVersionConflict)

	// Reload and retry with the current head succeeds.
	handle, _, err := f.engine.LoadDocument(ctx, editorRctx(), sub.ID, model.TagCopyedited)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if handle.BaseVersion != 2 {
		t.Fatalf("BaseVersion = %d, want 2", handle.BaseVersion)
	}
	saved, err := f.engine.SaveDocument(ctx, editorRctx(), sub.ID, model.TagCopyedited, handle.BaseVersion, "", "c.docx", []byte("v3"), "application/octet-stream")
	if err != nil {
		t.Fatalf("SaveDocument retry: %v", err)
	}
	if saved.Version != 3 {
		t.Errorf("Version = %d, want 3", saved.Version)
	}
}

func TestSaveDocument_frozenAfterCopyediting(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub, _ := seedProductionStarted(t, f)

	// The copyediting artifact set froze when the stage completed.
	_, err := f.engine.SaveDocument(ctx, editorRctx(), sub.ID, model.TagCopyedited, 1, "", "c.docx", []byte("late edit"), "application/octet-stream")
	assertCode(t, err, model.ErrImmutableState)

	// Galleys are still writable.
	if _, err := f.engine.SaveDocument(ctx, editorRctx(), sub.ID, model.TagProductionGalley, 0, "", "g.pdf", []byte("galley"), "application/pdf"); err != nil {
		t.Fatalf("SaveDocument galley: %v", err)
	}
}

func TestSaveDocument_terminalSubmission(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, asgn := seedUnderReview(t, f)
	if _, err := f.engine.RespondAssignment(ctx, reviewerRctx(), asgn.ID, true, ""); err != nil {
		t.Fatalf("RespondAssignment: %v", err)
	}
	if _, err := f.engine.CompleteReview(ctx, reviewerRctx(), asgn.ID, model.RecommendationReject, ""); err != nil {
		t.Fatalf("CompleteReview: %v", err)
	}

	_, err := f.engine.SaveDocument(ctx, editorRctx(), asgn.SubmissionID, model.TagCopyedited, 0, "", "c.docx", []byte("x"), "application/octet-stream")
	assertCode(t, err, model.ErrImmutableState)
}

func TestSaveDocument_requiresInProgressAssignment(t *testing.T) {
	f := newFixture()

	// Copyediting has not been assigned yet.
	sub := seedAccepted(t, f)
	_, err := f.engine.SaveDocument(context.Background(), editorRctx(), sub.ID, model.TagCopyedited, 0, "", "c.docx", []byte("x"), "application/octet-stream")
	assertCode(t, err, model.ErrPreconditionFailed)
}

func TestSaveDocument_recordsSaveMetrics(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	metrics := observability.InitMetrics(prometheus.NewRegistry())
	f.engine = NewEngine(Options{
		Store:       f.store,
		Blobs:       f.blobs,
		CapResolver: f.resolver,
		Dispatcher:  f.events,
		Metrics:     metrics,
		DOIPrefix:   "10.52310",
	})

	sub, _ := seedCopyediting(t, f)
	if _, err := f.engine.SaveDocument(ctx, editorRctx(), sub.ID, model.TagCopyedited, 0, "", "c.docx", []byte("v1"), "application/octet-stream"); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	_, err := f.engine.SaveDocument(ctx, editorRctx(), sub.ID, model.TagCopyedited, 0, "", "c.docx", []byte("late"), "application/octet-stream")
	assertCode(t, err, model.ErrStaleVersionConflict)

	if got := testutil.ToFloat64(metrics.ArtifactSavesTotal.WithLabelValues("copyedited")); got != 1 {
		t.Errorf("copyedited saves recorded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.StaleSaveConflictsTotal.WithLabelValues("copyedited")); got != 1 {
		t.Errorf("stale conflicts recorded = %v, want 1", got)
	}
}

func TestSaveDocument_unknownTag(t *testing.T) {
	f := newFixture()

	sub := seedDraft(t, f)
	_, err := f.engine.SaveDocument(context.Background(), editorRctx(), sub.ID, model.RoleTag("annotated"), 0, "", "a.docx", []byte("x"), "application/octet-stream")
	assertCode(t, err, model.ErrValidationError)
}

func TestSaveDocument_forbidden(t *testing.T) {
	f := newFixture()

	sub := seedAccepted(t, f)

	// Reviewers hold no copyediting:save capability.
	_, err := f.engine.SaveDocument(context.Background(), reviewerRctx(), sub.ID, model.TagCopyedited, 0, "", "c.docx", []byte("x"), "application/octet-stream")
	assertCode(t, err, model.ErrForbidden)
}

// --- LoadDocument tests ---

func TestLoadDocument_roundtrip(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub := seedDraft(t, f)
	handle, content, err := f.engine.LoadDocument(ctx, authorRctx(), sub.ID, model.TagDraft)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if !bytes.Equal(content, []byte("draft v1")) {
		t.Errorf("content = %q", content)
	}
	if handle.BaseVersion != 1 {
		t.Errorf("BaseVersion = %d, want 1", handle.BaseVersion)
	}
	if handle.ArtifactID == "" || handle.FileRef == "" {
		t.Error("expected artifact ID and file ref on the handle")
	}
}

func TestLoadDocument_missing(t *testing.T) {
	f := newFixture()

	sub := seedDraft(t, f)
	_, _, err := f.engine.LoadDocument(context.Background(), authorRctx(), sub.ID, model.TagCopyedited)
	assertCode(t, err, model.ErrNotFound)
}

// --- ApproveArtifact tests ---

func TestApproveArtifact_idempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub := seedDraft(t, f)
	arts, err := f.engine.ListArtifacts(ctx, editorRctx(), sub.ID, ArtifactFilters{RoleTag: model.TagDraft})
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(arts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(arts))
	}

	approved, err := f.engine.ApproveArtifact(ctx, editorRctx(), arts[0].ID)
	if err != nil {
		t.Fatalf("ApproveArtifact: %v", err)
	}
	if approved.Approval != model.ApprovalApproved {
		t.Errorf("Approval = %q, want approved", approved.Approval)
	}

	again, err := f.engine.ApproveArtifact(ctx, editorRctx(), arts[0].ID)
	if err != nil {
		t.Fatalf("ApproveArtifact twice: %v", err)
	}
	if again.Approval != model.ApprovalApproved {
		t.Errorf("Approval = %q after second approve", again.Approval)
	}
}

func TestApproveArtifact_forbidden(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub := seedDraft(t, f)
	arts, err := f.engine.ListArtifacts(ctx, editorRctx(), sub.ID, ArtifactFilters{})
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}

	_, err = f.engine.ApproveArtifact(ctx, reviewerRctx(), arts[0].ID)
	assertCode(t, err, model.ErrForbidden)
}

// --- ListArtifacts tests ---

func TestListArtifacts_latestOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sub := seedDraft(t, f)
	if _, err := f.engine.UploadDraft(ctx, authorRctx(), sub.ID, "m.docx", []byte("draft v2"), "application/octet-stream"); err != nil {
		t.Fatalf("UploadDraft: %v", err)
	}

	all, err := f.engine.ListArtifacts(ctx, editorRctx(), sub.ID, ArtifactFilters{})
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all = %d, want 2", len(all))
	}

	latest, err := f.engine.ListArtifacts(ctx, editorRctx(), sub.ID, ArtifactFilters{LatestOnly: true})
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(latest) != 1 {
		t.Fatalf("latest = %d, want 1", len(latest))
	}
	if latest[0].Version != 2 {
		t.Errorf("latest Version = %d, want 2", latest[0].Version)
	}
}
