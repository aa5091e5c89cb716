package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/quill/internal/blobstore"
	"github.com/pitabwire/quill/internal/capability"
	"github.com/pitabwire/quill/internal/config"
	"github.com/pitabwire/quill/internal/editorial"
	"github.com/pitabwire/quill/model"
)

// stubAuth authenticates from test headers instead of a JWT: X-Test-Subject
// names the actor and X-Test-Roles carries comma-separated journal roles.
func stubAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := r.Header.Get("X-Test-Subject")
		if sub == "" {
			WriteError(w, model.NewUnauthorizedError("missing or invalid token"))
			return
		}
		roles := []any{}
		for _, role := range strings.Split(r.Header.Get("X-Test-Roles"), ",") {
			if role != "" {
				roles = append(roles, role)
			}
		}
		claims := map[string]any{
			"sub":        sub,
			"journal_id": "journal-1",
			"roles":      roles,
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()

	evaluator, err := capability.NewStaticPolicyEvaluator("")
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator: %v", err)
	}
	resolver := capability.NewResolver(evaluator, time.Minute)

	engine := editorial.NewEngine(editorial.Options{
		Store:       editorial.NewMemoryStore(),
		Blobs:       blobstore.NewMemoryStore(),
		CapResolver: resolver,
		DOIPrefix:   "10.52310",
	})

	cfg := config.Defaults()
	cfg.Observability.Metrics.Enabled = false

	return NewRouter(Dependencies{
		Config:             cfg,
		Handlers:           NewHandlers(engine),
		Authenticate:       stubAuth,
		CapabilityResolver: resolver,
	})
}

func doJSON(t *testing.T, router http.Handler, method, path, subject, roles string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	} else {
		buf.WriteString("{}")
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		req.Header.Set("X-Test-Subject", subject)
		req.Header.Set("X-Test-Roles", roles)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func doRaw(t *testing.T, router http.Handler, method, path, subject, roles string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Test-Subject", subject)
	req.Header.Set("X-Test-Roles", roles)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error.Code
}

func TestRouter_health_noAuth(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_unauthenticated(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/submissions", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRouter_createSubmission(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/submissions", "user-author", "author",
		map[string]string{"title": "HTTP Layer Manuscript"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var sub model.Submission
	if err := json.NewDecoder(rec.Body).Decode(&sub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sub.Status != model.StatusDraft {
		t.Errorf("Status = %q", sub.Status)
	}
	if sub.AuthorID != "user-author" {
		t.Errorf("AuthorID = %q", sub.AuthorID)
	}
}

func TestRouter_createSubmission_forbiddenRole(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/submissions", "user-rev", "reviewer",
		map[string]string{"title": "Not Mine To Create"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestRouter_getSubmission_notFound(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/submissions/nope", "user-author", "author", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != model.ErrNotFound {
		t.Errorf("code = %s", code)
	}
}

// createDraftOverHTTP drives submission creation and draft upload through the
// router and returns the submission ID.
func createDraftOverHTTP(t *testing.T, router http.Handler) string {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/api/submissions", "user-author", "author",
		map[string]string{"title": "Routed Manuscript"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var sub model.Submission
	if err := json.NewDecoder(rec.Body).Decode(&sub); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doRaw(t, router, http.MethodPost, "/api/submissions/"+sub.ID+"/drafts?file_name=m.docx",
		"user-author", "author", []byte("draft content"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}
	return sub.ID
}

func TestRouter_submitAndAssignFlow(t *testing.T) {
	router := newTestRouter(t)

	subID := createDraftOverHTTP(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/submissions/"+subID+"/submit", "user-author", "author", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/submissions/"+subID+"/assignments", "user-editor", "editor",
		map[string]string{"stage": "review", "assignee_id": "user-reviewer"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("assign status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// A second active review assignment is rejected.
	rec = doJSON(t, router, http.MethodPost, "/api/submissions/"+subID+"/assignments", "user-editor", "editor",
		map[string]string{"stage": "review", "assignee_id": "user-reviewer-2"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate assign status = %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != model.ErrDuplicateActiveAssignment {
		t.Errorf("code = %s", code)
	}

	// The submission moved under review.
	rec = doJSON(t, router, http.MethodGet, "/api/submissions/"+subID, "user-editor", "editor", nil)
	var sub model.Submission
	if err := json.NewDecoder(rec.Body).Decode(&sub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sub.Status != model.StatusUnderReview {
		t.Errorf("Status = %q, want under_review", sub.Status)
	}
}

func TestRouter_submitWithoutDraft(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/submissions", "user-author", "author",
		map[string]string{"title": "Empty Handed"})
	var sub model.Submission
	if err := json.NewDecoder(rec.Body).Decode(&sub); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/submissions/"+sub.ID+"/submit", "user-author", "author", nil)
	if rec.Code != http.StatusPreconditionFailed {
		t.Errorf("status = %d, want 412", rec.Code)
	}
}

// advanceToCopyediting drives a drafted submission through review acceptance
// and an in-progress copyediting assignment, all over the router.
func advanceToCopyediting(t *testing.T, router http.Handler, subID string) {
	t.Helper()

	if rec := doJSON(t, router, http.MethodPost, "/api/submissions/"+subID+"/submit", "user-author", "author", nil); rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec := doJSON(t, router, http.MethodPost, "/api/submissions/"+subID+"/assignments", "user-editor", "editor",
		map[string]string{"stage": "review", "assignee_id": "user-reviewer"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("assign review status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var review model.Assignment
	if err := json.NewDecoder(rec.Body).Decode(&review); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if rec := doJSON(t, router, http.MethodPost, "/api/assignments/"+review.ID+"/respond", "user-reviewer", "reviewer",
		map[string]any{"accept": true}); rec.Code != http.StatusOK {
		t.Fatalf("respond status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, router, http.MethodPost, "/api/assignments/"+review.ID+"/complete", "user-reviewer", "reviewer",
		map[string]string{"recommendation": "accept"}); rec.Code != http.StatusOK {
		t.Fatalf("complete review status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/submissions/"+subID+"/assignments", "user-editor", "editor",
		map[string]string{"stage": "copyediting", "assignee_id": "user-editor"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("assign copyediting status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var copyediting model.Assignment
	if err := json.NewDecoder(rec.Body).Decode(&copyediting); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if rec := doJSON(t, router, http.MethodPost, "/api/assignments/"+copyediting.ID+"/respond", "user-editor", "editor",
		map[string]any{"accept": true}); rec.Code != http.StatusOK {
		t.Fatalf("respond copyediting status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, router, http.MethodPost, "/api/assignments/"+copyediting.ID+"/start", "user-editor", "editor", nil); rec.Code != http.StatusOK {
		t.Fatalf("start copyediting status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_documentSaveConflict(t *testing.T) {
	router := newTestRouter(t)

	subID := createDraftOverHTTP(t, router)
	advanceToCopyediting(t, router, subID)

	// The copyeditor saves a first version over the draft.
	rec := doRaw(t, router, http.MethodPost,
		"/api/submissions/"+subID+"/documents/copyedited?base_version=0&file_name=c.docx",
		"user-editor", "editor", []byte("copyedited v1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// A save declaring the old base is rejected.
	rec = doRaw(t, router, http.MethodPost,
		"/api/submissions/"+subID+"/documents/copyedited?base_version=0&file_name=c.docx",
		"user-editor", "editor", []byte("conflicting edit"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("conflict status = %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != model.ErrStaleVersionConflict {
		t.Errorf("code = %s", code)
	}

	// Loading returns the current head and its base version header.
	req := httptest.NewRequest(http.MethodGet, "/api/submissions/"+subID+"/documents/copyedited", nil)
	req.Header.Set("X-Test-Subject", "user-editor")
	req.Header.Set("X-Test-Roles", "editor")
	loadRec := httptest.NewRecorder()
	router.ServeHTTP(loadRec, req)

	if loadRec.Code != http.StatusOK {
		t.Fatalf("load status = %d", loadRec.Code)
	}
	if got := loadRec.Header().Get("X-Base-Version"); got != "1" {
		t.Errorf("X-Base-Version = %q, want 1", got)
	}
	if loadRec.Body.String() != "copyedited v1" {
		t.Errorf("body = %q", loadRec.Body.String())
	}
}

func TestRouter_saveWithoutBaseVersion(t *testing.T) {
	router := newTestRouter(t)

	subID := createDraftOverHTTP(t, router)
	advanceToCopyediting(t, router, subID)

	rec := doRaw(t, router, http.MethodPost,
		"/api/submissions/"+subID+"/documents/copyedited?file_name=c.docx",
		"user-editor", "editor", []byte("x"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestRouter_emptyDocumentBody(t *testing.T) {
	router := newTestRouter(t)

	subID := createDraftOverHTTP(t, router)
	rec := doRaw(t, router, http.MethodPost,
		"/api/submissions/"+subID+"/drafts?file_name=m.docx",
		"user-author", "author", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRouter_listAssignments_overdueDerived(t *testing.T) {
	router := newTestRouter(t)

	subID := createDraftOverHTTP(t, router)
	if rec := doJSON(t, router, http.MethodPost, "/api/submissions/"+subID+"/submit", "user-author", "author", nil); rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d", rec.Code)
	}

	past := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)
	rec := doJSON(t, router, http.MethodPost, "/api/submissions/"+subID+"/assignments", "user-editor", "editor",
		map[string]any{"stage": "review", "assignee_id": "user-reviewer", "due_date": past})
	if rec.Code != http.StatusCreated {
		t.Fatalf("assign status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/submissions/"+subID+"/assignments", "user-editor", "editor", nil)
	var body struct {
		Assignments []struct {
			model.Assignment
			Overdue bool `json:"overdue"`
		} `json:"assignments"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Assignments) != 1 {
		t.Fatalf("assignments = %d, want 1", len(body.Assignments))
	}
	if !body.Assignments[0].Overdue {
		t.Error("expected the past-due assignment to be reported overdue")
	}
}
