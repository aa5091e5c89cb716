package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pitabwire/quill/model"
)

func TestRequestID_generatesAndEchoes(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Error("expected a generated correlation ID in the context")
	}
	if rec.Header().Get("X-Correlation-Id") != seen {
		t.Error("response header must carry the correlation ID")
	}

	// A caller-provided ID is propagated unchanged.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-Id", "corr-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "corr-42" {
		t.Errorf("correlation ID = %q, want corr-42", seen)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("handler exploded")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestBuildRequestContext_validClaims(t *testing.T) {
	var got *model.RequestContext
	h := BuildRequestContext(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = model.RequestContextFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Timezone", "Europe/Berlin")
	req = req.WithContext(WithClaims(req.Context(), map[string]any{
		"sub":        "user-1",
		"email":      "user@example.org",
		"journal_id": "journal-1",
		"roles":      []any{"author", "reviewer"},
	}))

	h.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("expected a RequestContext")
	}
	if got.SubjectID != "user-1" || got.JournalID != "journal-1" {
		t.Errorf("subject/journal = %q/%q", got.SubjectID, got.JournalID)
	}
	if len(got.Roles) != 2 || got.Roles[0] != "author" {
		t.Errorf("Roles = %v", got.Roles)
	}
	if got.Timezone != "Europe/Berlin" {
		t.Errorf("Timezone = %q", got.Timezone)
	}
}

func TestBuildRequestContext_missingJournal(t *testing.T) {
	called := false
	h := BuildRequestContext(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithClaims(req.Context(), map[string]any{"sub": "user-1"}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("handler must not run without a journal scope")
	}
}

func TestBuildRequestContext_noClaims(t *testing.T) {
	h := BuildRequestContext(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestStatusWriter_capturesFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	w.WriteHeader(http.StatusNotFound)
	w.WriteHeader(http.StatusOK) // Late writes must not overwrite.

	if w.status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.status)
	}
}
