package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubChecker struct {
	err error
}

func (s stubChecker) HealthCheck(_ context.Context) error { return s.err }

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleHealth()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("Status = %q", body.Status)
	}
	if body.Version == "" {
		t.Error("Version must not be empty")
	}
}

func TestHandleReady_allHealthy(t *testing.T) {
	handler := HandleReady(ReadinessChecks{
		EditorialStore: stubChecker{},
		Blobstore:      stubChecker{},
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ready" {
		t.Errorf("Status = %q", body.Status)
	}
	if len(body.Checks) != 2 {
		t.Errorf("checks = %d, want 2", len(body.Checks))
	}
	if body.Checks["editorial_store"].Status != "ok" {
		t.Errorf("editorial_store = %+v", body.Checks["editorial_store"])
	}
}

func TestHandleReady_failingDependency(t *testing.T) {
	handler := HandleReady(ReadinessChecks{
		EditorialStore: stubChecker{},
		Blobstore:      stubChecker{err: errors.New("bucket unreachable")},
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var body ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "not_ready" {
		t.Errorf("Status = %q", body.Status)
	}
	if body.Checks["blobstore"].Error != "bucket unreachable" {
		t.Errorf("blobstore error = %q", body.Checks["blobstore"].Error)
	}
}

func TestHandleReady_noCheckers(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleReady(ReadinessChecks{})(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
