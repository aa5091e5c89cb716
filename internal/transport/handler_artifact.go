package transport

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/quill/internal/editorial"
	"github.com/pitabwire/quill/model"
)

// Document bodies are opaque to the engine; cap them at 50 MiB.
const maxDocumentBytes = 50 << 20

// HandleUploadDraft handles POST /api/submissions/{submissionID}/drafts.
// The request body is the document; the file name comes from the query.
func (h *Handlers) HandleUploadDraft(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	content, err := readDocumentBody(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	art, err := h.engine.UploadDraft(r.Context(), rctx,
		chi.URLParam(r, "submissionID"),
		r.URL.Query().Get("file_name"),
		content,
		r.Header.Get("Content-Type"),
	)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, art)
}

// HandleSaveDocument handles POST /api/submissions/{submissionID}/documents/{roleTag}.
// The save must declare the version it was based on via the base_version query
// parameter; a stale base is rejected.
func (h *Handlers) HandleSaveDocument(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	baseVersion, err := strconv.Atoi(r.URL.Query().Get("base_version"))
	if err != nil {
		WriteValidationError(w, []model.FieldError{
			{Field: "base_version", Code: "required", Message: "base_version must be an integer"},
		})
		return
	}

	content, rerr := readDocumentBody(r)
	if rerr != nil {
		WriteError(w, rerr)
		return
	}

	art, serr := h.engine.SaveDocument(r.Context(), rctx,
		chi.URLParam(r, "submissionID"),
		model.RoleTag(chi.URLParam(r, "roleTag")),
		baseVersion,
		r.URL.Query().Get("assignment_id"),
		r.URL.Query().Get("file_name"),
		content,
		r.Header.Get("Content-Type"),
	)
	if serr != nil {
		WriteError(w, serr)
		return
	}
	WriteJSON(w, http.StatusCreated, art)
}

// HandleLoadDocument handles GET /api/submissions/{submissionID}/documents/{roleTag}.
// The response body is the latest document version; the artifact ID and the
// base version for a subsequent save travel in headers.
func (h *Handlers) HandleLoadDocument(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	handle, content, err := h.engine.LoadDocument(r.Context(), rctx,
		chi.URLParam(r, "submissionID"),
		model.RoleTag(chi.URLParam(r, "roleTag")),
	)
	if err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Artifact-Id", handle.ArtifactID)
	w.Header().Set("X-Base-Version", strconv.Itoa(handle.BaseVersion))
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

// HandleListArtifacts handles GET /api/submissions/{submissionID}/artifacts.
func (h *Handlers) HandleListArtifacts(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	filters := editorial.ArtifactFilters{
		RoleTag:    model.RoleTag(r.URL.Query().Get("role_tag")),
		LatestOnly: r.URL.Query().Get("latest") == "true",
	}

	arts, err := h.engine.ListArtifacts(r.Context(), rctx, chi.URLParam(r, "submissionID"), filters)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"artifacts": arts})
}

// HandleApproveArtifact handles POST /api/artifacts/{artifactID}/approve.
func (h *Handlers) HandleApproveArtifact(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	art, err := h.engine.ApproveArtifact(r.Context(), rctx, chi.URLParam(r, "artifactID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, art)
}

func readDocumentBody(r *http.Request) ([]byte, error) {
	content, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, model.NewBadRequestError("failed to read request body")
	}
	if len(content) == 0 {
		return nil, model.NewBadRequestError("request body must not be empty")
	}
	if len(content) > maxDocumentBytes {
		return nil, model.NewBadRequestError("document exceeds the maximum size")
	}
	return content, nil
}
