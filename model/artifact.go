package model

import "time"

// RoleTag places a document artifact in the editorial pipeline. Tags are
// produced in pipeline order: a tag may not appear for a submission before
// its predecessor exists.
type RoleTag string

const (
	TagDraft            RoleTag = "draft"
	TagCopyedited       RoleTag = "copyedited"
	TagAuthorFinal      RoleTag = "author_final"
	TagProductionGalley RoleTag = "production_galley"
)

// pipelineRank orders role tags; lower ranks come earlier in the pipeline.
var pipelineRank = map[RoleTag]int{
	TagDraft:            0,
	TagCopyedited:       1,
	TagAuthorFinal:      2,
	TagProductionGalley: 3,
}

// Rank returns the tag's position in the pipeline, or -1 for unknown tags.
func (t RoleTag) Rank() int {
	r, ok := pipelineRank[t]
	if !ok {
		return -1
	}
	return r
}

// Predecessor returns the tag that must exist for a submission before this
// tag may be produced. The production galley follows the copyedited text
// rather than the author-final one because copyediting may complete on an
// editor override with no author-confirmed version.
func (t RoleTag) Predecessor() (RoleTag, bool) {
	switch t {
	case TagCopyedited:
		return TagDraft, true
	case TagAuthorFinal:
		return TagCopyedited, true
	case TagProductionGalley:
		return TagCopyedited, true
	}
	return "", false
}

// ApprovalState is the editorial approval state of an artifact version.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
)

// FileRef is an opaque handle into the document storage backend. The engine
// never interprets file bytes.
type FileRef string

// Artifact is one version of a document bound to a submission and,
// optionally, to the assignment that produced it. Versions per
// (submission, role tag) are strictly increasing and never reused; edits
// always produce a new version.
type Artifact struct {
	ID           string        `json:"id"`
	SubmissionID string        `json:"submission_id"`
	JournalID    string        `json:"journal_id"`
	AssignmentID string        `json:"assignment_id,omitempty"`
	RoleTag      RoleTag       `json:"role_tag"`
	Version      int           `json:"version"`
	FileRef      FileRef       `json:"file_ref"`
	FileName     string        `json:"file_name"`
	LastEditedBy string        `json:"last_edited_by"`
	LastEditedAt time.Time     `json:"last_edited_at"`
	Approval     ApprovalState `json:"approval"`

	// Frozen marks the version read-only; set when copyediting completes
	// and the artifact set becomes the final files.
	Frozen bool `json:"frozen"`

	CreatedAt time.Time `json:"created_at"`
}

// DocumentHandle is what the collaborative editor session receives from a
// load call: the content reference plus the version any subsequent save must
// declare as its base.
type DocumentHandle struct {
	ArtifactID  string  `json:"artifact_id"`
	FileRef     FileRef `json:"content_ref"`
	BaseVersion int     `json:"base_version"`
}
