package model

import "time"

// SubmissionStatus is the overall lifecycle status of a manuscript. It is a
// deterministic projection of stage events and is never set independently of
// a stage transition.
type SubmissionStatus string

// Submission lifecycle statuses, in pipeline order. Rejected and published
// are terminal.
const (
	StatusDraft            SubmissionStatus = "draft"
	StatusSubmitted        SubmissionStatus = "submitted"
	StatusUnderReview      SubmissionStatus = "under_review"
	StatusRevisionRequired SubmissionStatus = "revision_required"
	StatusAccepted         SubmissionStatus = "accepted"
	StatusRejected         SubmissionStatus = "rejected"
	StatusInProduction     SubmissionStatus = "in_production"
	StatusScheduled        SubmissionStatus = "scheduled"
	StatusPublished        SubmissionStatus = "published"
)

// Terminal returns true if no further lifecycle transition is permitted.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusRejected || s == StatusPublished
}

// Submission is a manuscript moving through the editorial pipeline. Version
// guards optimistic store updates so a transition commits all-or-nothing.
type Submission struct {
	ID          string           `json:"id"`
	JournalID   string           `json:"journal_id"`
	Title       string           `json:"title"`
	AuthorID    string           `json:"author_id"`
	Status      SubmissionStatus `json:"status"`
	ReviewRound int              `json:"review_round"`
	Version     int              `json:"version"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// SubmissionSummary is a lightweight representation used in list views.
type SubmissionSummary struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	AuthorID    string           `json:"author_id"`
	Status      SubmissionStatus `json:"status"`
	ReviewRound int              `json:"review_round"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
