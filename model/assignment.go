package model

import "time"

// StageType identifies one of the editorial stages that spawn assignments.
type StageType string

const (
	StageReview      StageType = "review"
	StageCopyediting StageType = "copyediting"
	StageProduction  StageType = "production"
)

// AssignmentStatus is the state of a single assignment within a stage.
type AssignmentStatus string

// Assignment statuses. Pending and in_progress are the only non-terminal
// states; completed, declined, and cancelled admit no further transition.
const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentDeclined   AssignmentStatus = "declined"
	AssignmentCancelled  AssignmentStatus = "cancelled"
)

// Terminal returns true if the status admits no further transition.
func (s AssignmentStatus) Terminal() bool {
	switch s {
	case AssignmentCompleted, AssignmentDeclined, AssignmentCancelled:
		return true
	}
	return false
}

// Review recommendations carried on a completed review assignment.
const (
	RecommendationAccept = "accept"
	RecommendationRevise = "revise"
	RecommendationReject = "reject"
)

// Assignment is a single role-holder's task within one stage. At most one
// non-terminal assignment exists per (submission, stage); assignments are
// soft-terminal and never hard-deleted.
type Assignment struct {
	ID           string           `json:"id"`
	SubmissionID string           `json:"submission_id"`
	JournalID    string           `json:"journal_id"`
	Stage        StageType        `json:"stage"`
	AssigneeID   string           `json:"assignee_id"`
	AssignerID   string           `json:"assigner_id"`
	Status       AssignmentStatus `json:"status"`
	InvitedAt    time.Time        `json:"invited_at"`
	AssignedAt   *time.Time       `json:"assigned_at,omitempty"`
	DueDate      *time.Time       `json:"due_date,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`

	// Reason records why the assignment was declined or cancelled.
	Reason string `json:"reason,omitempty"`

	// Recommendation is the review outcome (accept/revise/reject); review
	// stage only.
	Recommendation string `json:"recommendation,omitempty"`

	// CompletionNote documents an editor override when copyediting is
	// completed without an author-confirmed version.
	CompletionNote string `json:"completion_note,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOverdue reports whether the assignment is past its due date. It is a
// pure function of (now, due date, status): never stored, never flipped by a
// write.
func (a Assignment) IsOverdue(now time.Time) bool {
	if a.DueDate == nil || a.Status.Terminal() {
		return false
	}
	return now.After(*a.DueDate)
}
