package model

import "time"

// Domain event types emitted to the notification dispatcher and appended to
// the audit trail. Delivery is fire-and-forget; the engine does not retry.
const (
	EventAssignmentCreated   = "assignment_created"
	EventAssignmentAccepted  = "assignment_accepted"
	EventAssignmentDeclined  = "assignment_declined"
	EventAssignmentStarted   = "assignment_started"
	EventAssignmentCancelled = "assignment_cancelled"
	EventStageCompleted      = "stage_completed"
	EventSubmissionAdvanced  = "submission_advanced"
	EventArtifactSaved       = "artifact_saved"
	EventPublished           = "published"
)

// Event records one editorial action in a submission's audit trail.
type Event struct {
	ID           string         `json:"id"`
	JournalID    string         `json:"journal_id"`
	SubmissionID string         `json:"submission_id"`
	AssignmentID string         `json:"assignment_id,omitempty"`
	Type         string         `json:"type"`
	ActorID      string         `json:"actor_id"`
	Data         map[string]any `json:"data,omitempty"`
	Comment      string         `json:"comment,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
