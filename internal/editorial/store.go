package editorial

import (
	"context"

	"github.com/pitabwire/quill/model"
)

// Store persists submissions, assignments, artifacts, schedules, and the
// audit trail. Update methods use optimistic locking: the record's Version
// must match the stored version or the update is rejected with CONFLICT.
type Store interface {
	// CreateSubmission persists a new submission.
	CreateSubmission(ctx context.Context, sub model.Submission) error

	// GetSubmission retrieves a submission by ID, scoped to a journal.
	// Returns NOT_FOUND if it doesn't exist or belongs to another journal.
	GetSubmission(ctx context.Context, journalID, submissionID string) (model.Submission, error)

	// UpdateSubmission persists an updated submission with optimistic
	// locking on Version.
	UpdateSubmission(ctx context.Context, sub model.Submission) error

	// ListSubmissions returns submissions for a journal, newest first.
	ListSubmissions(ctx context.Context, journalID string, filters SubmissionFilters) ([]model.Submission, error)

	// CreateAssignment persists a new assignment.
	CreateAssignment(ctx context.Context, asgn model.Assignment) error

	// GetAssignment retrieves an assignment by ID, scoped to a journal.
	GetAssignment(ctx context.Context, journalID, assignmentID string) (model.Assignment, error)

	// UpdateAssignment persists an updated assignment with optimistic
	// locking on Version.
	UpdateAssignment(ctx context.Context, asgn model.Assignment) error

	// FindAssignments returns assignments for a submission, oldest first.
	FindAssignments(ctx context.Context, journalID, submissionID string, filters AssignmentFilters) ([]model.Assignment, error)

	// CreateArtifact persists a new artifact version.
	CreateArtifact(ctx context.Context, art model.Artifact) error

	// GetArtifact retrieves an artifact by ID, scoped to a journal.
	GetArtifact(ctx context.Context, journalID, artifactID string) (model.Artifact, error)

	// UpdateArtifact persists artifact metadata changes (approval, frozen).
	// Content is immutable per version; saves create new artifacts.
	UpdateArtifact(ctx context.Context, art model.Artifact) error

	// FindArtifacts returns artifact versions for a submission, optionally
	// filtered by role tag, ordered by (role tag rank, version).
	FindArtifacts(ctx context.Context, journalID, submissionID string, filters ArtifactFilters) ([]model.Artifact, error)

	// LatestArtifact returns the highest-version artifact for a
	// (submission, role tag) pair, or NOT_FOUND when none exists.
	LatestArtifact(ctx context.Context, journalID, submissionID string, tag model.RoleTag) (model.Artifact, error)

	// CreateSchedule persists a new publication schedule.
	CreateSchedule(ctx context.Context, sched model.PublicationSchedule) error

	// GetSchedule retrieves a schedule by ID, scoped to a journal.
	GetSchedule(ctx context.Context, journalID, scheduleID string) (model.PublicationSchedule, error)

	// GetScheduleBySubmission retrieves the schedule for a submission, or
	// NOT_FOUND when the submission has never been scheduled.
	GetScheduleBySubmission(ctx context.Context, journalID, submissionID string) (model.PublicationSchedule, error)

	// UpdateSchedule persists an updated schedule with optimistic locking
	// on Version.
	UpdateSchedule(ctx context.Context, sched model.PublicationSchedule) error

	// AppendEvent adds an event to a submission's audit trail.
	AppendEvent(ctx context.Context, event model.Event) error

	// GetEvents retrieves all events for a submission, oldest first.
	GetEvents(ctx context.Context, journalID, submissionID string) ([]model.Event, error)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error
}

// SubmissionFilters are optional filters for listing submissions.
type SubmissionFilters struct {
	Status   model.SubmissionStatus
	AuthorID string
	Limit    int
	Offset   int
}

// AssignmentFilters are optional filters for listing assignments.
type AssignmentFilters struct {
	Stage      model.StageType
	AssigneeID string

	// ActiveOnly restricts results to non-terminal assignments.
	ActiveOnly bool
}

// ArtifactFilters are optional filters for listing artifacts.
type ArtifactFilters struct {
	RoleTag model.RoleTag

	// LatestOnly restricts results to the highest version per role tag.
	LatestOnly bool
}
