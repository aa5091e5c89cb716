package editorial

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/quill/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL editorial store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// CreateSubmission inserts a new submission.
func (s *PgStore) CreateSubmission(ctx context.Context, sub model.Submission) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO submissions (
			id, journal_id, title, author_id, status, review_round,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID, sub.JournalID, sub.Title, sub.AuthorID, sub.Status, sub.ReviewRound,
		sub.Version, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// GetSubmission retrieves a submission by ID, scoped to journal.
func (s *PgStore) GetSubmission(ctx context.Context, journalID, submissionID string) (model.Submission, error) {
	var sub model.Submission

	err := s.pool.QueryRow(ctx, `
		SELECT id, journal_id, title, author_id, status, review_round,
		       version, created_at, updated_at
		FROM submissions
		WHERE id = $1 AND journal_id = $2`,
		submissionID, journalID,
	).Scan(
		&sub.ID, &sub.JournalID, &sub.Title, &sub.AuthorID, &sub.Status, &sub.ReviewRound,
		&sub.Version, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return model.Submission{}, model.NewNotFoundError(
			fmt.Sprintf("submission %q not found", submissionID),
		)
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("query submission: %w", err)
	}
	return sub, nil
}

// UpdateSubmission persists an updated submission with optimistic locking.
func (s *PgStore) UpdateSubmission(ctx context.Context, sub model.Submission) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE submissions SET
			title = $1,
			status = $2,
			review_round = $3,
			version = $4,
			updated_at = $5
		WHERE id = $6 AND version = $7`,
		sub.Title, sub.Status, sub.ReviewRound, sub.Version+1,
		time.Now().UTC(),
		sub.ID, sub.Version,
	)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("submission %q version conflict (expected %d)", sub.ID, sub.Version),
		)
	}
	return nil
}

// ListSubmissions returns submissions for a journal, newest first.
func (s *PgStore) ListSubmissions(ctx context.Context, journalID string, filters SubmissionFilters) ([]model.Submission, error) {
	query := `SELECT id, journal_id, title, author_id, status, review_round,
	                 version, created_at, updated_at
	          FROM submissions
	          WHERE journal_id = $1`
	args := []any{journalID}
	argIdx := 2

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filters.Status)
		argIdx++
	}
	if filters.AuthorID != "" {
		query += fmt.Sprintf(" AND author_id = $%d", argIdx)
		args = append(args, filters.AuthorID)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(
			&sub.ID, &sub.JournalID, &sub.Title, &sub.AuthorID, &sub.Status, &sub.ReviewRound,
			&sub.Version, &sub.CreatedAt, &sub.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CreateAssignment inserts a new assignment.
func (s *PgStore) CreateAssignment(ctx context.Context, asgn model.Assignment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO assignments (
			id, submission_id, journal_id, stage, assignee_id, assigner_id,
			status, invited_at, assigned_at, due_date, completed_at,
			reason, recommendation, completion_note,
			version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17
		)`,
		asgn.ID, asgn.SubmissionID, asgn.JournalID, asgn.Stage, asgn.AssigneeID, asgn.AssignerID,
		asgn.Status, asgn.InvitedAt, asgn.AssignedAt, asgn.DueDate, asgn.CompletedAt,
		asgn.Reason, asgn.Recommendation, asgn.CompletionNote,
		asgn.Version, asgn.CreatedAt, asgn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

// GetAssignment retrieves an assignment by ID, scoped to journal.
func (s *PgStore) GetAssignment(ctx context.Context, journalID, assignmentID string) (model.Assignment, error) {
	var asgn model.Assignment

	err := s.pool.QueryRow(ctx, `
		SELECT id, submission_id, journal_id, stage, assignee_id, assigner_id,
		       status, invited_at, assigned_at, due_date, completed_at,
		       reason, recommendation, completion_note,
		       version, created_at, updated_at
		FROM assignments
		WHERE id = $1 AND journal_id = $2`,
		assignmentID, journalID,
	).Scan(
		&asgn.ID, &asgn.SubmissionID, &asgn.JournalID, &asgn.Stage, &asgn.AssigneeID, &asgn.AssignerID,
		&asgn.Status, &asgn.InvitedAt, &asgn.AssignedAt, &asgn.DueDate, &asgn.CompletedAt,
		&asgn.Reason, &asgn.Recommendation, &asgn.CompletionNote,
		&asgn.Version, &asgn.CreatedAt, &asgn.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return model.Assignment{}, model.NewNotFoundError(
			fmt.Sprintf("assignment %q not found", assignmentID),
		)
	}
	if err != nil {
		return model.Assignment{}, fmt.Errorf("query assignment: %w", err)
	}
	return asgn, nil
}

// UpdateAssignment persists an updated assignment with optimistic locking.
func (s *PgStore) UpdateAssignment(ctx context.Context, asgn model.Assignment) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE assignments SET
			status = $1,
			assigned_at = $2,
			due_date = $3,
			completed_at = $4,
			reason = $5,
			recommendation = $6,
			completion_note = $7,
			version = $8,
			updated_at = $9
		WHERE id = $10 AND version = $11`,
		asgn.Status, asgn.AssignedAt, asgn.DueDate, asgn.CompletedAt,
		asgn.Reason, asgn.Recommendation, asgn.CompletionNote,
		asgn.Version+1, time.Now().UTC(),
		asgn.ID, asgn.Version,
	)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("assignment %q version conflict (expected %d)", asgn.ID, asgn.Version),
		)
	}
	return nil
}

// FindAssignments returns assignments for a submission, oldest first.
func (s *PgStore) FindAssignments(ctx context.Context, journalID, submissionID string, filters AssignmentFilters) ([]model.Assignment, error) {
	query := `SELECT id, submission_id, journal_id, stage, assignee_id, assigner_id,
	                 status, invited_at, assigned_at, due_date, completed_at,
	                 reason, recommendation, completion_note,
	                 version, created_at, updated_at
	          FROM assignments
	          WHERE journal_id = $1 AND submission_id = $2`
	args := []any{journalID, submissionID}
	argIdx := 3

	if filters.Stage != "" {
		query += fmt.Sprintf(" AND stage = $%d", argIdx)
		args = append(args, filters.Stage)
		argIdx++
	}
	if filters.AssigneeID != "" {
		query += fmt.Sprintf(" AND assignee_id = $%d", argIdx)
		args = append(args, filters.AssigneeID)
		argIdx++
	}
	if filters.ActiveOnly {
		query += " AND status IN ('pending', 'in_progress')"
	}

	query += " ORDER BY created_at ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	var asgns []model.Assignment
	for rows.Next() {
		var asgn model.Assignment
		if err := rows.Scan(
			&asgn.ID, &asgn.SubmissionID, &asgn.JournalID, &asgn.Stage, &asgn.AssigneeID, &asgn.AssignerID,
			&asgn.Status, &asgn.InvitedAt, &asgn.AssignedAt, &asgn.DueDate, &asgn.CompletedAt,
			&asgn.Reason, &asgn.Recommendation, &asgn.CompletionNote,
			&asgn.Version, &asgn.CreatedAt, &asgn.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		asgns = append(asgns, asgn)
	}
	return asgns, rows.Err()
}

// CreateArtifact inserts a new artifact version. The unique index on
// (submission_id, role_tag, version) enforces that versions are never reused.
func (s *PgStore) CreateArtifact(ctx context.Context, art model.Artifact) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO artifacts (
			id, submission_id, journal_id, assignment_id, role_tag, version,
			file_ref, file_name, last_edited_by, last_edited_at,
			approval, frozen, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13
		)`,
		art.ID, art.SubmissionID, art.JournalID, art.AssignmentID, art.RoleTag, art.Version,
		art.FileRef, art.FileName, art.LastEditedBy, art.LastEditedAt,
		art.Approval, art.Frozen, art.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// GetArtifact retrieves an artifact by ID, scoped to journal.
func (s *PgStore) GetArtifact(ctx context.Context, journalID, artifactID string) (model.Artifact, error) {
	var art model.Artifact

	err := s.pool.QueryRow(ctx, `
		SELECT id, submission_id, journal_id, assignment_id, role_tag, version,
		       file_ref, file_name, last_edited_by, last_edited_at,
		       approval, frozen, created_at
		FROM artifacts
		WHERE id = $1 AND journal_id = $2`,
		artifactID, journalID,
	).Scan(
		&art.ID, &art.SubmissionID, &art.JournalID, &art.AssignmentID, &art.RoleTag, &art.Version,
		&art.FileRef, &art.FileName, &art.LastEditedBy, &art.LastEditedAt,
		&art.Approval, &art.Frozen, &art.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return model.Artifact{}, model.NewNotFoundError(
			fmt.Sprintf("artifact %q not found", artifactID),
		)
	}
	if err != nil {
		return model.Artifact{}, fmt.Errorf("query artifact: %w", err)
	}
	return art, nil
}

// UpdateArtifact persists artifact metadata changes.
func (s *PgStore) UpdateArtifact(ctx context.Context, art model.Artifact) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE artifacts SET
			approval = $1,
			frozen = $2
		WHERE id = $3`,
		art.Approval, art.Frozen, art.ID,
	)
	if err != nil {
		return fmt.Errorf("update artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(
			fmt.Sprintf("artifact %q not found", art.ID),
		)
	}
	return nil
}

// FindArtifacts returns artifact versions for a submission.
func (s *PgStore) FindArtifacts(ctx context.Context, journalID, submissionID string, filters ArtifactFilters) ([]model.Artifact, error) {
	query := `SELECT id, submission_id, journal_id, assignment_id, role_tag, version,
	                 file_ref, file_name, last_edited_by, last_edited_at,
	                 approval, frozen, created_at
	          FROM artifacts
	          WHERE journal_id = $1 AND submission_id = $2`
	args := []any{journalID, submissionID}

	if filters.RoleTag != "" {
		query += " AND role_tag = $3"
		args = append(args, filters.RoleTag)
	}
	if filters.LatestOnly {
		query += ` AND (role_tag, version) IN (
			SELECT role_tag, MAX(version) FROM artifacts
			WHERE journal_id = $1 AND submission_id = $2
			GROUP BY role_tag
		)`
	}

	query += " ORDER BY role_tag, version ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var arts []model.Artifact
	for rows.Next() {
		var art model.Artifact
		if err := rows.Scan(
			&art.ID, &art.SubmissionID, &art.JournalID, &art.AssignmentID, &art.RoleTag, &art.Version,
			&art.FileRef, &art.FileName, &art.LastEditedBy, &art.LastEditedAt,
			&art.Approval, &art.Frozen, &art.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		arts = append(arts, art)
	}
	return arts, rows.Err()
}

// LatestArtifact returns the highest-version artifact for a role tag.
func (s *PgStore) LatestArtifact(ctx context.Context, journalID, submissionID string, roleTag model.RoleTag) (model.Artifact, error) {
	var art model.Artifact

	err := s.pool.QueryRow(ctx, `
		SELECT id, submission_id, journal_id, assignment_id, role_tag, version,
		       file_ref, file_name, last_edited_by, last_edited_at,
		       approval, frozen, created_at
		FROM artifacts
		WHERE journal_id = $1 AND submission_id = $2 AND role_tag = $3
		ORDER BY version DESC
		LIMIT 1`,
		journalID, submissionID, roleTag,
	).Scan(
		&art.ID, &art.SubmissionID, &art.JournalID, &art.AssignmentID, &art.RoleTag, &art.Version,
		&art.FileRef, &art.FileName, &art.LastEditedBy, &art.LastEditedAt,
		&art.Approval, &art.Frozen, &art.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return model.Artifact{}, model.NewNotFoundError(
			fmt.Sprintf("no %s artifact for submission %q", roleTag, submissionID),
		)
	}
	if err != nil {
		return model.Artifact{}, fmt.Errorf("query latest artifact: %w", err)
	}
	return art, nil
}

// CreateSchedule inserts a new publication schedule.
func (s *PgStore) CreateSchedule(ctx context.Context, sched model.PublicationSchedule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO publication_schedules (
			id, submission_id, journal_id, status, scheduled_date, published_date,
			volume, issue, doi, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sched.ID, sched.SubmissionID, sched.JournalID, sched.Status, sched.ScheduledDate, sched.PublishedDate,
		sched.Volume, sched.Issue, sched.DOI, sched.Version, sched.CreatedAt, sched.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID, scoped to journal.
func (s *PgStore) GetSchedule(ctx context.Context, journalID, scheduleID string) (model.PublicationSchedule, error) {
	return s.queryScheduleRow(ctx, `
		SELECT id, submission_id, journal_id, status, scheduled_date, published_date,
		       volume, issue, doi, version, created_at, updated_at
		FROM publication_schedules
		WHERE id = $1 AND journal_id = $2`,
		fmt.Sprintf("schedule %q not found", scheduleID),
		scheduleID, journalID,
	)
}

// GetScheduleBySubmission retrieves the newest schedule for a submission.
func (s *PgStore) GetScheduleBySubmission(ctx context.Context, journalID, submissionID string) (model.PublicationSchedule, error) {
	return s.queryScheduleRow(ctx, `
		SELECT id, submission_id, journal_id, status, scheduled_date, published_date,
		       volume, issue, doi, version, created_at, updated_at
		FROM publication_schedules
		WHERE journal_id = $1 AND submission_id = $2
		ORDER BY created_at DESC
		LIMIT 1`,
		fmt.Sprintf("no schedule for submission %q", submissionID),
		journalID, submissionID,
	)
}

// UpdateSchedule persists an updated schedule with optimistic locking.
func (s *PgStore) UpdateSchedule(ctx context.Context, sched model.PublicationSchedule) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE publication_schedules SET
			status = $1,
			scheduled_date = $2,
			published_date = $3,
			volume = $4,
			issue = $5,
			doi = $6,
			version = $7,
			updated_at = $8
		WHERE id = $9 AND version = $10`,
		sched.Status, sched.ScheduledDate, sched.PublishedDate,
		sched.Volume, sched.Issue, sched.DOI,
		sched.Version+1, time.Now().UTC(),
		sched.ID, sched.Version,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("schedule %q version conflict (expected %d)", sched.ID, sched.Version),
		)
	}
	return nil
}

// AppendEvent adds an event to a submission's audit trail.
func (s *PgStore) AppendEvent(ctx context.Context, event model.Event) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO editorial_events (
			id, journal_id, submission_id, assignment_id, type, actor_id, data, comment, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.JournalID, event.SubmissionID, event.AssignmentID, event.Type,
		event.ActorID, dataJSON, event.Comment, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert editorial event: %w", err)
	}
	return nil
}

// GetEvents retrieves all events for a submission.
func (s *PgStore) GetEvents(ctx context.Context, journalID, submissionID string) ([]model.Event, error) {
	// Verify journal access.
	if _, err := s.GetSubmission(ctx, journalID, submissionID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, journal_id, submission_id, assignment_id, type, actor_id, data, comment, created_at
		FROM editorial_events
		WHERE submission_id = $1
		ORDER BY created_at ASC`,
		submissionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query editorial events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var evt model.Event
		var dataJSON []byte
		if err := rows.Scan(
			&evt.ID, &evt.JournalID, &evt.SubmissionID, &evt.AssignmentID, &evt.Type,
			&evt.ActorID, &dataJSON, &evt.Comment, &evt.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan editorial event: %w", err)
		}
		if dataJSON != nil {
			_ = json.Unmarshal(dataJSON, &evt.Data)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// HealthCheck pings the database.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// queryScheduleRow runs a single-row schedule query.
func (s *PgStore) queryScheduleRow(ctx context.Context, query, notFoundMsg string, args ...any) (model.PublicationSchedule, error) {
	var sched model.PublicationSchedule

	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&sched.ID, &sched.SubmissionID, &sched.JournalID, &sched.Status, &sched.ScheduledDate, &sched.PublishedDate,
		&sched.Volume, &sched.Issue, &sched.DOI, &sched.Version, &sched.CreatedAt, &sched.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return model.PublicationSchedule{}, model.NewNotFoundError(notFoundMsg)
	}
	if err != nil {
		return model.PublicationSchedule{}, fmt.Errorf("query schedule: %w", err)
	}
	return sched, nil
}
