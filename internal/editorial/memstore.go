package editorial

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/quill/model"
)

// MemoryStore is an in-memory Store for testing and single-node development.
type MemoryStore struct {
	mu          sync.RWMutex
	submissions map[string]model.Submission          // key: submission ID
	assignments map[string]model.Assignment          // key: assignment ID
	artifacts   map[string]model.Artifact            // key: artifact ID
	schedules   map[string]model.PublicationSchedule // key: schedule ID
	events      map[string][]model.Event             // key: submission ID
}

// NewMemoryStore creates a new in-memory editorial store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		submissions: make(map[string]model.Submission),
		assignments: make(map[string]model.Assignment),
		artifacts:   make(map[string]model.Artifact),
		schedules:   make(map[string]model.PublicationSchedule),
		events:      make(map[string][]model.Event),
	}
}

// CreateSubmission persists a new submission.
func (s *MemoryStore) CreateSubmission(_ context.Context, sub model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.submissions[sub.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("submission %q already exists", sub.ID),
		)
	}

	s.submissions[sub.ID] = sub
	return nil
}

// GetSubmission retrieves a submission by ID, scoped to journal.
func (s *MemoryStore) GetSubmission(_ context.Context, journalID, submissionID string) (model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.submissions[submissionID]
	if !exists || sub.JournalID != journalID {
		return model.Submission{}, model.NewNotFoundError(
			fmt.Sprintf("submission %q not found", submissionID),
		)
	}
	return sub, nil
}

// UpdateSubmission persists an updated submission with optimistic locking.
func (s *MemoryStore) UpdateSubmission(_ context.Context, sub model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.submissions[sub.ID]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("submission %q not found", sub.ID),
		)
	}

	// Optimistic lock check.
	if existing.Version != sub.Version {
		return model.NewConflictError(
			fmt.Sprintf("submission %q version conflict (expected %d, got %d)", sub.ID, sub.Version, existing.Version),
		)
	}

	sub.Version++
	sub.UpdatedAt = time.Now().UTC()
	s.submissions[sub.ID] = sub
	return nil
}

// ListSubmissions returns submissions for a journal, newest first.
func (s *MemoryStore) ListSubmissions(_ context.Context, journalID string, filters SubmissionFilters) ([]model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Submission
	for _, sub := range s.submissions {
		if sub.JournalID != journalID {
			continue
		}
		if filters.Status != "" && sub.Status != filters.Status {
			continue
		}
		if filters.AuthorID != "" && sub.AuthorID != filters.AuthorID {
			continue
		}
		result = append(result, sub)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	// Apply offset and limit.
	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []model.Submission{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}

	return result, nil
}

// CreateAssignment persists a new assignment.
func (s *MemoryStore) CreateAssignment(_ context.Context, asgn model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.assignments[asgn.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("assignment %q already exists", asgn.ID),
		)
	}

	s.assignments[asgn.ID] = asgn
	return nil
}

// GetAssignment retrieves an assignment by ID, scoped to journal.
func (s *MemoryStore) GetAssignment(_ context.Context, journalID, assignmentID string) (model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	asgn, exists := s.assignments[assignmentID]
	if !exists || asgn.JournalID != journalID {
		return model.Assignment{}, model.NewNotFoundError(
			fmt.Sprintf("assignment %q not found", assignmentID),
		)
	}
	return asgn, nil
}

// UpdateAssignment persists an updated assignment with optimistic locking.
func (s *MemoryStore) UpdateAssignment(_ context.Context, asgn model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.assignments[asgn.ID]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("assignment %q not found", asgn.ID),
		)
	}

	if existing.Version != asgn.Version {
		return model.NewConflictError(
			fmt.Sprintf("assignment %q version conflict (expected %d, got %d)", asgn.ID, asgn.Version, existing.Version),
		)
	}

	asgn.Version++
	asgn.UpdatedAt = time.Now().UTC()
	s.assignments[asgn.ID] = asgn
	return nil
}

// FindAssignments returns assignments for a submission, oldest first.
func (s *MemoryStore) FindAssignments(_ context.Context, journalID, submissionID string, filters AssignmentFilters) ([]model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Assignment
	for _, asgn := range s.assignments {
		if asgn.JournalID != journalID || asgn.SubmissionID != submissionID {
			continue
		}
		if filters.Stage != "" && asgn.Stage != filters.Stage {
			continue
		}
		if filters.AssigneeID != "" && asgn.AssigneeID != filters.AssigneeID {
			continue
		}
		if filters.ActiveOnly && asgn.Status.Terminal() {
			continue
		}
		result = append(result, asgn)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// CreateArtifact persists a new artifact version.
func (s *MemoryStore) CreateArtifact(_ context.Context, art model.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.artifacts[art.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("artifact %q already exists", art.ID),
		)
	}

	// Versions per (submission, role tag) are unique and strictly increasing.
	for _, existing := range s.artifacts {
		if existing.SubmissionID == art.SubmissionID && existing.RoleTag == art.RoleTag && existing.Version == art.Version {
			return model.NewConflictError(
				fmt.Sprintf("artifact version %d already exists for submission %q tag %q", art.Version, art.SubmissionID, art.RoleTag),
			)
		}
	}

	s.artifacts[art.ID] = art
	return nil
}

// GetArtifact retrieves an artifact by ID, scoped to journal.
func (s *MemoryStore) GetArtifact(_ context.Context, journalID, artifactID string) (model.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	art, exists := s.artifacts[artifactID]
	if !exists || art.JournalID != journalID {
		return model.Artifact{}, model.NewNotFoundError(
			fmt.Sprintf("artifact %q not found", artifactID),
		)
	}
	return art, nil
}

// UpdateArtifact persists artifact metadata changes.
func (s *MemoryStore) UpdateArtifact(_ context.Context, art model.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.artifacts[art.ID]; !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("artifact %q not found", art.ID),
		)
	}

	s.artifacts[art.ID] = art
	return nil
}

// FindArtifacts returns artifact versions for a submission.
func (s *MemoryStore) FindArtifacts(_ context.Context, journalID, submissionID string, filters ArtifactFilters) ([]model.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Artifact
	for _, art := range s.artifacts {
		if art.JournalID != journalID || art.SubmissionID != submissionID {
			continue
		}
		if filters.RoleTag != "" && art.RoleTag != filters.RoleTag {
			continue
		}
		result = append(result, art)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].RoleTag != result[j].RoleTag {
			return result[i].RoleTag.Rank() < result[j].RoleTag.Rank()
		}
		return result[i].Version < result[j].Version
	})

	if filters.LatestOnly {
		latest := make(map[model.RoleTag]model.Artifact)
		for _, art := range result {
			latest[art.RoleTag] = art
		}
		result = result[:0]
		for _, art := range latest {
			result = append(result, art)
		}
		sort.Slice(result, func(i, j int) bool {
			return result[i].RoleTag.Rank() < result[j].RoleTag.Rank()
		})
	}

	return result, nil
}

// LatestArtifact returns the highest-version artifact for a role tag.
func (s *MemoryStore) LatestArtifact(_ context.Context, journalID, submissionID string, tag model.RoleTag) (model.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest model.Artifact
	found := false
	for _, art := range s.artifacts {
		if art.JournalID != journalID || art.SubmissionID != submissionID || art.RoleTag != tag {
			continue
		}
		if !found || art.Version > latest.Version {
			latest = art
			found = true
		}
	}
	if !found {
		return model.Artifact{}, model.NewNotFoundError(
			fmt.Sprintf("no %s artifact for submission %q", tag, submissionID),
		)
	}
	return latest, nil
}

// CreateSchedule persists a new publication schedule.
func (s *MemoryStore) CreateSchedule(_ context.Context, sched model.PublicationSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[sched.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("schedule %q already exists", sched.ID),
		)
	}

	s.schedules[sched.ID] = sched
	return nil
}

// GetSchedule retrieves a schedule by ID, scoped to journal.
func (s *MemoryStore) GetSchedule(_ context.Context, journalID, scheduleID string) (model.PublicationSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, exists := s.schedules[scheduleID]
	if !exists || sched.JournalID != journalID {
		return model.PublicationSchedule{}, model.NewNotFoundError(
			fmt.Sprintf("schedule %q not found", scheduleID),
		)
	}
	return sched, nil
}

// GetScheduleBySubmission retrieves the newest schedule for a submission.
func (s *MemoryStore) GetScheduleBySubmission(_ context.Context, journalID, submissionID string) (model.PublicationSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest model.PublicationSchedule
	found := false
	for _, sched := range s.schedules {
		if sched.JournalID != journalID || sched.SubmissionID != submissionID {
			continue
		}
		if !found || sched.CreatedAt.After(latest.CreatedAt) {
			latest = sched
			found = true
		}
	}
	if !found {
		return model.PublicationSchedule{}, model.NewNotFoundError(
			fmt.Sprintf("no schedule for submission %q", submissionID),
		)
	}
	return latest, nil
}

// UpdateSchedule persists an updated schedule with optimistic locking.
func (s *MemoryStore) UpdateSchedule(_ context.Context, sched model.PublicationSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.schedules[sched.ID]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("schedule %q not found", sched.ID),
		)
	}

	if existing.Version != sched.Version {
		return model.NewConflictError(
			fmt.Sprintf("schedule %q version conflict (expected %d, got %d)", sched.ID, sched.Version, existing.Version),
		)
	}

	sched.Version++
	sched.UpdatedAt = time.Now().UTC()
	s.schedules[sched.ID] = sched
	return nil
}

// AppendEvent adds an event to a submission's audit trail.
func (s *MemoryStore) AppendEvent(_ context.Context, event model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[event.SubmissionID] = append(s.events[event.SubmissionID], event)
	return nil
}

// GetEvents retrieves all events for a submission, ordered by timestamp.
func (s *MemoryStore) GetEvents(_ context.Context, journalID, submissionID string) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.submissions[submissionID]
	if !exists || sub.JournalID != journalID {
		return nil, model.NewNotFoundError(
			fmt.Sprintf("submission %q not found", submissionID),
		)
	}

	events := s.events[submissionID]
	// Return sorted copy.
	result := make([]model.Event, len(events))
	copy(result, events)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

// Len returns the total number of submissions. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.submissions)
}
