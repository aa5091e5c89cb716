package model

import "time"

// ScheduleStatus is the state of a publication schedule.
type ScheduleStatus string

const (
	ScheduleScheduled ScheduleStatus = "scheduled"
	SchedulePublished ScheduleStatus = "published"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// PublicationSchedule converts a completed production output into a
// scheduled, then published, artifact. Once published the record is
// immutable: cancel and delete are forbidden.
type PublicationSchedule struct {
	ID            string         `json:"id"`
	SubmissionID  string         `json:"submission_id"`
	JournalID     string         `json:"journal_id"`
	Status        ScheduleStatus `json:"status"`
	ScheduledDate time.Time      `json:"scheduled_date"`
	PublishedDate *time.Time     `json:"published_date,omitempty"`
	Volume        int            `json:"volume"`
	Issue         int            `json:"issue"`
	DOI           string         `json:"doi,omitempty"`
	Version       int            `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
