package models

import "time"

// EventType represents the type of progress event emitted by a job.
type EventType string

const (
	// EventJobStarted indicates a job transitioned to running.
	EventJobStarted EventType = "job_started"
	// EventJobProgress carries updated counters after each issue attempt.
	EventJobProgress EventType = "job_progress"
	// EventIssueComplete indicates one issue was processed or skipped.
	EventIssueComplete EventType = "issue_complete"
	// EventIssueFailed indicates one issue attempt failed.
	EventIssueFailed EventType = "issue_failed"
	// EventJobCompleted indicates the job reached its completed state.
	EventJobCompleted EventType = "job_completed"
	// EventJobFailed indicates a coordinator-level error failed the job.
	EventJobFailed EventType = "job_failed"
)

// Event is one immutable progress event. Within a job, events are emitted in
// processing order; no ordering holds across jobs.
type Event struct {
	Type      EventType
	JobID     string
	Timestamp time.Time

	IssueKey  string  // issue_complete / issue_failed
	Score     float64 // issue_complete, when delivered
	Skipped   bool    // issue_complete with unchanged content
	Error     string  // issue_failed / job_failed
	Processed int
	Skips     int
	Failed    int
	Total     int
}
