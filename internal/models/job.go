package models

import "time"

// JobStatus represents the state of an analysis job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ScoreStats holds online aggregate statistics over delivered scores.
type ScoreStats struct {
	Count int
	Mean  float64
	Min   float64
	Max   float64
}

// Add folds one score into the running aggregates.
func (s *ScoreStats) Add(score float64) {
	if s.Count == 0 {
		s.Min, s.Max = score, score
	} else {
		if score < s.Min {
			s.Min = score
		}
		if score > s.Max {
			s.Max = score
		}
	}
	s.Count++
	s.Mean += (score - s.Mean) / float64(s.Count)
}

// AnalysisJob tracks one batch run over a set of issues. Mutated only by the
// coordinator that owns it.
type AnalysisJob struct {
	ID            string // UUID
	Query         string // JQL
	MaxResults    int
	Workers       int
	DryRun        bool
	PostToTracker bool
	Notify        bool

	Status       JobStatus
	Total        int
	Processed    int
	Skipped      int
	Failed       int
	CurrentIssue string
	Stats        ScoreStats
	Error        string
	StartedAt    time.Time
	EndedAt      time.Time
}
