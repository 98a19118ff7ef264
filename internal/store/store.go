package store

import (
	"context"

	"github.com/joescharf/iq/internal/models"
)

// Store defines the persistence interface for feedback history and jobs.
// Feedback rows are append-only: a re-analysis writes a new revision.
type Store interface {
	// Feedback history
	SaveFeedback(ctx context.Context, fb *models.Feedback) error
	GetFeedback(ctx context.Context, id string) (*models.Feedback, error)
	ListFeedback(ctx context.Context, issueKey string, limit int) ([]*models.Feedback, error)

	// Jobs
	SaveJob(ctx context.Context, job *models.AnalysisJob) error
	UpdateJob(ctx context.Context, job *models.AnalysisJob) error
	GetJob(ctx context.Context, id string) (*models.AnalysisJob, error)
	ListJobs(ctx context.Context, limit int) ([]*models.AnalysisJob, error)

	Close() error
}
