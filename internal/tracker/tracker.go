// Package tracker provides access to the issue tracker: fetching normalized
// issues and posting feedback comments.
package tracker

import (
	"context"

	"github.com/joescharf/iq/internal/models"
)

// Source fetches normalized issues from the tracker.
type Source interface {
	Search(ctx context.Context, jql string, maxResults int) ([]models.Issue, error)
	Get(ctx context.Context, key string) (models.Issue, error)
}

// Commenter posts feedback to an issue. Returns the tracker's comment ID.
type Commenter interface {
	PostComment(ctx context.Context, key, body string) (string, error)
}
