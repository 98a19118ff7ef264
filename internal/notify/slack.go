// Package notify delivers best-effort job summaries to chat channels.
// Notification failures are logged by callers and never block a pipeline.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/joescharf/iq/internal/models"
)

// Summary is the digest sent after a batch completes.
type Summary struct {
	JobID     string
	Analyzed  int
	Skipped   int
	Failed    int
	MeanScore float64
	// Lowest-scoring feedback first; the notifier truncates to its own limit.
	Worst []*models.Feedback
}

// Notifier sends a summary to a channel.
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}

// SlackNotifier posts Block Kit messages to an incoming webhook.
type SlackNotifier struct {
	webhookURL string
	http       *http.Client
	limit      int
}

var _ Notifier = (*SlackNotifier)(nil)

// NewSlackNotifier creates a notifier for the given incoming-webhook URL.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		http:       &http.Client{Timeout: 10 * time.Second},
		limit:      10,
	}
}

type block map[string]any

// Notify posts the summary. The worst issues are listed lowest score first.
func (n *SlackNotifier) Notify(ctx context.Context, s Summary) error {
	worst := make([]*models.Feedback, len(s.Worst))
	copy(worst, s.Worst)
	sort.Slice(worst, func(i, j int) bool { return worst[i].Score < worst[j].Score })
	if len(worst) > n.limit {
		worst = worst[:n.limit]
	}

	blocks := []block{
		{
			"type": "header",
			"text": block{"type": "plain_text", "text": "Issue quality summary - " + time.Now().Format("2006-01-02")},
		},
		{
			"type": "section",
			"text": block{
				"type": "mrkdwn",
				"text": fmt.Sprintf("Analyzed %d issues (%d skipped, %d failed), mean score %.1f/100. Top %d needing attention:",
					s.Analyzed, s.Skipped, s.Failed, s.MeanScore, len(worst)),
			},
		},
		{"type": "divider"},
	}

	for _, fb := range worst {
		assessment := fb.OverallAssessment
		if len(assessment) > 100 {
			assessment = assessment[:100] + "..."
		}
		blocks = append(blocks, block{
			"type": "section",
			"text": block{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*%s* - %.1f/100 (%s)\n%s", fb.IssueKey, fb.Score, fb.Grade, assessment),
			},
		})
	}

	payload, err := json.Marshal(map[string]any{"blocks": blocks})
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("post slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}
