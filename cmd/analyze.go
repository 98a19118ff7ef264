package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/iq/internal/job"
	"github.com/joescharf/iq/internal/models"
	"github.com/joescharf/iq/internal/notify"
	"github.com/joescharf/iq/internal/output"
)

// criticalScore is the threshold below which an issue counts as critical for
// the exit status.
const criticalScore = 50.0

var (
	analyzeJQL     string
	analyzeMax     int
	analyzeWorkers int
	analyzePost    bool
	analyzeNotify  bool
	analyzeForce   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a batch of issues and deliver feedback",
	Long: `Analyze every issue matching a JQL query: score it against the
rubric, request an LLM critique, and deliver the feedback. Issues whose
content is unchanged since the last delivery are skipped.

Exits non-zero when any analyzed issue scores below 50.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return analyzeRun(cmd.Context())
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeJQL, "jql", "", "JQL query selecting issues to analyze (required)")
	analyzeCmd.Flags().IntVar(&analyzeMax, "max", 50, "Maximum number of issues to fetch")
	analyzeCmd.Flags().IntVar(&analyzeWorkers, "workers", 0, "Concurrent workers (default from config, 1 = sequential)")
	analyzeCmd.Flags().BoolVar(&analyzePost, "post", false, "Post feedback as tracker comments")
	analyzeCmd.Flags().BoolVar(&analyzeNotify, "notify", false, "Send a summary to the configured Slack webhook")
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "Reprocess issues even when content is unchanged")
	_ = analyzeCmd.MarkFlagRequired("jql")
	rootCmd.AddCommand(analyzeCmd)
}

func analyzeRun(ctx context.Context) error {
	jira, err := getJira()
	if err != nil {
		return err
	}

	p, err := getPipeline(jira)
	if err != nil {
		return err
	}

	workers := analyzeWorkers
	if workers == 0 {
		workers = viper.GetInt("analyze.workers")
	}

	coord := &job.Coordinator{
		Source:   jira,
		Pipeline: p,
		Store:    dataStore,
		Report:   p.Report,
		Sink:     job.SinkFunc(renderProgress),
		UI:       ui,
	}

	if analyzeNotify {
		webhook := viper.GetString("slack.webhook_url")
		if webhook == "" {
			return fmt.Errorf("slack.webhook_url is not configured")
		}
		coord.Notifier = notify.NewSlackNotifier(webhook)
	}

	j, err := coord.Run(ctx, job.Spec{
		Query:         analyzeJQL,
		MaxResults:    analyzeMax,
		Workers:       workers,
		DryRun:        dryRun,
		PostToTracker: analyzePost,
		Notify:        analyzeNotify,
		Force:         analyzeForce,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(ui.Out)
	ui.Info("Job %s %s", j.ID, output.StatusColor(j.Status))
	ui.Info("Analyzed %d, skipped %d, failed %d of %d issues",
		j.Processed, j.Skipped, j.Failed, j.Total)
	if j.Stats.Count > 0 {
		ui.Info("Scores: mean %s, min %s, max %s",
			output.ScoreColor(j.Stats.Mean),
			output.ScoreColor(j.Stats.Min),
			output.ScoreColor(j.Stats.Max))
	}

	if j.Stats.Count > 0 && j.Stats.Min < criticalScore {
		return fmt.Errorf("found issues scoring below %.0f (lowest: %.1f)", criticalScore, j.Stats.Min)
	}
	return nil
}

// renderProgress prints live per-issue progress from the job's event stream.
func renderProgress(e models.Event) {
	switch e.Type {
	case models.EventJobStarted:
		ui.Info("Analyzing %d issues...", e.Total)
	case models.EventIssueComplete:
		if e.Skipped {
			ui.VerboseLog("%s unchanged, skipped", e.IssueKey)
			return
		}
		ui.Success("%s scored %s  [%d/%d]", e.IssueKey, output.ScoreColor(e.Score),
			e.Processed+e.Skips+e.Failed, e.Total)
	case models.EventIssueFailed:
		ui.Error("%s failed: %s", e.IssueKey, e.Error)
	case models.EventJobFailed:
		ui.Error("Job failed: %s", e.Error)
	}
}
