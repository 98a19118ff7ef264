package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/iq/internal/output"
	"github.com/joescharf/iq/internal/pipeline"
	"github.com/joescharf/iq/internal/report"
	"github.com/joescharf/iq/internal/rubric"
)

var (
	issuePost  bool
	issueForce bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Score or inspect a single issue",
}

var issueScoreCmd = &cobra.Command{
	Use:   "score <issue-key>",
	Short: "Analyze one issue and print its feedback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueScoreRun(cmd.Context(), args[0])
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-key>",
	Short: "Show the issue as fetched from the tracker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(cmd.Context(), args[0])
	},
}

func init() {
	issueScoreCmd.Flags().BoolVar(&issuePost, "post", false, "Post the feedback as a tracker comment")
	issueScoreCmd.Flags().BoolVar(&issueForce, "force", false, "Reprocess even when content is unchanged")
	issueCmd.AddCommand(issueScoreCmd)
	issueCmd.AddCommand(issueShowCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueScoreRun(ctx context.Context, key string) error {
	jira, err := getJira()
	if err != nil {
		return err
	}

	p, err := getPipeline(jira)
	if err != nil {
		return err
	}

	issue, err := jira.Get(ctx, key)
	if err != nil {
		return err
	}

	res, err := p.Run(ctx, issue, pipeline.Options{
		SkipIfUnchanged: !issueForce,
		DryRun:          dryRun,
		PostToTracker:   issuePost,
		WriteReport:     !dryRun,
	})
	if err != nil {
		return err
	}

	if res.Outcome == pipeline.OutcomeSkipped {
		ui.Info("%s: content unchanged since last delivery (use --force to reprocess)", key)
		return nil
	}

	fmt.Fprintln(ui.Out, report.FormatFeedback(res.Feedback))
	return nil
}

func issueShowRun(ctx context.Context, key string) error {
	jira, err := getJira()
	if err != nil {
		return err
	}

	issue, err := jira.Get(ctx, key)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(issue.Key), issue.Title)
	fmt.Fprintf(ui.Out, "  Type:     %s\n", issue.Type)
	fmt.Fprintf(ui.Out, "  Status:   %s\n", issue.Status)
	if issue.Assignee != "" {
		fmt.Fprintf(ui.Out, "  Assignee: %s\n", issue.Assignee)
	}
	if len(issue.Labels) > 0 {
		fmt.Fprintf(ui.Out, "  Labels:   %s\n", strings.Join(issue.Labels, ", "))
	}
	if issue.HasEstimate() {
		fmt.Fprintf(ui.Out, "  Estimate: %g\n", *issue.Estimate)
	}
	fmt.Fprintf(ui.Out, "  Content hash: %s\n", pipeline.Fingerprint(issue)[:12])

	if issue.Description != "" {
		fmt.Fprintf(ui.Out, "\n%s\n", issue.Description)
	}
	if issue.AcceptanceCriteria != "" {
		fmt.Fprintf(ui.Out, "\nAcceptance criteria:\n%s\n", issue.AcceptanceCriteria)
	}

	// Quick rubric readout without the LLM round trip.
	engine, err := getRubric()
	if err != nil {
		return err
	}
	results := engine.Evaluate(issue)
	score, err := rubric.Aggregate(results)
	if err != nil {
		return err
	}
	fmt.Fprintf(ui.Out, "\nRubric score: %s\n", output.ScoreColor(score))
	return nil
}
