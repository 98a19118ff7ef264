package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/iq/internal/output"
)

var reportLimit int

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show recent analysis jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportRun(cmd)
	},
}

func init() {
	reportCmd.Flags().IntVar(&reportLimit, "limit", 20, "Number of jobs to show")
	rootCmd.AddCommand(reportCmd)
}

func reportRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	jobs, err := s.ListJobs(cmd.Context(), reportLimit)
	if err != nil {
		return err
	}

	if len(jobs) == 0 {
		ui.Info("No analysis jobs recorded. Run 'iq analyze --jql <query>' first.")
		return nil
	}

	table := ui.Table([]string{"STARTED", "STATUS", "QUERY", "ANALYZED", "SKIPPED", "FAILED", "MEAN"})
	for _, j := range jobs {
		mean := "-"
		if j.Stats.Count > 0 {
			mean = output.ScoreColor(j.Stats.Mean)
		}
		table.Append([]string{
			j.StartedAt.Local().Format("2006-01-02 15:04"),
			output.StatusColor(j.Status),
			truncate(j.Query, 40),
			fmt.Sprintf("%d", j.Processed),
			fmt.Sprintf("%d", j.Skipped),
			fmt.Sprintf("%d", j.Failed),
			mean,
		})
	}
	return table.Render()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
