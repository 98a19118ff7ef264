package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/iq/internal/output"
	"github.com/joescharf/iq/internal/report"
)

var (
	historyLimit int
	historyFull  bool
)

var historyCmd = &cobra.Command{
	Use:   "history <issue-key>",
	Short: "Show past feedback revisions for an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyRun(cmd, args[0])
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of revisions to show")
	historyCmd.Flags().BoolVar(&historyFull, "full", false, "Print the full feedback for each revision")
	rootCmd.AddCommand(historyCmd)
}

func historyRun(cmd *cobra.Command, key string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	revisions, err := s.ListFeedback(cmd.Context(), key, historyLimit)
	if err != nil {
		return err
	}

	if len(revisions) == 0 {
		ui.Info("No feedback recorded for %s", key)
		return nil
	}

	if historyFull {
		for _, fb := range revisions {
			fmt.Fprintln(ui.Out, report.FormatFeedback(fb))
			fmt.Fprintln(ui.Out, "---")
		}
		return nil
	}

	table := ui.Table([]string{"DELIVERED", "SCORE", "GRADE", "DEGRADED", "POSTED"})
	for _, fb := range revisions {
		degraded := ""
		if fb.Degraded {
			degraded = "yes"
		}
		posted := ""
		if fb.PostedToTracker {
			posted = "yes"
		}
		table.Append([]string{
			fb.CreatedAt.Local().Format("2006-01-02 15:04"),
			output.ScoreColor(fb.Score),
			string(fb.Grade),
			degraded,
			posted,
		})
	}
	return table.Render()
}
