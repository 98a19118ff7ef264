package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/iq/internal/rubric"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the rubric rules and their weights",
	RunE: func(cmd *cobra.Command, args []string) error {
		return rulesRun()
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}

func rulesRun() error {
	engine, err := getRubric()
	if err != nil {
		return err
	}

	table := ui.Table([]string{"RULE", "WEIGHT"})
	for _, r := range rubric.Rules() {
		weight := engine.Weight(r.ID)
		w := fmt.Sprintf("%.1f", weight)
		if weight == 0 {
			w = "disabled"
		}
		table.Append([]string{string(r.ID), w})
	}
	return table.Render()
}
