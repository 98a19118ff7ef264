package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the idempotency cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cacheStatsRun(cmd)
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cacheStatsRun(cmd)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cache entries so every issue is re-analyzed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cacheClearRun(cmd)
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func cacheStatsRun(cmd *cobra.Command) error {
	c, err := getCache()
	if err != nil {
		return err
	}

	s, err := c.Stats(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "  Issues tracked:    %d\n", s.Entries)
	fmt.Fprintf(ui.Out, "  Total deliveries:  %d\n", s.TotalDeliveries)
	if !s.LastActivity.IsZero() {
		fmt.Fprintf(ui.Out, "  Last delivery:     %s\n", s.LastActivity.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func cacheClearRun(cmd *cobra.Command) error {
	c, err := getCache()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would clear all cache entries")
		return nil
	}

	if err := c.Clear(cmd.Context()); err != nil {
		return err
	}
	ui.Success("Cache cleared")
	return nil
}
