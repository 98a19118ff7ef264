package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build metadata, injected via Execute from main's ldflags.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "iq %s\n", buildVersion)
		fmt.Fprintf(ui.Out, "  commit: %s\n", buildCommit)
		fmt.Fprintf(ui.Out, "  built:  %s\n", buildDate)
		fmt.Fprintf(ui.Out, "  %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
