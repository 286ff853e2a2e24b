// Package main provides the entry point for the gstats CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deeprave/gstats/cmd/gstats/commands"
	"github.com/deeprave/gstats/pkg/version"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gstats",
		Short: "gstats - git repository statistics",
		Long: `gstats scans a git repository's history and reports per-file and
per-contributor statistics.

Commands:
  scan      Walk the commit history and report statistics`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")

	rootCmd.AddCommand(commands.NewScanCommand(&verbose, &quiet))
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "gstats %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
