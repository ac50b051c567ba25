// Package main provides the entry point for the loremem CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"

	globalStory    string
	globalDebug    bool
	globalJSONLogs bool
	globalPretty   bool
	globalJSON     bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "loremem",
		Short:         "Chapter-scoped memory for interactive stories",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globalStory, "story", "s", "", "Story to operate on (defaults to \"default\")")
	flags.BoolVar(&globalDebug, "debug", false, "Enable debug logging")
	flags.BoolVar(&globalJSONLogs, "json-logs", false, "Write logs as JSON")
	flags.BoolVar(&globalPretty, "pretty", false, "Write colored, human-friendly logs")
	flags.BoolVar(&globalJSON, "json", false, "Print results as JSON")

	rootCmd.AddCommand(
		newInitCmd(),
		newStoriesCmd(),
		newIngestCmd(),
		newExtractCmd(),
		newQueryCmd(),
		newRetrieveCmd(),
		newChainCmd(),
		newHistoryCmd(),
		newStatsCmd(),
		newEntitiesCmd(),
		newExportCmd(),
		newSessionCmd(),
	)

	return rootCmd
}

func run(ctx context.Context, args []string) error {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}
