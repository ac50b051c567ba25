package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-memory/internal/application/handlers"
	"github.com/ersonp/lore-memory/internal/infrastructure/config"
)

func newStoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stories",
		Short: "Manage stories",
		Long:  "Each story keeps its own fact database. Select one with --story.",
		RunE:  runStoriesList,
	}

	cmd.AddCommand(
		newStoriesListCmd(),
		newStoriesCreateCmd(),
	)

	return cmd
}

func newStoriesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all stories",
		Args:  cobra.NoArgs,
		RunE:  runStoriesList,
	}
}

func runStoriesList(cmd *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	stories, err := config.LoadStories(cwd)
	if err != nil {
		return fmt.Errorf("loading stories: %w", err)
	}

	if globalJSON {
		return writeJSON(cmd.OutOrStdout(), stories.Stories)
	}
	printStories(cmd.OutOrStdout(), stories)
	return nil
}

func printStories(w io.Writer, stories *config.StoriesConfig) {
	names := stories.Names()
	if len(names) == 0 {
		fmt.Fprintln(w, "No stories configured.")
		fmt.Fprintln(w, "Use 'loremem stories create NAME' to create a story.")
		return
	}

	fmt.Fprintf(w, "%-20s %-50s %s\n", "NAME", "DATABASE", "DESCRIPTION")
	fmt.Fprintf(w, "%-20s %-50s %s\n", "----", "--------", "-----------")
	for _, name := range names {
		entry := stories.Stories[name]
		fmt.Fprintf(w, "%-20s %-50s %s\n", name, entry.Database, entry.Description)
	}
}

func newStoriesCreateCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoriesCreate(cmd, args[0], description)
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Story description")

	return cmd
}

func runStoriesCreate(cmd *cobra.Command, name string, description string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	if !config.Exists(cwd) {
		return fmt.Errorf("loremem is not initialized in %s (run 'loremem init' first)", cwd)
	}

	entry, err := handlers.NewInitHandler(openRelationalDB).CreateStory(cmd.Context(), cwd, name, description)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created story %q at %s\n", name, entry.Database)
	return nil
}
