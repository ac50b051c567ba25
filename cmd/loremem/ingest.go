package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-memory/internal/application/handlers"
	"github.com/ersonp/lore-memory/internal/domain/services"
)

type ingestFlags struct {
	format  string
	dryRun  bool
	chapter int
}

func newIngestCmd() *cobra.Command {
	var flags ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest candidate facts from JSON or CSV",
		Long: `Ingests candidate facts from a structured file, resolving conflicts
with the facts already stored.

CSV files need a header row with the columns type, predicate, subjects,
objects, canonical_fact, raw_content, confidence and valid_from. List
columns are separated by ';'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "auto", "File format (json, csv, auto)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Validate without saving")
	cmd.Flags().IntVarP(&flags.chapter, "chapter", "c", 0, "Chapter for rows without valid_from")

	return cmd
}

func runIngest(cmd *cobra.Command, filePath string, flags ingestFlags) error {
	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		opts := handlers.ImportOptions{
			Format:  flags.format,
			DryRun:  flags.dryRun,
			Chapter: flags.chapter,
		}

		d.Logger.Info("ingesting file", "path", filePath, "story", d.Story)

		result, err := d.ImportHandler.Handle(ctx, filePath, opts)
		if err != nil {
			return fmt.Errorf("ingesting file: %w", err)
		}

		if globalJSON {
			return writeJSON(cmd.OutOrStdout(), result)
		}
		printImportResult(cmd.OutOrStdout(), result, flags.dryRun)
		return nil
	})
}

func printImportResult(w io.Writer, result *services.ImportResult, dryRun bool) {
	if len(result.Errors) > 0 {
		fmt.Fprintf(w, "Rejected rows (%d):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e.Error())
		}
		fmt.Fprintln(w)
	}

	if dryRun {
		fmt.Fprintf(w, "Dry run: %d candidates would be ingested\n", result.Valid)
		return
	}
	fmt.Fprintf(w, "Created %d, superseded %d, duplicates %d\n",
		result.Created, result.Superseded, result.Duplicates)
}
