package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-memory/internal/application/handlers"
	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/domain/services"
)

type extractFlags struct {
	chapter   int
	dryRun    bool
	pattern   string
	recursive bool
}

func newExtractCmd() *cobra.Command {
	var flags extractFlags

	cmd := &cobra.Command{
		Use:   "extract <file|dir>",
		Short: "Extract facts from narrative text with an LLM",
		Long: `Reads narrative text, asks the configured LLM for candidate facts and
ingests them as facts starting at --chapter.

Given a directory, every file matching --pattern is processed in order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args[0], flags)
		},
	}

	cmd.Flags().IntVarP(&flags.chapter, "chapter", "c", 0, "Chapter the text belongs to (required)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Show candidates without storing them")
	cmd.Flags().StringVar(&flags.pattern, "pattern", "*.txt", "File pattern for directories")
	cmd.Flags().BoolVarP(&flags.recursive, "recursive", "r", false, "Descend into subdirectories")
	_ = cmd.MarkFlagRequired("chapter")

	return cmd
}

func runExtract(cmd *cobra.Command, path string, flags extractFlags) error {
	if flags.chapter < 1 {
		return errors.New("--chapter must be >= 1")
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	opts := handlers.ExtractOptions{Chapter: flags.chapter, DryRun: flags.dryRun}

	return withExtractHandler(ctx, func(handler *handlers.ExtractHandler) error {
		if !handlers.IsDirectory(path) {
			result, err := handler.Handle(ctx, path, opts)
			if err != nil {
				return err
			}
			if globalJSON {
				return writeJSON(out, result)
			}
			printExtractResult(out, result)
			return nil
		}

		progress := func(file string) {
			if !globalJSON {
				fmt.Fprintf(out, "Extracting %s...\n", file)
			}
		}
		batch, err := handler.HandleDirectory(ctx, path, flags.pattern, flags.recursive, progress, opts)
		if err != nil {
			return err
		}
		if globalJSON {
			return writeJSON(out, batchJSON{ExtractBatchResult: batch, Errors: errorStrings(batch.Errors)})
		}
		for _, r := range batch.FileResults {
			printExtractResult(out, r)
		}
		for _, e := range batch.Errors {
			fmt.Fprintf(out, "Error: %v\n", e)
		}
		fmt.Fprintf(out, "Processed %d files, %d candidates\n", batch.TotalFiles, batch.TotalCandidates)
		return nil
	})
}

func printExtractResult(w io.Writer, result *handlers.ExtractResult) {
	fmt.Fprintf(w, "Extracted %d candidates from %s\n", len(result.Candidates), result.FilePath)

	outcomes := make(map[int]services.BatchItemResult, len(result.Results))
	for _, r := range result.Results {
		outcomes[r.Index] = r
	}

	for i, c := range result.Candidates {
		fmt.Fprintf(w, "  %d. [%s] %s", i+1, c.Type, c.CanonicalFact)
		if r, ok := outcomes[i]; ok {
			fmt.Fprintf(w, " -> %s", candidateOutcome(r))
		}
		fmt.Fprintln(w)
	}
}

func candidateOutcome(r services.BatchItemResult) string {
	switch {
	case r.Err != nil && errors.Is(r.Err, entities.ErrInvalidFact):
		return "rejected: " + r.Err.Error()
	case r.Err != nil:
		return "failed: " + r.Err.Error()
	case r.Result.Outcome == entities.OutcomeSuperseded:
		return fmt.Sprintf("superseded %s", r.Result.SupersededID)
	default:
		return string(r.Result.Outcome)
	}
}

// batchJSON replaces the error values of a batch with their messages.
type batchJSON struct {
	*handlers.ExtractBatchResult
	Errors []string `json:"errors"`
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}
