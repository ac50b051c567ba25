package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-memory/internal/application/handlers"
	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/domain/services"
)

// recallLimit caps the facts shown by :recall.
const recallLimit = 5

type sessionFlags struct {
	chapter  int
	autoSave bool
}

func newSessionCmd() *cobra.Command {
	var flags sessionFlags

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Interactive narration with live extraction and recall",
		Long: `Enter story text interactively. Each passage (ended by an empty line) is
sent to the LLM and its candidate facts are queued for the current chapter.

Lines starting with ':' are commands; type :help to list them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, flags)
		},
	}

	cmd.Flags().IntVarP(&flags.chapter, "chapter", "c", 1, "Chapter to start at")
	cmd.Flags().BoolVar(&flags.autoSave, "save", false, "Ingest candidates as soon as they are extracted")

	return cmd
}

type sessionState struct {
	extraction *services.ExtractionService
	store      *services.FactStore
	query      *handlers.QueryHandler

	chapter  int
	autoSave bool
	pending  []entities.CandidateFact

	in  *bufio.Scanner
	out io.Writer
}

func runSession(cmd *cobra.Command, flags sessionFlags) error {
	if flags.chapter < 1 {
		return fmt.Errorf("--chapter must be >= 1, got %d", flags.chapter)
	}

	ctx := cmd.Context()

	return withInternalDeps(ctx, func(d *internalDeps) error {
		extraction, err := d.extractionService()
		if err != nil {
			return err
		}

		state := &sessionState{
			extraction: extraction,
			store:      d.store,
			query:      d.QueryHandler,
			chapter:    flags.chapter,
			autoSave:   flags.autoSave,
			in:         bufio.NewScanner(cmd.InOrStdin()),
			out:        cmd.OutOrStdout(),
		}
		return state.runInputLoop(ctx)
	})
}

func (s *sessionState) runInputLoop(ctx context.Context) error {
	fmt.Fprintf(s.out, "loremem session, chapter %d. End a passage with an empty line; :help lists commands.\n\n", s.chapter)

	var passage strings.Builder
	for {
		fmt.Fprint(s.out, "> ")
		if !s.in.Scan() {
			break
		}
		line := s.in.Text()

		if strings.HasPrefix(strings.TrimSpace(line), ":") {
			if s.handleCommand(ctx, strings.TrimSpace(line)) {
				return nil
			}
			continue
		}

		if strings.TrimSpace(line) != "" {
			if passage.Len() > 0 {
				passage.WriteString("\n")
			}
			passage.WriteString(line)
			continue
		}

		if passage.Len() > 0 {
			text := passage.String()
			passage.Reset()
			if err := s.processPassage(ctx, text); err != nil {
				fmt.Fprintf(s.out, "Error: %v\n", err)
			}
		}
	}

	if passage.Len() > 0 {
		if err := s.processPassage(ctx, passage.String()); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
	return s.in.Err()
}

// handleCommand runs a ':' command and reports whether the session should end.
func (s *sessionState) handleCommand(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "quit", "exit", "q":
		return s.handleQuit()
	case "save":
		if err := s.savePending(ctx); err != nil {
			fmt.Fprintf(s.out, "Error saving facts: %v\n", err)
		}
	case "discard":
		s.pending = nil
		fmt.Fprintln(s.out, "Pending candidates discarded.")
	case "list":
		s.showPending()
	case "chapter":
		s.setChapter(arg)
	case "next":
		s.chapter++
		fmt.Fprintf(s.out, "Now at chapter %d.\n", s.chapter)
	case "recall":
		if err := s.recall(ctx, arg); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	case "help":
		s.showHelp()
	default:
		fmt.Fprintf(s.out, "Unknown command %q; :help lists commands.\n", name)
	}
	return false
}

func (s *sessionState) handleQuit() bool {
	if len(s.pending) == 0 {
		fmt.Fprintln(s.out, "Goodbye!")
		return true
	}

	fmt.Fprintf(s.out, "Warning: %d pending candidates will be lost. Type :quit again to confirm.\n", len(s.pending))
	fmt.Fprint(s.out, "> ")
	if s.in.Scan() && strings.EqualFold(strings.TrimSpace(s.in.Text()), ":quit") {
		fmt.Fprintln(s.out, "Goodbye!")
		return true
	}
	return false
}

func (s *sessionState) setChapter(arg string) {
	ch, err := strconv.Atoi(arg)
	if err != nil || ch < 1 {
		fmt.Fprintf(s.out, "Usage: :chapter N (N >= 1)\n")
		return
	}
	s.chapter = ch
	fmt.Fprintf(s.out, "Now at chapter %d.\n", s.chapter)
}

func (s *sessionState) showHelp() {
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  :save          Ingest all pending candidates")
	fmt.Fprintln(s.out, "  :discard       Drop all pending candidates")
	fmt.Fprintln(s.out, "  :list          Show pending candidates")
	fmt.Fprintln(s.out, "  :chapter N     Move to chapter N")
	fmt.Fprintln(s.out, "  :next          Move to the next chapter")
	fmt.Fprintln(s.out, "  :recall TEXT   Show what is remembered about TEXT at this chapter")
	fmt.Fprintln(s.out, "  :quit          Leave the session")
}

func (s *sessionState) processPassage(ctx context.Context, text string) error {
	result, err := s.extraction.Extract(ctx, text, services.ExtractionOptions{
		Chapter: s.chapter,
		DryRun:  true,
	})
	if err != nil {
		return fmt.Errorf("extracting facts: %w", err)
	}

	if len(result.Candidates) == 0 {
		fmt.Fprintln(s.out, "No facts found in passage.")
		return nil
	}

	fmt.Fprintf(s.out, "Found %d candidates:\n", len(result.Candidates))
	for i, c := range result.Candidates {
		fmt.Fprintf(s.out, "  %d. [%s] %s\n", i+1, c.Type, c.CanonicalFact)
	}

	s.pending = append(s.pending, result.Candidates...)

	if s.autoSave {
		return s.savePending(ctx)
	}
	fmt.Fprintf(s.out, "Queued (%d pending). Use :save to ingest or :discard to drop.\n", len(s.pending))
	return nil
}

func (s *sessionState) savePending(ctx context.Context) error {
	if len(s.pending) == 0 {
		fmt.Fprintln(s.out, "No pending candidates.")
		return nil
	}

	results, err := s.store.IngestBatch(ctx, s.pending)
	for _, r := range results {
		fmt.Fprintf(s.out, "  %s -> %s\n", s.pending[r.Index].CanonicalFact, candidateOutcome(r))
	}
	if err != nil {
		// The batch stopped at its last result; keep it and the rest for a retry.
		if len(results) > 0 {
			s.pending = s.pending[len(results)-1:]
		}
		return err
	}

	fmt.Fprintf(s.out, "Ingested %d candidates.\n", len(results))
	s.pending = nil
	return nil
}

func (s *sessionState) showPending() {
	if len(s.pending) == 0 {
		fmt.Fprintln(s.out, "No pending candidates.")
		return
	}

	fmt.Fprintf(s.out, "Pending candidates (%d):\n", len(s.pending))
	for i, c := range s.pending {
		fmt.Fprintf(s.out, "  %d. [ch %d] [%s] %s\n", i+1, c.ValidFrom, c.Type, c.CanonicalFact)
	}
}

func (s *sessionState) recall(ctx context.Context, text string) error {
	if text == "" {
		fmt.Fprintln(s.out, "Usage: :recall TEXT")
		return nil
	}

	chapter := s.chapter
	result, err := s.query.HandleRetrieve(ctx, entities.RetrievalContext{
		Query:        text,
		ValidAt:      &chapter,
		IncludeWorld: true,
		Limit:        recallLimit,
	}, false)
	if err != nil {
		return err
	}
	printFacts(s.out, result.Facts, result.Names, result.Scores)
	return nil
}
