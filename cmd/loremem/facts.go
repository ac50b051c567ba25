package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-memory/internal/domain/entities"
)

func newChainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chain <fact-id>",
		Short: "Show the versions a fact superseded and was superseded by",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				chain, err := d.FactHandler.HandleChain(ctx, args[0])
				if err != nil {
					return err
				}
				if globalJSON {
					return writeJSON(cmd.OutOrStdout(), chain)
				}
				printChain(cmd.OutOrStdout(), chain)
				return nil
			})
		},
	}
}

func printChain(w io.Writer, chain *entities.SupersessionChain) {
	for i := range chain.Older {
		fmt.Fprintf(w, "   %s  [%s] %s\n", chain.Older[i].ID, window(&chain.Older[i]), chain.Older[i].CanonicalFact)
	}
	fmt.Fprintf(w, "=> %s  [%s] %s\n", chain.Fact.ID, window(&chain.Fact), chain.Fact.CanonicalFact)
	for i := range chain.Newer {
		fmt.Fprintf(w, "   %s  [%s] %s\n", chain.Newer[i].ID, window(&chain.Newer[i]), chain.Newer[i].CanonicalFact)
	}
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <fact-id>",
		Short: "Show the ingestion decisions recorded for a fact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				entries, err := d.FactHandler.HandleHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if globalJSON {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				printHistory(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
}

func printHistory(w io.Writer, entries []entities.AuditEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history recorded.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-10s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action)
		for _, k := range sortedKeys(e.Details) {
			fmt.Fprintf(w, " %s=%v", k, e.Details[k])
		}
		fmt.Fprintln(w)
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show fact and entity counts for the story",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				stats, err := d.FactHandler.HandleStats(ctx)
				if err != nil {
					return err
				}
				if globalJSON {
					return writeJSON(cmd.OutOrStdout(), stats)
				}
				printStats(cmd.OutOrStdout(), d.Story, stats)
				return nil
			})
		},
	}
}

func printStats(w io.Writer, story string, stats *entities.Stats) {
	fmt.Fprintf(w, "Story:    %s\n", story)
	fmt.Fprintf(w, "Facts:    %d\n", stats.TotalFacts)
	for _, status := range []entities.FactStatus{entities.StatusActive, entities.StatusSuperseded} {
		fmt.Fprintf(w, "  %-18s %d\n", status, stats.ByStatus[status])
	}
	fmt.Fprintln(w, "By type:")
	for _, t := range entities.AllFactTypes {
		fmt.Fprintf(w, "  %-18s %d\n", t, stats.ByType[t])
	}
	fmt.Fprintf(w, "Entities: %d\n", stats.Entities)
}
