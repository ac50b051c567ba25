package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-memory/internal/application/handlers"
	"github.com/ersonp/lore-memory/internal/domain/entities"
)

func newQueryCmd() *cobra.Command {
	var (
		filters filterFlags
		entity  string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List facts by attribute and chapter",
		Long: `Lists stored facts matching every given filter, newest chapter first.

Examples:
  loremem query --entity Mara --valid-at 4
  loremem query --type world --status any
  loremem query --predicate trusts --range 2-6`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := filters.filter(cmd)
			if err != nil {
				return err
			}
			return runQuery(cmd, handlers.QueryRequest{Entity: entity, FactFilter: filter})
		},
	}

	filters.register(cmd, DefaultListLimit)
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "Only facts mentioning this entity (name or alias)")

	return cmd
}

func runQuery(cmd *cobra.Command, req handlers.QueryRequest) error {
	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		result, err := d.QueryHandler.Handle(ctx, req)
		if err != nil {
			return err
		}

		if globalJSON {
			return writeJSON(cmd.OutOrStdout(), result)
		}
		printFacts(cmd.OutOrStdout(), result.Facts, result.Names, nil)
		return nil
	})
}

type retrieveFlags struct {
	filters          filterFlags
	entities         []string
	includeWorld     bool
	preferred        []string
	referenceChapter int
	threshold        float64
	explain          bool
}

func newRetrieveCmd() *cobra.Command {
	var flags retrieveFlags

	cmd := &cobra.Command{
		Use:   "retrieve [text]",
		Short: "Recall the facts most relevant to a situation",
		Long: `Ranks candidate facts by semantic similarity, recency, confidence,
entity overlap and type preference. Without text, candidates are ordered
by chapter and confidence instead.

Examples:
  loremem retrieve "does Mara still trust Tobin" --valid-at 5 --include-world
  loremem retrieve --entity Mara --chapter 3
  loremem retrieve "what is the weather" --prefer world --explain`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := flags.context(cmd, args)
			if err != nil {
				return err
			}
			return runRetrieve(cmd, rc, flags.explain)
		},
	}

	flags.register(cmd)

	return cmd
}

func (f *retrieveFlags) register(cmd *cobra.Command) {
	f.filters.register(cmd, 0)
	cmd.Flags().StringSliceVarP(&f.entities, "entity", "e", nil, "Only facts mentioning any of these entities")
	cmd.Flags().BoolVarP(&f.includeWorld, "include-world", "w", false, "Also include world facts valid at the chapter")
	cmd.Flags().StringSliceVar(&f.preferred, "prefer", nil, "Fact types to boost in ranking")
	cmd.Flags().IntVar(&f.referenceChapter, "reference-chapter", 0, "Chapter recency is measured from")
	cmd.Flags().Float64Var(&f.threshold, "threshold", -1, "Minimum score (defaults to ranking.default_threshold)")
	cmd.Flags().BoolVar(&f.explain, "explain", false, "Show the score of each component")
}

// context builds the retrieval context. Limit and threshold defaults are
// applied later from the config.
func (f *retrieveFlags) context(cmd *cobra.Command, args []string) (entities.RetrievalContext, error) {
	var rc entities.RetrievalContext

	filter, err := f.filters.filter(cmd)
	if err != nil {
		return rc, err
	}
	if filter.Offset != 0 {
		return rc, fmt.Errorf("--offset is not supported by retrieve")
	}

	preferred, err := parseTypes(f.preferred)
	if err != nil {
		return rc, err
	}

	if len(args) == 1 {
		rc.Query = args[0]
	}
	rc.EntityNames = f.entities
	rc.Types = filter.Types
	rc.Predicates = filter.Predicates
	rc.Status = filter.Status
	rc.Chapter = filter.Chapter
	rc.Range = filter.Range
	rc.ValidAt = filter.ValidAt
	rc.IncludeWorld = f.includeWorld
	rc.PreferredTypes = preferred
	rc.Limit = filter.Limit
	rc.Threshold = f.threshold

	if cmd.Flags().Changed("reference-chapter") {
		if f.referenceChapter < 1 {
			return rc, fmt.Errorf("--reference-chapter must be >= 1, got %d", f.referenceChapter)
		}
		rc.ReferenceChapter = &f.referenceChapter
	}
	return rc, nil
}

func runRetrieve(cmd *cobra.Command, rc entities.RetrievalContext, explain bool) error {
	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		if rc.Limit == 0 {
			rc.Limit = d.Config.Retrieval.DefaultLimit
		}
		if rc.Threshold < 0 {
			rc.Threshold = d.Config.Ranking.DefaultThreshold
		}

		result, err := d.QueryHandler.HandleRetrieve(ctx, rc, explain)
		if err != nil {
			return err
		}

		if globalJSON {
			return writeJSON(cmd.OutOrStdout(), result)
		}
		printRetrieveResult(cmd.OutOrStdout(), result)
		return nil
	})
}

func printRetrieveResult(w io.Writer, result *handlers.RetrieveResult) {
	if len(result.Facts) < result.Total {
		fmt.Fprintf(w, "Showing %d of %d facts:\n\n", len(result.Facts), result.Total)
	}
	printFacts(w, result.Facts, result.Names, result.Scores)

	if len(result.Breakdown) == 0 {
		return
	}
	fmt.Fprintln(w, "Score breakdown:")
	fmt.Fprintf(w, "  %-4s %-9s %-8s %-10s %-8s %-6s %s\n", "#", "semantic", "recency", "confidence", "entities", "type", "total")
	for i := range result.Facts {
		b, ok := result.Breakdown[result.Facts[i].ID]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "  %-4d %-9.3f %-8.3f %-10.3f %-8.3f %-6.3f %.3f\n",
			i+1, b.Semantic, b.Recency, b.Confidence, b.EntityOverlap, b.TypeMatch, b.Total)
	}
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
