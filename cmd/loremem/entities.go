package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-memory/internal/application/handlers"
	"github.com/ersonp/lore-memory/internal/domain/entities"
)

func newEntitiesCmd() *cobra.Command {
	var (
		lookup string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List entities in a story",
		Long: `List every entity the story has seen, ordered by name.

Entities are created the first time a fact names them. Use --lookup to
resolve a name or alias without creating anything.

Examples:
  loremem entities
  loremem entities --lookup "player"
  loremem entities --limit 20 --offset 40`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEntities(cmd, lookup, limit, offset)
		},
	}

	cmd.Flags().StringVar(&lookup, "lookup", "", "Resolve a single name or alias")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of entities to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of entities to skip")

	return cmd
}

func runEntities(cmd *cobra.Command, lookup string, limit, offset int) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	return withDeps(ctx, func(d *Deps) error {
		if lookup != "" {
			entity, err := d.EntityHandler.HandleLookup(ctx, lookup)
			if err != nil {
				return err
			}
			if entity == nil {
				return fmt.Errorf("no entity named %q", lookup)
			}
			if globalJSON {
				return writeJSON(out, entity)
			}
			printEntity(out, entity)
			return nil
		}

		result, err := d.EntityHandler.HandleList(ctx, limit, offset)
		if err != nil {
			return err
		}
		if globalJSON {
			return writeJSON(out, result)
		}
		printEntityList(out, result)
		return nil
	})
}

func printEntity(w io.Writer, e *entities.Entity) {
	fmt.Fprintf(w, "%s (%s)\n", e.Name, e.Kind)
	fmt.Fprintf(w, "  id:      %s\n", e.ID)
	if len(e.Aliases) > 0 {
		fmt.Fprintf(w, "  aliases: %s\n", strings.Join(e.Aliases, ", "))
	}
}

func printEntityList(w io.Writer, result *handlers.EntityListResult) {
	if len(result.Entities) == 0 {
		fmt.Fprintln(w, "No entities found.")
		return
	}

	fmt.Fprintf(w, "Entities (%d total):\n\n", result.Total)
	for _, e := range result.Entities {
		fmt.Fprintf(w, "  %-38s %-10s %s\n", e.ID, e.Kind, e.Name)
	}
}
