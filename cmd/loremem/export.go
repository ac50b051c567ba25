package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-memory/internal/application/handlers"
	"github.com/ersonp/lore-memory/internal/domain/entities"
)

type exportFlags struct {
	filters filterFlags
	format  string
	output  string
}

type exporter struct {
	format string
	output string
	stdout io.Writer
}

func newExportCmd() *cobra.Command {
	var flags exportFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export facts to file",
		Long: `Exports facts to JSON, CSV, or markdown format.

CSV output uses the ingest column layout with entity names, so it can be
ingested into another story.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, &flags)
		},
	}

	flags.filters.register(cmd, DefaultExportLimit)
	cmd.Flags().StringVarP(&flags.format, "format", "f", "json", "Output format (json, csv, markdown)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runExport(cmd *cobra.Command, flags *exportFlags) error {
	if !slices.Contains(validFormats, flags.format) {
		return fmt.Errorf("invalid format %q, valid formats: %v", flags.format, validFormats)
	}

	filter, err := flags.filters.filter(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		result, err := d.QueryHandler.Handle(ctx, handlers.QueryRequest{FactFilter: filter})
		if err != nil {
			return err
		}
		if len(result.Facts) == 0 {
			return fmt.Errorf("no facts found to export")
		}

		e := &exporter{format: flags.format, output: flags.output, stdout: cmd.OutOrStdout()}
		return e.export(result.Facts, result.Names)
	})
}

func (e *exporter) export(facts []entities.Fact, names map[string]string) (err error) {
	w := e.stdout

	if e.output != "" {
		var f *os.File
		f, err = os.OpenFile(e.output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("creating file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing file: %w", cerr)
			}
		}()
		w = f
	}

	if err := e.formatFacts(w, facts, names); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	if e.output != "" {
		fmt.Fprintf(e.stdout, "Exported %d facts to %s\n", len(facts), e.output)
	}

	return nil
}

func (e *exporter) formatFacts(w io.Writer, facts []entities.Fact, names map[string]string) error {
	switch e.format {
	case "json":
		return formatJSON(w, facts, names)
	case "csv":
		return formatCSV(w, facts, names)
	case "markdown":
		return formatMarkdown(w, facts, names)
	default:
		return fmt.Errorf("unknown format: %s", e.format)
	}
}

type exportFact struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	Predicate     string   `json:"predicate"`
	Subjects      []string `json:"subjects"`
	Objects       []string `json:"objects,omitempty"`
	CanonicalFact string   `json:"canonical_fact"`
	RawContent    string   `json:"raw_content,omitempty"`
	Confidence    float64  `json:"confidence"`
	ValidFrom     int      `json:"valid_from"`
	ValidTo       *int     `json:"valid_to,omitempty"`
	Status        string   `json:"status"`
	SupersedesID  *string  `json:"supersedes_id,omitempty"`
}

func toExportFact(f *entities.Fact, names map[string]string) exportFact {
	return exportFact{
		ID:            f.ID,
		Type:          string(f.Type),
		Predicate:     f.Predicate,
		Subjects:      namesOf(f.SubjectIDs, names),
		Objects:       namesOf(f.ObjectIDs, names),
		CanonicalFact: f.CanonicalFact,
		RawContent:    f.RawContent,
		Confidence:    f.Confidence,
		ValidFrom:     f.ValidFrom,
		ValidTo:       f.ValidTo,
		Status:        string(f.Status),
		SupersedesID:  f.SupersedesID,
	}
}

func namesOf(ids []string, names map[string]string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := names[id]; ok {
			out = append(out, n)
		} else {
			out = append(out, id)
		}
	}
	return out
}

func formatJSON(w io.Writer, facts []entities.Fact, names map[string]string) error {
	exportFacts := make([]exportFact, 0, len(facts))
	for i := range facts {
		exportFacts = append(exportFacts, toExportFact(&facts[i], names))
	}
	return writeJSON(w, exportFacts)
}

func formatCSV(w io.Writer, facts []entities.Fact, names map[string]string) error {
	writer := csv.NewWriter(w)

	header := []string{"id", "type", "predicate", "subjects", "objects", "canonical_fact", "raw_content", "confidence", "valid_from", "valid_to", "status"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for i := range facts {
		f := toExportFact(&facts[i], names)
		validTo := ""
		if f.ValidTo != nil {
			validTo = strconv.Itoa(*f.ValidTo)
		}
		row := []string{
			f.ID,
			f.Type,
			f.Predicate,
			strings.Join(f.Subjects, ";"),
			strings.Join(f.Objects, ";"),
			f.CanonicalFact,
			f.RawContent,
			fmt.Sprintf("%.2f", f.Confidence),
			strconv.Itoa(f.ValidFrom),
			validTo,
			f.Status,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatMarkdown(w io.Writer, facts []entities.Fact, names map[string]string) error {
	if _, err := fmt.Fprintf(w, "# Exported Facts\n\nTotal: %d facts\n\n", len(facts)); err != nil {
		return err
	}

	if _, err := fmt.Fprint(w, "| Chapters | Type | Subjects | Predicate | Objects | Fact | Status |\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "|----------|------|----------|-----------|---------|------|--------|\n"); err != nil {
		return err
	}

	for i := range facts {
		f := &facts[i]
		if _, err := fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %s |\n",
			window(f),
			f.Type,
			escapeMarkdown(entityNames(f.SubjectIDs, names)),
			escapeMarkdown(f.Predicate),
			escapeMarkdown(entityNames(f.ObjectIDs, names)),
			escapeMarkdown(f.CanonicalFact),
			f.Status,
		); err != nil {
			return err
		}
	}

	return nil
}

func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
