package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-memory/internal/domain/entities"
)

// filterFlags are the attribute and time filters shared by query, retrieve
// and export.
type filterFlags struct {
	types        []string
	predicates   []string
	status       string
	chapter      int
	chapterRange string
	validAt      int
	limit        int
	offset       int
}

func (f *filterFlags) register(cmd *cobra.Command, defaultLimit int) {
	flags := cmd.Flags()
	flags.StringSliceVarP(&f.types, "type", "t", nil, "Filter by fact type (inter-character, character-to-user, world)")
	flags.StringSliceVarP(&f.predicates, "predicate", "p", nil, "Filter by predicate")
	flags.StringVar(&f.status, "status", "", "Filter by status (active, superseded, any); defaults to active")
	flags.IntVarP(&f.chapter, "chapter", "c", 0, "Only facts valid throughout this chapter")
	flags.StringVar(&f.chapterRange, "range", "", "Only facts overlapping a chapter range, e.g. 3-7")
	flags.IntVar(&f.validAt, "valid-at", 0, "Only facts valid at this chapter")
	flags.IntVarP(&f.limit, "limit", "l", defaultLimit, "Maximum number of results")
	flags.IntVar(&f.offset, "offset", 0, "Number of results to skip")
}

// filter builds a FactFilter from the flags that were set on cmd.
func (f *filterFlags) filter(cmd *cobra.Command) (entities.FactFilter, error) {
	var filter entities.FactFilter

	types, err := parseTypes(f.types)
	if err != nil {
		return filter, err
	}
	filter.Types = types
	filter.Predicates = f.predicates

	filter.Status, err = parseStatus(f.status)
	if err != nil {
		return filter, err
	}

	set := 0
	if cmd.Flags().Changed("chapter") {
		if f.chapter < 1 {
			return filter, fmt.Errorf("--chapter must be >= 1, got %d", f.chapter)
		}
		filter.Chapter = &f.chapter
		set++
	}
	if f.chapterRange != "" {
		r, err := parseRange(f.chapterRange)
		if err != nil {
			return filter, err
		}
		filter.Range = r
		set++
	}
	if cmd.Flags().Changed("valid-at") {
		if f.validAt < 1 {
			return filter, fmt.Errorf("--valid-at must be >= 1, got %d", f.validAt)
		}
		filter.ValidAt = &f.validAt
		set++
	}
	if set > 1 {
		return filter, fmt.Errorf("use only one of --chapter, --range and --valid-at")
	}

	if f.limit < 0 || f.offset < 0 {
		return filter, fmt.Errorf("--limit and --offset must not be negative")
	}
	filter.Limit = f.limit
	filter.Offset = f.offset
	return filter, nil
}

func parseTypes(raw []string) ([]entities.FactType, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	types := make([]entities.FactType, 0, len(raw))
	for _, r := range raw {
		t := entities.FactType(strings.ToLower(strings.TrimSpace(r)))
		if !t.IsValid() {
			return nil, fmt.Errorf("invalid type %q, valid types: %v", r, entities.AllFactTypes)
		}
		types = append(types, t)
	}
	return types, nil
}

func parseStatus(raw string) (entities.FactStatus, error) {
	switch s := strings.ToLower(strings.TrimSpace(raw)); s {
	case "":
		return "", nil
	case "any", "all", string(entities.StatusAny):
		return entities.StatusAny, nil
	case string(entities.StatusActive), string(entities.StatusSuperseded):
		return entities.FactStatus(s), nil
	default:
		return "", fmt.Errorf("invalid status %q (valid: active, superseded, any)", raw)
	}
}

// parseRange parses "MIN-MAX" or a single chapter "N".
func parseRange(raw string) (*entities.ChapterRange, error) {
	lo, hi, found := strings.Cut(strings.TrimSpace(raw), "-")
	minCh, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return nil, fmt.Errorf("invalid range %q: %w", raw, err)
	}
	maxCh := minCh
	if found {
		maxCh, err = strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid range %q: %w", raw, err)
		}
	}
	if minCh < 1 || maxCh < minCh {
		return nil, fmt.Errorf("invalid range %q: need 1 <= min <= max", raw)
	}
	return &entities.ChapterRange{Min: minCh, Max: maxCh}, nil
}
