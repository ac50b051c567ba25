package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/infrastructure/parsers"
)

// ImportOptions controls import behavior.
type ImportOptions struct {
	DryRun bool // Validate without saving
	// Chapter is used for candidates that carry no valid_from.
	Chapter int
}

// ImportError represents an error for a specific candidate during import.
type ImportError struct {
	Line    int    // Line number (1-indexed, 0 if unknown)
	Message string // Human-readable error message
}

func (e ImportError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// ImportResult counts the outcome of an import.
type ImportResult struct {
	Created    int
	Superseded int
	Duplicates int
	Valid      int // candidates that passed validation
	Errors     []ImportError
}

// ImportService ingests candidates read from import files.
type ImportService struct {
	store *FactStore
}

// NewImportService creates a new import service.
func NewImportService(store *FactStore) *ImportService {
	return &ImportService{store: store}
}

// Import validates every candidate, then ingests the valid ones in file
// order. Invalid rows are reported, never stored.
func (s *ImportService) Import(ctx context.Context, raw []parsers.RawCandidate, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{}

	valid := make([]entities.CandidateFact, 0, len(raw))
	lines := make([]int, 0, len(raw))
	for i := range raw {
		line := raw[i].LineNum
		if line == 0 {
			line = i + 1
		}
		c := ToCandidate(&raw[i], opts.Chapter)
		if err := c.Validate(); err != nil {
			result.Errors = append(result.Errors, ImportError{Line: line, Message: err.Error()})
			continue
		}
		valid = append(valid, c)
		lines = append(lines, line)
	}
	result.Valid = len(valid)

	if opts.DryRun || len(valid) == 0 {
		return result, nil
	}

	items, err := s.store.IngestBatch(ctx, valid)
	for _, item := range items {
		switch {
		case item.Err != nil:
			result.Errors = append(result.Errors, ImportError{Line: lines[item.Index], Message: item.Err.Error()})
		case item.Result.Outcome == entities.OutcomeCreated:
			result.Created++
		case item.Result.Outcome == entities.OutcomeSuperseded:
			result.Superseded++
		case item.Result.Outcome == entities.OutcomeDuplicate:
			result.Duplicates++
		}
	}
	if err != nil && !errors.Is(err, entities.ErrInvalidFact) {
		return result, fmt.Errorf("importing candidates: %w", err)
	}
	return result, nil
}

// ToCandidate converts a parsed row. Confidence defaults to 1.0 and
// valid_from to chapter.
func ToCandidate(raw *parsers.RawCandidate, chapter int) entities.CandidateFact {
	confidence := entities.MaxConfidence
	if raw.Confidence != nil {
		confidence = *raw.Confidence
	}
	validFrom := raw.ValidFrom
	if validFrom == 0 {
		validFrom = chapter
	}
	return entities.CandidateFact{
		Type:          entities.FactType(raw.Type),
		Predicate:     raw.Predicate,
		Subjects:      raw.Subjects,
		Objects:       raw.Objects,
		CanonicalFact: raw.CanonicalFact,
		RawContent:    raw.RawContent,
		Confidence:    confidence,
		ValidFrom:     validFrom,
	}
}
