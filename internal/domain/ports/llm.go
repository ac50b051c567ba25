// Package ports defines interfaces for external service communication.
package ports

import (
	"context"

	"github.com/ersonp/lore-memory/internal/domain/entities"
)

// LLMClient defines the interface for the extraction oracle that turns
// narrative text into candidate facts.
type LLMClient interface {
	// ExtractCandidates extracts candidate facts from the given text. The
	// chapter is used as valid_from for every candidate.
	ExtractCandidates(ctx context.Context, text string, chapter int) ([]entities.CandidateFact, error)
}
