package mocks

import (
	"context"

	"github.com/ersonp/lore-memory/internal/domain/entities"
)

// LLMClient is a mock implementation of ports.LLMClient.
type LLMClient struct {
	// ExtractCandidates return values
	Candidates []entities.CandidateFact
	ExtractErr error

	// Call tracking
	Texts    []string
	Chapters []int
}

// ExtractCandidates returns the configured candidates stamped with chapter.
func (m *LLMClient) ExtractCandidates(_ context.Context, text string, chapter int) ([]entities.CandidateFact, error) {
	m.Texts = append(m.Texts, text)
	m.Chapters = append(m.Chapters, chapter)
	if m.ExtractErr != nil {
		return nil, m.ExtractErr
	}
	result := make([]entities.CandidateFact, len(m.Candidates))
	for i, c := range m.Candidates {
		c.ValidFrom = chapter
		result[i] = c
	}
	return result, nil
}
