// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"
	"sync"
)

// Embedder is a mock implementation of ports.Embedder.
type Embedder struct {
	// EmbeddingResult is returned for any text not listed in ByText.
	EmbeddingResult []float32
	// ByText maps exact input text to the vector returned for it.
	ByText map[string][]float32
	Err    error
	// BatchErr fails EmbedBatch only.
	BatchErr error

	mu         sync.Mutex
	Calls      int
	BatchCalls int
}

// Embed returns the configured embedding or error.
func (m *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	return m.lookup(text)
}

// EmbedBatch returns embeddings for multiple texts.
func (m *Embedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.BatchCalls++
	m.mu.Unlock()
	if m.BatchErr != nil {
		return nil, m.BatchErr
	}
	result := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := m.lookup(text)
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

func (m *Embedder) lookup(text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if v, ok := m.ByText[text]; ok {
		return v, nil
	}
	return m.EmbeddingResult, nil
}
