package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/domain/services"
)

// FactHandler exposes single-fact inspection and store statistics.
type FactHandler struct {
	store *services.FactStore
}

// NewFactHandler creates a new fact handler.
func NewFactHandler(store *services.FactStore) *FactHandler {
	return &FactHandler{store: store}
}

// HandleChain returns the supersession history around a fact.
func (h *FactHandler) HandleChain(ctx context.Context, factID string) (*entities.SupersessionChain, error) {
	chain, err := h.store.QuerySupersessionChain(ctx, factID)
	if err != nil {
		return nil, fmt.Errorf("loading chain: %w", err)
	}
	if chain == nil {
		return nil, fmt.Errorf("fact not found: %s", factID)
	}
	return chain, nil
}

// HandleHistory returns the audit entries recorded for a fact.
func (h *FactHandler) HandleHistory(ctx context.Context, factID string) ([]entities.AuditEntry, error) {
	entries, err := h.store.History(ctx, factID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if entries == nil {
		entries = []entities.AuditEntry{}
	}
	return entries, nil
}

// HandleStats summarises the store.
func (h *FactHandler) HandleStats(ctx context.Context) (*entities.Stats, error) {
	stats, err := h.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading stats: %w", err)
	}
	return stats, nil
}
