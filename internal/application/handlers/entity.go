package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/domain/services"
)

// EntityHandler handles entity operations at the application layer.
type EntityHandler struct {
	registry *services.EntityRegistry
}

// NewEntityHandler creates a new EntityHandler.
func NewEntityHandler(registry *services.EntityRegistry) *EntityHandler {
	return &EntityHandler{
		registry: registry,
	}
}

// EntityListResult contains the result of listing entities.
type EntityListResult struct {
	Entities []*entities.Entity `json:"entities"`
	Total    int                `json:"total"`
}

// HandleList returns entities ordered by name with pagination.
func (h *EntityHandler) HandleList(ctx context.Context, limit, offset int) (*EntityListResult, error) {
	list, err := h.registry.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}

	count, err := h.registry.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting entities: %w", err)
	}

	if list == nil {
		list = []*entities.Entity{}
	}
	return &EntityListResult{
		Entities: list,
		Total:    count,
	}, nil
}

// HandleLookup finds an entity by name or alias without creating it.
// Returns nil for unknown names.
func (h *EntityHandler) HandleLookup(ctx context.Context, name string) (*entities.Entity, error) {
	id, err := h.registry.Lookup(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("looking up entity: %w", err)
	}
	if id == "" {
		return nil, nil
	}
	return h.registry.Get(ctx, id)
}
