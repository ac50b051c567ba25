package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/domain/services"
)

// QueryHandler handles filtered queries and ranked retrieval.
type QueryHandler struct {
	store     *services.FactStore
	registry  *services.EntityRegistry
	retriever *services.Retriever
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(store *services.FactStore, registry *services.EntityRegistry, retriever *services.Retriever) *QueryHandler {
	return &QueryHandler{
		store:     store,
		registry:  registry,
		retriever: retriever,
	}
}

// QueryRequest filters facts by attributes. Entity is a name, not an id.
type QueryRequest struct {
	Entity string
	entities.FactFilter
}

// QueryResult contains the result of a filtered query.
type QueryResult struct {
	Facts []entities.Fact `json:"facts"`
	// Names maps the entity ids referenced by Facts to canonical names.
	Names map[string]string `json:"names"`
}

// Handle returns facts matching the request. An unknown entity name matches
// nothing.
func (h *QueryHandler) Handle(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	filter := req.FactFilter
	if req.Entity != "" {
		id, err := h.registry.Lookup(ctx, req.Entity)
		if err != nil {
			return nil, fmt.Errorf("looking up entity: %w", err)
		}
		if id == "" {
			return &QueryResult{Facts: []entities.Fact{}, Names: map[string]string{}}, nil
		}
		filter.EntityID = id
	}

	facts, err := h.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying facts: %w", err)
	}

	names, err := h.names(ctx, facts)
	if err != nil {
		return nil, err
	}
	return &QueryResult{Facts: facts, Names: names}, nil
}

// RetrieveResult is a ranked page plus optional score breakdowns.
type RetrieveResult struct {
	*entities.RetrievalResult
	Names     map[string]string                  `json:"names"`
	Breakdown map[string]services.ScoreBreakdown `json:"breakdown,omitempty"`
}

// HandleRetrieve runs a ranked retrieval. With explain set and a text query,
// each returned fact gets its per-component scores.
func (h *QueryHandler) HandleRetrieve(ctx context.Context, rc entities.RetrievalContext, explain bool) (*RetrieveResult, error) {
	res, err := h.retriever.Retrieve(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("retrieving facts: %w", err)
	}

	names, err := h.names(ctx, res.Facts)
	if err != nil {
		return nil, err
	}

	out := &RetrieveResult{RetrievalResult: res, Names: names}
	if explain && rc.Query != "" {
		out.Breakdown, err = h.retriever.Explain(ctx, rc, res.Facts)
		if err != nil {
			return nil, fmt.Errorf("explaining scores: %w", err)
		}
	}
	return out, nil
}

func (h *QueryHandler) names(ctx context.Context, facts []entities.Fact) (map[string]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for i := range facts {
		for _, id := range facts[i].EntityIDs() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	names, err := h.registry.Names(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving entity names: %w", err)
	}
	return names, nil
}
