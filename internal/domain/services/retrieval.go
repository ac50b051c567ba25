package services

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/domain/ports"
)

// RetrieveRecorder receives retrieval timings. Nil disables recording.
type RetrieveRecorder interface {
	RecordRetrieve(ctx context.Context, elapsed time.Duration, results int)
}

// Retriever combines filtering, time-gating and ranking into a bounded
// result page.
type Retriever struct {
	store    *FactStore
	registry *EntityRegistry
	embedder ports.Embedder
	ranker   *Ranker
	recorder RetrieveRecorder
	logger   *slog.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithRetrieveRecorder reports retrieval timings to r.
func WithRetrieveRecorder(r RetrieveRecorder) RetrieverOption {
	return func(rt *Retriever) { rt.recorder = r }
}

// WithRetrieverLogger sets the logger.
func WithRetrieverLogger(l *slog.Logger) RetrieverOption {
	return func(rt *Retriever) { rt.logger = orDiscard(l) }
}

// NewRetriever creates a new Retriever. embedder may be nil, in which case
// the semantic component is always 0.
func NewRetriever(store *FactStore, registry *EntityRegistry, embedder ports.Embedder, ranker *Ranker, opts ...RetrieverOption) *Retriever {
	rt := &Retriever{
		store:    store,
		registry: registry,
		embedder: embedder,
		ranker:   ranker,
		logger:   orDiscard(nil),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Retrieve returns the facts relevant to rc. An empty result is not an error.
func (rt *Retriever) Retrieve(ctx context.Context, rc entities.RetrievalContext) (*entities.RetrievalResult, error) {
	start := time.Now()

	candidates, err := rt.candidates(ctx, rc)
	if err != nil {
		return nil, err
	}

	var result *entities.RetrievalResult
	if strings.TrimSpace(rc.Query) == "" {
		result = rt.ordered(candidates, rc.EffectiveLimit())
	} else {
		result, err = rt.ranked(ctx, rc, candidates)
		if err != nil {
			return nil, err
		}
	}

	if rt.recorder != nil {
		rt.recorder.RecordRetrieve(ctx, time.Since(start), len(result.Facts))
	}
	rt.logger.Debug("retrieved facts",
		"query", rc.Query, "candidates", len(candidates), "total", result.Total, "returned", len(result.Facts))
	return result, nil
}

// Explain returns the score breakdown of each fact against the query in rc.
func (rt *Retriever) Explain(ctx context.Context, rc entities.RetrievalContext, facts []entities.Fact) (map[string]ScoreBreakdown, error) {
	q := rt.rankQuery(ctx, rc)
	names, err := rt.namesFor(ctx, facts)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ScoreBreakdown, len(facts))
	for i := range facts {
		out[facts[i].ID] = rt.ranker.Breakdown(&facts[i], names, q)
	}
	return out, nil
}

// candidates loads every fact passing the filters. Entity queries and the
// world query run concurrently and are merged by id.
func (rt *Retriever) candidates(ctx context.Context, rc entities.RetrievalContext) ([]entities.Fact, error) {
	base := entities.FactFilter{
		Types:      rc.Types,
		Predicates: rc.Predicates,
		Status:     rc.Status,
		Chapter:    rc.Chapter,
		Range:      rc.Range,
		ValidAt:    rc.ValidAt,
	}

	var filters []entities.FactFilter
	if len(rc.EntityNames) > 0 {
		for _, name := range rc.EntityNames {
			id, err := rt.registry.Lookup(ctx, name)
			if err != nil {
				return nil, storageErr("looking up entity", err)
			}
			if id == "" {
				rt.logger.Debug("unknown entity in retrieval filter", "name", name)
				continue
			}
			f := base
			f.EntityID = id
			filters = append(filters, f)
		}
	} else {
		filters = append(filters, base)
	}

	if rc.IncludeWorld {
		filters = append(filters, entities.FactFilter{
			Types:   []entities.FactType{entities.FactTypeWorld},
			Status:  rc.Status,
			ValidAt: rc.TimeChapter(),
		})
	}

	batches := make([][]entities.Fact, len(filters))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range filters {
		g.Go(func() error {
			facts, err := rt.store.Query(gctx, f)
			if err != nil {
				return fmt.Errorf("querying candidates: %w", err)
			}
			batches[i] = facts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var merged []entities.Fact
	for _, batch := range batches {
		for _, f := range batch {
			if !seen[f.ID] {
				seen[f.ID] = true
				merged = append(merged, f)
			}
		}
	}
	return merged, nil
}

func (rt *Retriever) ordered(facts []entities.Fact, limit int) *entities.RetrievalResult {
	slices.SortStableFunc(facts, func(a, b entities.Fact) int {
		return cmp.Or(
			cmp.Compare(b.ValidFrom, a.ValidFrom),
			cmp.Compare(b.Confidence, a.Confidence),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return &entities.RetrievalResult{
		Facts: truncate(facts, limit),
		Total: len(facts),
	}
}

func (rt *Retriever) ranked(ctx context.Context, rc entities.RetrievalContext, facts []entities.Fact) (*entities.RetrievalResult, error) {
	q := rt.rankQuery(ctx, rc)
	names, err := rt.namesFor(ctx, facts)
	if err != nil {
		return nil, err
	}

	type scored struct {
		fact  entities.Fact
		score float64
	}
	kept := make([]scored, 0, len(facts))
	for i := range facts {
		s := rt.ranker.Score(&facts[i], names, q)
		if s < rc.Threshold {
			continue
		}
		kept = append(kept, scored{fact: facts[i], score: s})
	}

	slices.SortStableFunc(kept, func(a, b scored) int {
		return cmp.Or(
			cmp.Compare(b.score, a.score),
			cmp.Compare(b.fact.ValidFrom, a.fact.ValidFrom),
			cmp.Compare(a.fact.ID, b.fact.ID),
		)
	})

	total := len(kept)
	kept = truncate(kept, rc.EffectiveLimit())
	result := &entities.RetrievalResult{
		Facts:  make([]entities.Fact, 0, len(kept)),
		Total:  total,
		Scores: make(map[string]float64, len(kept)),
	}
	for _, k := range kept {
		result.Facts = append(result.Facts, k.fact)
		result.Scores[k.fact.ID] = k.score
	}
	return result, nil
}

// rankQuery builds the query bundle. An embedder failure only removes the
// semantic component.
func (rt *Retriever) rankQuery(ctx context.Context, rc entities.RetrievalContext) RankQuery {
	q := RankQuery{
		ReferenceChapter: rc.ReferenceChapter,
		Mentions:         ExtractMentions(rc.Query),
		PreferredTypes:   rc.PreferredTypes,
	}
	if q.ReferenceChapter == nil {
		q.ReferenceChapter = rc.TimeChapter()
	}
	if rt.embedder != nil && strings.TrimSpace(rc.Query) != "" {
		vec, err := rt.embedder.Embed(ctx, rc.Query)
		if err != nil {
			rt.logger.Warn("embedding query failed, ranking without semantic score", "err", err)
		} else {
			q.Embedding = vec
		}
	}
	return q
}

func (rt *Retriever) namesFor(ctx context.Context, facts []entities.Fact) (map[string]string, error) {
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
	names, err := rt.registry.Names(ctx, ids)
	if err != nil {
		return nil, storageErr("resolving entity names", err)
	}
	return names, nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	if items == nil {
		return []T{}
	}
	return items
}
