package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/domain/ports"
)

// IngestRecorder receives ingestion outcomes and failures. It is satisfied by
// the metrics package; nil disables recording.
type IngestRecorder interface {
	RecordIngest(ctx context.Context, outcome entities.IngestOutcome)
	RecordIngestError(ctx context.Context, kind string)
}

// FactStore owns conflict detection and the create, duplicate or supersede
// decision for incoming facts.
type FactStore struct {
	relationalDB ports.RelationalDB
	registry     *EntityRegistry
	embedder     ports.Embedder
	recorder     IngestRecorder
	logger       *slog.Logger
}

// FactStoreOption configures a FactStore.
type FactStoreOption func(*FactStore)

// WithEmbedder computes embeddings for facts on ingestion.
func WithEmbedder(e ports.Embedder) FactStoreOption {
	return func(s *FactStore) { s.embedder = e }
}

// WithIngestRecorder reports ingestion outcomes to r.
func WithIngestRecorder(r IngestRecorder) FactStoreOption {
	return func(s *FactStore) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) FactStoreOption {
	return func(s *FactStore) { s.logger = orDiscard(l) }
}

// NewFactStore creates a new FactStore.
func NewFactStore(relationalDB ports.RelationalDB, registry *EntityRegistry, opts ...FactStoreOption) *FactStore {
	s := &FactStore{
		relationalDB: relationalDB,
		registry:     registry,
		logger:       orDiscard(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// maxIngestAttempts bounds how often an ingestion is replayed after a
// concurrent writer changed the active facts of its conflict key.
const maxIngestAttempts = 10

// Ingest stores a candidate fact, resolving conflicts with active facts that
// make the same claim.
func (s *FactStore) Ingest(ctx context.Context, candidate entities.CandidateFact) (*entities.IngestResult, error) {
	return s.ingestRecorded(ctx, candidate, nil)
}

func (s *FactStore) ingestRecorded(ctx context.Context, candidate entities.CandidateFact, embedding []float32) (*entities.IngestResult, error) {
	result, err := s.ingest(ctx, candidate, embedding)
	if err != nil {
		s.recordError(ctx, err)
		return nil, err
	}
	if s.recorder != nil {
		s.recorder.RecordIngest(ctx, result.Outcome)
	}
	return result, nil
}

// ingest validates and resolves the candidate, then applies it. A non-nil
// embedding is used as is; otherwise the fact is embedded on first need.
func (s *FactStore) ingest(ctx context.Context, candidate entities.CandidateFact, embedding []float32) (*entities.IngestResult, error) {
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	subjectIDs, err := s.registry.ResolveAll(ctx, candidate.Subjects)
	if err != nil {
		return nil, fmt.Errorf("resolving subjects: %w", err)
	}
	objectIDs, err := s.registry.ResolveAll(ctx, candidate.Objects)
	if err != nil {
		return nil, fmt.Errorf("resolving objects: %w", err)
	}

	now := timeNow()
	fact := &entities.Fact{
		ID:            newID(),
		Type:          candidate.Type,
		Predicate:     strings.TrimSpace(candidate.Predicate),
		SubjectIDs:    subjectIDs,
		ObjectIDs:     objectIDs,
		CanonicalFact: candidate.CanonicalFact,
		RawContent:    candidate.RawContent,
		Confidence:    candidate.Confidence,
		ValidFrom:     candidate.ValidFrom,
		Embedding:     embedding,
		Status:        entities.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	a := &application{fact: fact, embedText: candidate.EmbeddingText(), embedded: embedding != nil}

	for attempt := 1; ; attempt++ {
		result, err := s.apply(ctx, a)
		if err == nil || !errors.Is(err, entities.ErrFactConflict) || attempt == maxIngestAttempts {
			return result, err
		}
		s.logger.Debug("active facts changed concurrently, retrying",
			"key", fact.ConflictKey().String(), "attempt", attempt)
	}
}

// application is one candidate on its way into the store. It survives
// retries so the fact keeps its id and is embedded at most once.
type application struct {
	fact      *entities.Fact
	embedText string
	embedded  bool
}

// apply reads the active facts of the conflict key and writes the outcome.
// The repository rejects the write with ErrFactConflict when another writer
// got there first, and apply is then run again on fresh state.
func (s *FactStore) apply(ctx context.Context, a *application) (*entities.IngestResult, error) {
	fact := a.fact
	key := fact.ConflictKey()

	conflicts, err := s.relationalDB.FindActiveByConflictKey(ctx, key)
	if err != nil {
		return nil, storageErr("finding conflicting facts", err)
	}

	for i := range conflicts {
		if conflicts[i].CanonicalFact == fact.CanonicalFact {
			s.logger.Debug("duplicate fact", "fact_id", conflicts[i].ID, "key", key.String())
			s.audit(ctx, entities.OutcomeDuplicate, conflicts[i].ID, map[string]any{"conflict_key": key.String()})
			return &entities.IngestResult{FactID: conflicts[i].ID, Outcome: entities.OutcomeDuplicate}, nil
		}
	}

	if !a.embedded {
		fact.Embedding = s.embed(ctx, a.embedText)
		a.embedded = true
	}

	if len(conflicts) == 0 {
		fact.SupersedesID = nil
		if err := s.relationalDB.InsertFact(ctx, fact); err != nil {
			return nil, storageErr("inserting fact", err)
		}
		s.audit(ctx, entities.OutcomeCreated, fact.ID, map[string]any{"conflict_key": key.String()})
		return &entities.IngestResult{FactID: fact.ID, Outcome: entities.OutcomeCreated}, nil
	}

	// Conflicts are ordered newest first; only the newest is superseded.
	old := conflicts[0]
	if len(conflicts) > 1 {
		s.logger.Warn("multiple active facts share a conflict key, superseding the newest",
			"key", key.String(), "count", len(conflicts), "superseded", old.ID)
	}

	validTo := supersededValidTo(old.ValidFrom, fact.ValidFrom)
	if fact.ValidFrom <= old.ValidFrom {
		s.logger.Warn("ingested fact does not advance the chapter of the fact it supersedes",
			"key", key.String(), "old_valid_from", old.ValidFrom, "new_valid_from", fact.ValidFrom)
	}

	oldID := old.ID
	fact.SupersedesID = &oldID
	if err := s.relationalDB.SupersedeFact(ctx, oldID, validTo, fact); err != nil {
		return nil, storageErr("superseding fact", err)
	}

	s.audit(ctx, entities.OutcomeSuperseded, fact.ID, map[string]any{
		"conflict_key":  key.String(),
		"superseded_id": oldID,
		"valid_to":      validTo,
	})
	return &entities.IngestResult{FactID: fact.ID, Outcome: entities.OutcomeSuperseded, SupersededID: oldID}, nil
}

// supersededValidTo closes the old window one chapter before the new fact
// starts, never below chapter 1 and never before the old fact's own start.
func supersededValidTo(oldValidFrom, newValidFrom int) int {
	return max(1, newValidFrom-1, oldValidFrom)
}

// BatchItemResult is the outcome for one candidate of a batch.
type BatchItemResult struct {
	Index  int
	Result *entities.IngestResult
	Err    error
}

// IngestBatch ingests candidates sequentially in the given order. Invalid
// candidates are reported per item; any other failure stops the batch and is
// returned together with the results gathered so far. Valid candidates are
// embedded up front in a single call.
func (s *FactStore) IngestBatch(ctx context.Context, candidates []entities.CandidateFact) ([]BatchItemResult, error) {
	embeddings := s.embedBatch(ctx, candidates)

	results := make([]BatchItemResult, 0, len(candidates))
	for i := range candidates {
		res, err := s.ingestRecorded(ctx, candidates[i], embeddings[i])
		results = append(results, BatchItemResult{Index: i, Result: res, Err: err})
		if err != nil && !errors.Is(err, entities.ErrInvalidFact) {
			return results, fmt.Errorf("ingesting candidate %d: %w", i, err)
		}
	}
	return results, nil
}

// embedBatch returns one embedding per candidate. Entries are nil for invalid
// candidates, and for all candidates when the batch call fails; those facts
// are embedded one by one during ingestion.
func (s *FactStore) embedBatch(ctx context.Context, candidates []entities.CandidateFact) [][]float32 {
	out := make([][]float32, len(candidates))
	if s.embedder == nil {
		return out
	}

	texts := make([]string, 0, len(candidates))
	indexes := make([]int, 0, len(candidates))
	for i := range candidates {
		if candidates[i].Validate() != nil {
			continue
		}
		texts = append(texts, candidates[i].EmbeddingText())
		indexes = append(indexes, i)
	}
	if len(texts) == 0 {
		return out
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}
	if err != nil {
		s.logger.Warn("batch embedding failed, embedding facts one by one", "count", len(texts), "err", err)
		return out
	}
	for j, i := range indexes {
		out[i] = vectors[j]
	}
	return out
}

// Get returns the fact with the given id, or nil.
func (s *FactStore) Get(ctx context.Context, id string) (*entities.Fact, error) {
	fact, err := s.relationalDB.FindFactByID(ctx, id)
	if err != nil {
		return nil, storageErr("finding fact", err)
	}
	return fact, nil
}

// Query returns facts matching the filter.
func (s *FactStore) Query(ctx context.Context, filter entities.FactFilter) ([]entities.Fact, error) {
	facts, err := s.relationalDB.QueryFacts(ctx, filter)
	if err != nil {
		return nil, storageErr("querying facts", err)
	}
	return facts, nil
}

// QuerySupersessionChain returns the ancestors (oldest first) and direct
// descendants (creation order) of a fact. Returns nil for unknown ids.
func (s *FactStore) QuerySupersessionChain(ctx context.Context, id string) (*entities.SupersessionChain, error) {
	fact, err := s.Get(ctx, id)
	if err != nil || fact == nil {
		return nil, err
	}

	var older []entities.Fact
	visited := map[string]bool{fact.ID: true}
	for prev := fact.SupersedesID; prev != nil; {
		if visited[*prev] {
			s.logger.Warn("supersession cycle detected", "fact_id", id, "at", *prev)
			break
		}
		visited[*prev] = true

		ancestor, err := s.Get(ctx, *prev)
		if err != nil {
			return nil, err
		}
		if ancestor == nil {
			break
		}
		older = append(older, *ancestor)
		prev = ancestor.SupersedesID
	}
	// Collected newest first.
	for i, j := 0, len(older)-1; i < j; i, j = i+1, j-1 {
		older[i], older[j] = older[j], older[i]
	}

	newer, err := s.relationalDB.FindSuccessors(ctx, fact.ID)
	if err != nil {
		return nil, storageErr("finding successors", err)
	}

	return &entities.SupersessionChain{
		Fact:  *fact,
		Older: nonNil(older),
		Newer: nonNil(newer),
	}, nil
}

// AttachEmbedding stores an embedding for an existing fact.
func (s *FactStore) AttachEmbedding(ctx context.Context, id string, embedding []float32) error {
	if err := s.relationalDB.UpdateEmbedding(ctx, id, embedding); err != nil {
		return storageErr("updating embedding", err)
	}
	return nil
}

// History returns the audit entries recorded for a fact, oldest first.
func (s *FactStore) History(ctx context.Context, id string) ([]entities.AuditEntry, error) {
	entries, err := s.relationalDB.FindAuditLog(ctx, id)
	if err != nil {
		return nil, storageErr("finding audit log", err)
	}
	return entries, nil
}

// Stats returns counts by status and type plus the number of entities.
func (s *FactStore) Stats(ctx context.Context) (*entities.Stats, error) {
	byStatus, err := s.relationalDB.CountFactsByStatus(ctx)
	if err != nil {
		return nil, storageErr("counting facts by status", err)
	}
	byType, err := s.relationalDB.CountFactsByType(ctx)
	if err != nil {
		return nil, storageErr("counting facts by type", err)
	}
	entityCount, err := s.registry.Count(ctx)
	if err != nil {
		return nil, storageErr("counting entities", err)
	}

	total := 0
	for _, n := range byStatus {
		total += n
	}
	return &entities.Stats{
		TotalFacts: total,
		ByStatus:   byStatus,
		ByType:     byType,
		Entities:   entityCount,
	}, nil
}

// embed returns the embedding for text, or nil when no embedder is set or
// embedding fails. A missing embedding only lowers the semantic score.
func (s *FactStore) embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("embedding fact failed, storing without embedding", "err", err)
		return nil
	}
	return vec
}

func (s *FactStore) audit(ctx context.Context, outcome entities.IngestOutcome, factID string, details map[string]any) {
	if err := s.relationalDB.LogAction(ctx, string(outcome), factID, details); err != nil {
		s.logger.Warn("writing audit entry failed", "fact_id", factID, "err", err)
	}
}

func (s *FactStore) recordError(ctx context.Context, err error) {
	kind := "storage"
	if errors.Is(err, entities.ErrInvalidFact) {
		kind = "validation"
	}
	s.logger.Debug("ingest failed", "kind", kind, "err", err)
	if s.recorder != nil {
		s.recorder.RecordIngestError(ctx, kind)
	}
}

// storageErr wraps a repository failure as a retryable storage error.
func storageErr(op string, err error) error {
	if errors.Is(err, entities.ErrStorage) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, entities.ErrStorage, err)
}

func nonNil(facts []entities.Fact) []entities.Fact {
	if facts == nil {
		return []entities.Fact{}
	}
	return facts
}
