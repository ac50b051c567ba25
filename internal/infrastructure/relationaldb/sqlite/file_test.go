package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/domain/services"
	"github.com/ersonp/lore-memory/internal/infrastructure/config"
	"github.com/ersonp/lore-memory/internal/infrastructure/embedder/hash"
)

func openFileRepo(t *testing.T, path string) *Repository {
	t.Helper()
	repo, err := NewRepository(config.SQLiteConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func TestFileDatabase_Persists(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file database test in short mode")
	}

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "story.db")

	repo := openFileRepo(t, dbPath)
	require.NoError(t, repo.InsertFact(ctx, testFact("a", 1, 0)))
	successor := testFact("b", 5, time.Second)
	oldID := "a"
	successor.SupersedesID = &oldID
	require.NoError(t, repo.SupersedeFact(ctx, "a", 4, successor))
	require.NoError(t, repo.LogAction(ctx, string(entities.OutcomeSuperseded), "b", map[string]any{"superseded_id": "a"}))
	require.NoError(t, repo.Close())

	repo2 := openFileRepo(t, dbPath)
	defer repo2.Close()

	old, err := repo2.FindFactByID(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, old)
	assert.Equal(t, entities.StatusSuperseded, old.Status)
	require.NotNil(t, old.ValidTo)
	assert.Equal(t, 4, *old.ValidTo)

	successors, err := repo2.FindSuccessors(ctx, "a")
	require.NoError(t, err)
	require.Len(t, successors, 1)
	assert.Equal(t, "b", successors[0].ID)

	audit, err := repo2.FindAuditLog(ctx, "b")
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "a", audit[0].Details["superseded_id"])

	count, err := repo2.CountEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "reopening does not reseed the built-in entities")
}

func TestFileDatabase_WALMode(t *testing.T) {
	repo := openFileRepo(t, filepath.Join(t.TempDir(), "wal.db"))
	defer repo.Close()

	var mode string
	require.NoError(t, repo.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, repo.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestFileDatabase_ConcurrentReads(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file database test in short mode")
	}

	ctx := context.Background()
	repo := openFileRepo(t, filepath.Join(t.TempDir(), "concurrent.db"))
	defer repo.Close()

	for i := range 100 {
		f := testFact(fmt.Sprintf("f-%03d", i), i%10+1, time.Duration(i)*time.Millisecond)
		f.Predicate = fmt.Sprintf("p%d", i)
		require.NoError(t, repo.InsertFact(ctx, f))
	}

	errCh := make(chan error, 10)
	for range 10 {
		go func() {
			facts, err := repo.QueryFacts(context.Background(), entities.FactFilter{EntityID: "alice"})
			if err != nil {
				errCh <- err
				return
			}
			if len(facts) != 100 {
				errCh <- fmt.Errorf("expected 100 facts, got %d", len(facts))
				return
			}
			errCh <- nil
		}()
	}

	for range 10 {
		require.NoError(t, <-errCh)
	}
}

func aliceTrustsBob(canonical string, chapter int) entities.CandidateFact {
	return entities.CandidateFact{
		Type:          entities.FactTypeInterCharacter,
		Predicate:     "trusts",
		Subjects:      []string{"Alice"},
		Objects:       []string{"Bob"},
		CanonicalFact: canonical,
		Confidence:    0.9,
		ValidFrom:     chapter,
	}
}

// ingestConcurrently runs one Ingest per candidate, all at once, and fails
// the test on any error.
func ingestConcurrently(t *testing.T, store *services.FactStore, candidates []entities.CandidateFact) []*entities.IngestResult {
	t.Helper()
	results := make([]*entities.IngestResult, len(candidates))
	errs := make([]error, len(candidates))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range candidates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i], errs[i] = store.Ingest(context.Background(), candidates[i])
		}()
	}
	close(start)
	wg.Wait()
	for i := range errs {
		require.NoError(t, errs[i], "candidate %d", i)
	}
	return results
}

func TestFileDatabase_ConcurrentIngest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file database test in short mode")
	}

	const writers = 8

	newStore := func(t *testing.T) (*Repository, *services.FactStore) {
		repo := openFileRepo(t, filepath.Join(t.TempDir(), "memory.db"))
		t.Cleanup(func() { repo.Close() })
		registry := services.NewEntityRegistry(repo, nil)
		return repo, services.NewFactStore(repo, registry, services.WithEmbedder(hash.NewEmbedder(32)))
	}

	activeFacts := func(t *testing.T, repo *Repository) []entities.Fact {
		t.Helper()
		facts, err := repo.QueryFacts(context.Background(), entities.FactFilter{Predicates: []string{"trusts"}})
		require.NoError(t, err)
		return facts
	}

	t.Run("identical candidates are stored once", func(t *testing.T) {
		for range 10 {
			repo, store := newStore(t)
			candidates := make([]entities.CandidateFact, writers)
			for i := range candidates {
				candidates[i] = aliceTrustsBob("Alice trusts Bob", 1)
			}

			results := ingestConcurrently(t, store, candidates)

			all, err := repo.QueryFacts(context.Background(), entities.FactFilter{Status: entities.StatusAny})
			require.NoError(t, err)
			require.Len(t, all, 1)
			created := 0
			for _, res := range results {
				assert.Equal(t, all[0].ID, res.FactID)
				if res.Outcome == entities.OutcomeCreated {
					created++
				}
			}
			assert.Equal(t, 1, created)
		}
	})

	t.Run("concurrent superseders form one chain", func(t *testing.T) {
		for range 10 {
			repo, store := newStore(t)
			first, err := store.Ingest(context.Background(), aliceTrustsBob("Alice trusts Bob", 1))
			require.NoError(t, err)

			candidates := make([]entities.CandidateFact, writers)
			for i := range candidates {
				candidates[i] = aliceTrustsBob(fmt.Sprintf("Alice trusts Bob %d", i), 2+i)
			}
			ingestConcurrently(t, store, candidates)

			active := activeFacts(t, repo)
			require.Len(t, active, 1)
			assert.NotEqual(t, first.FactID, active[0].ID)

			// Walking back from the active fact visits every version once.
			chain, err := store.QuerySupersessionChain(context.Background(), active[0].ID)
			require.NoError(t, err)
			require.Len(t, chain.Older, writers)
			assert.Equal(t, first.FactID, chain.Older[0].ID)
			for _, f := range chain.Older {
				assert.Equal(t, entities.StatusSuperseded, f.Status)
				require.NotNil(t, f.ValidTo)
				assert.GreaterOrEqual(t, *f.ValidTo, f.ValidFrom)
			}
		}
	})
}
