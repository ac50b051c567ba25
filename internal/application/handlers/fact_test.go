package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-memory/internal/domain/entities"
)

func TestFactHandler_HandleChain(t *testing.T) {
	f := newHandlerFixture(t)
	v1 := f.ingest(t, relates("Frodo", "carries", "Ring", "Frodo carries the Ring", 1))
	v2 := f.ingest(t, relates("Frodo", "carries", "Ring", "Frodo lost the Ring", 9))

	chain, err := f.facts.HandleChain(t.Context(), v1.FactID)
	require.NoError(t, err)
	assert.Empty(t, chain.Older)
	require.Len(t, chain.Newer, 1)
	assert.Equal(t, v2.FactID, chain.Newer[0].ID)
	require.NotNil(t, chain.Fact.ValidTo)
	assert.Equal(t, 8, *chain.Fact.ValidTo)

	_, err = f.facts.HandleChain(t.Context(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fact not found")
}

func TestFactHandler_HandleHistory(t *testing.T) {
	f := newHandlerFixture(t)
	v1 := f.ingest(t, relates("Frodo", "carries", "Ring", "Frodo carries the Ring", 1))
	f.ingest(t, relates("Frodo", "carries", "Ring", "Frodo carries the Ring", 2))

	entries, err := f.facts.HandleHistory(t.Context(), v1.FactID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, string(entities.OutcomeCreated), entries[0].Action)

	none, err := f.facts.HandleHistory(t.Context(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, none)
}

func TestFactHandler_HandleStats(t *testing.T) {
	f := newHandlerFixture(t)
	f.ingest(t, relates("Frodo", "carries", "Ring", "Frodo carries the Ring", 1))
	f.ingest(t, relates("Frodo", "carries", "Ring", "Frodo lost the Ring", 9))

	stats, err := f.facts.HandleStats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFacts)
	assert.Equal(t, 1, stats.ByStatus[entities.StatusActive])
	assert.Equal(t, 1, stats.ByStatus[entities.StatusSuperseded])
	assert.Equal(t, 4, stats.Entities)

	f.db.Err = errors.New("database is locked")
	_, err = f.facts.HandleStats(t.Context())
	require.Error(t, err)
	assert.True(t, entities.IsRetryable(err))
}

func TestEntityHandler(t *testing.T) {
	f := newHandlerFixture(t)
	f.ingest(t, relates("frodo  baggins", "carries", "Ring", "Frodo carries the Ring", 1))

	list, err := f.entities.HandleList(t.Context(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, list.Total)
	assert.Len(t, list.Entities, 4)

	e, err := f.entities.HandleLookup(t.Context(), "FRODO BAGGINS")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "Frodo Baggins", e.Name)

	e, err = f.entities.HandleLookup(t.Context(), "player")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, entities.UserEntityID, e.ID)

	missing, err := f.entities.HandleLookup(t.Context(), "Gollum")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
