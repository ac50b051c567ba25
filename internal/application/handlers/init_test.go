package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-memory/internal/domain/mocks"
	"github.com/ersonp/lore-memory/internal/domain/ports"
	"github.com/ersonp/lore-memory/internal/infrastructure/config"
)

func openerFor(db *mocks.RelationalDB, paths *[]string) DBOpener {
	return func(path string) (ports.RelationalDB, error) {
		*paths = append(*paths, path)
		return db, nil
	}
}

func TestInitHandler_Handle_Success(t *testing.T) {
	tmpDir := t.TempDir()
	var paths []string
	handler := NewInitHandler(openerFor(mocks.NewRelationalDB(), &paths))

	result, err := handler.Handle(t.Context(), tmpDir)

	require.NoError(t, err)
	assert.Contains(t, result.ConfigPath, "config.yaml")
	assert.Equal(t, DefaultStoryName, result.Story)
	assert.Equal(t, config.SQLitePathForStory(tmpDir, DefaultStoryName), result.DatabasePath)
	assert.Equal(t, []string{result.DatabasePath}, paths)

	assert.True(t, config.Exists(tmpDir))
	stories, err := config.LoadStories(tmpDir)
	require.NoError(t, err)
	assert.True(t, stories.Exists(DefaultStoryName))
}

func TestInitHandler_Handle_AlreadyInitialized(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, config.WriteDefault(tmpDir))

	var paths []string
	handler := NewInitHandler(openerFor(mocks.NewRelationalDB(), &paths))

	_, err := handler.Handle(t.Context(), tmpDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")
	assert.Empty(t, paths)
}

func TestInitHandler_CreateStory(t *testing.T) {
	tmpDir := t.TempDir()
	var paths []string
	handler := NewInitHandler(openerFor(mocks.NewRelationalDB(), &paths))

	entry, err := handler.CreateStory(t.Context(), tmpDir, "Iron Throne", "book one")
	require.NoError(t, err)
	assert.Equal(t, "book one", entry.Description)
	assert.Contains(t, entry.Database, "iron_throne")

	_, err = handler.CreateStory(t.Context(), tmpDir, "Iron Throne", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestInitHandler_CreateStory_SchemaError(t *testing.T) {
	tmpDir := t.TempDir()
	db := mocks.NewRelationalDB()
	db.Err = errors.New("disk full")
	var paths []string
	handler := NewInitHandler(openerFor(db, &paths))

	_, err := handler.CreateStory(t.Context(), tmpDir, "saga", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating schema")

	stories, err := config.LoadStories(tmpDir)
	require.NoError(t, err)
	assert.False(t, stories.Exists("saga"), "failed stories are not registered")
}
