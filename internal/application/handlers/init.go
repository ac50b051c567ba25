// Package handlers contains application use case handlers.
package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/lore-memory/internal/domain/ports"
	"github.com/ersonp/lore-memory/internal/infrastructure/config"
)

// DefaultStoryName is the story created by init.
const DefaultStoryName = "default"

// DBOpener opens the fact store database at path.
type DBOpener func(path string) (ports.RelationalDB, error)

// InitHandler handles project and story initialization.
type InitHandler struct {
	open DBOpener
}

// NewInitHandler creates a new init handler.
func NewInitHandler(open DBOpener) *InitHandler {
	return &InitHandler{open: open}
}

// InitResult contains the result of initialization.
type InitResult struct {
	ConfigPath   string
	Story        string
	DatabasePath string
}

// Handle writes the default config and creates the default story.
func (h *InitHandler) Handle(ctx context.Context, basePath string) (*InitResult, error) {
	if config.Exists(basePath) {
		return nil, fmt.Errorf("loremem already initialized in %s", basePath)
	}

	if err := config.WriteDefault(basePath); err != nil {
		return nil, fmt.Errorf("writing default config: %w", err)
	}

	story, err := h.CreateStory(ctx, basePath, DefaultStoryName, "")
	if err != nil {
		return nil, err
	}

	return &InitResult{
		ConfigPath:   config.ConfigFilePath(basePath),
		Story:        DefaultStoryName,
		DatabasePath: story.Database,
	}, nil
}

// CreateStory registers a story and creates its database schema.
func (h *InitHandler) CreateStory(ctx context.Context, basePath, name, description string) (*config.StoryEntry, error) {
	stories, err := config.LoadStories(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading stories: %w", err)
	}
	if stories.Exists(name) {
		return nil, fmt.Errorf("story %q already exists", name)
	}

	entry := config.StoryEntry{
		Database:    config.SQLitePathForStory(basePath, name),
		Description: description,
	}

	db, err := h.open(entry.Database)
	if err != nil {
		return nil, fmt.Errorf("opening story database: %w", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	stories.Add(name, entry)
	if err := stories.Save(basePath); err != nil {
		return nil, fmt.Errorf("saving stories: %w", err)
	}
	return &entry, nil
}
