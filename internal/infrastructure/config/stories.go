package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// StoriesConfig holds story definitions (read/write). Every story keeps its
// facts in its own database.
type StoriesConfig struct {
	Stories map[string]StoryEntry `yaml:"stories,omitempty"`
}

// StoryEntry holds configuration for a specific story.
type StoryEntry struct {
	Database    string `yaml:"database"`
	Description string `yaml:"description,omitempty"`
}

// LoadStories loads story configuration from the .loremem directory.
func LoadStories(basePath string) (*StoriesConfig, error) {
	data, err := os.ReadFile(StoriesFilePath(basePath))
	if os.IsNotExist(err) {
		return &StoriesConfig{Stories: make(map[string]StoryEntry)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading stories file: %w", err)
	}

	var cfg StoriesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing stories file: %w", err)
	}

	if cfg.Stories == nil {
		cfg.Stories = make(map[string]StoryEntry)
	}

	return &cfg, nil
}

// Save writes the stories configuration to the stories file.
func (s *StoriesConfig) Save(basePath string) error {
	if err := os.MkdirAll(ConfigDir(basePath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling stories config: %w", err)
	}

	if err := os.WriteFile(StoriesFilePath(basePath), data, 0600); err != nil {
		return fmt.Errorf("writing stories file: %w", err)
	}

	return nil
}

// Add adds a story to the configuration.
func (s *StoriesConfig) Add(name string, entry StoryEntry) {
	if s.Stories == nil {
		s.Stories = make(map[string]StoryEntry)
	}
	s.Stories[name] = entry
}

// Get returns the configuration for a specific story.
func (s *StoriesConfig) Get(name string) (*StoryEntry, error) {
	if len(s.Stories) == 0 {
		return nil, errors.New("no stories configured (run 'loremem stories create <name>')")
	}

	entry, ok := s.Stories[name]
	if !ok {
		names := s.Names()
		if len(names) > 5 {
			names = append(names[:5], "...")
		}
		return nil, fmt.Errorf("story %q not found (available: %s)", name, strings.Join(names, ", "))
	}

	return &entry, nil
}

// Exists checks if a story exists in the configuration.
func (s *StoriesConfig) Exists(name string) bool {
	_, ok := s.Stories[name]
	return ok
}

// Names returns the story names in sorted order.
func (s *StoriesConfig) Names() []string {
	names := make([]string, 0, len(s.Stories))
	for name := range s.Stories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
