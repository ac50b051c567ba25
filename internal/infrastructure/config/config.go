// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory name for loremem configuration.
	DefaultConfigDir = ".loremem"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultStoriesFile is the default stories file name.
	DefaultStoriesFile = "stories.yaml"
	// DefaultDatabaseFile is the per-story SQLite file name.
	DefaultDatabaseFile = "memory.db"
)

const (
	// EmbedderHash selects the deterministic hashing embedder.
	EmbedderHash = "hash"
	// EmbedderOpenAI selects the OpenAI embeddings API.
	EmbedderOpenAI = "openai"
)

var (
	// reNonAlphanumeric matches characters that aren't alphanumeric or underscore.
	reNonAlphanumeric = regexp.MustCompile(`[^a-z0-9_]`)
	// reMultipleUnderscores matches consecutive underscores.
	reMultipleUnderscores = regexp.MustCompile(`_+`)
)

// Config holds static infrastructure configuration (read-only after init).
type Config struct {
	LLM       LLMConfig       `yaml:"llm,omitempty"`
	Embedder  EmbedderConfig  `yaml:"embedder,omitempty"`
	SQLite    SQLiteConfig    `yaml:"sqlite,omitempty"`
	Ranking   RankingConfig   `yaml:"ranking,omitempty"`
	Retrieval RetrievalConfig `yaml:"retrieval,omitempty"`
}

// LLMConfig holds configuration for the extraction model.
type LLMConfig struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// EmbedderConfig holds configuration for the embedding provider.
type EmbedderConfig struct {
	Provider   string `yaml:"provider,omitempty"` // "hash" or "openai"
	Model      string `yaml:"model,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty"`
}

// SQLiteConfig holds configuration for the SQLite fact store.
type SQLiteConfig struct {
	// Path is the file path to the SQLite database, or ":memory:".
	// When empty the per-story path from SQLitePathForStory is used.
	Path string `yaml:"path,omitempty"`
}

// RankingConfig tunes relevance scoring.
type RankingConfig struct {
	Weights          WeightsConfig `yaml:"weights,omitempty"`
	RecencyLambda    float64       `yaml:"recency_lambda,omitempty"`
	DefaultThreshold float64       `yaml:"default_threshold,omitempty"`
}

// WeightsConfig holds the relative weight of each score component.
type WeightsConfig struct {
	Semantic      float64 `yaml:"semantic"`
	Recency       float64 `yaml:"recency"`
	Confidence    float64 `yaml:"confidence"`
	EntityOverlap float64 `yaml:"entity_overlap"`
	TypeMatch     float64 `yaml:"type_match"`
}

// RetrievalConfig holds retrieval defaults.
type RetrievalConfig struct {
	DefaultLimit int `yaml:"default_limit,omitempty"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Embedder: EmbedderConfig{
			Provider:   EmbedderHash,
			Model:      "text-embedding-3-small",
			Dimensions: 64,
		},
		Ranking: RankingConfig{
			Weights: WeightsConfig{
				Semantic:      0.4,
				Recency:       0.25,
				Confidence:    0.1,
				EntityOverlap: 0.15,
				TypeMatch:     0.1,
			},
			RecencyLambda: 0.08,
		},
		Retrieval: RetrievalConfig{
			DefaultLimit: 50,
		},
	}
}

// Load loads configuration from the .loremem directory in the given path.
func Load(basePath string) (*Config, error) {
	configFile := ConfigFilePath(basePath)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'loremem init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Embedder.Provider {
	case EmbedderHash, EmbedderOpenAI:
	default:
		return fmt.Errorf("unknown embedder provider %q (valid: %s, %s)", c.Embedder.Provider, EmbedderHash, EmbedderOpenAI)
	}
	if c.Embedder.Dimensions < 0 {
		return fmt.Errorf("embedder dimensions must not be negative, got %d", c.Embedder.Dimensions)
	}
	if c.Ranking.RecencyLambda < 0 {
		return fmt.Errorf("ranking recency_lambda must not be negative, got %g", c.Ranking.RecencyLambda)
	}
	if t := c.Ranking.DefaultThreshold; t < 0 || t > 1 {
		return fmt.Errorf("ranking default_threshold must be within [0, 1], got %g", t)
	}
	if c.Retrieval.DefaultLimit < 0 {
		return fmt.Errorf("retrieval default_limit must not be negative, got %d", c.Retrieval.DefaultLimit)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = key
		}
		if c.Embedder.APIKey == "" {
			c.Embedder.APIKey = key
		}
	}
	if path := os.Getenv("LOREMEM_DB"); path != "" {
		c.SQLite.Path = path
	}
}

// ConfigDir returns the path to the .loremem config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// StoriesFilePath returns the path to the stories file.
func StoriesFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultStoriesFile)
}

// SanitizeStoryName converts a story name to a safe directory name.
func SanitizeStoryName(name string) string {
	name = strings.ToLower(name)

	// Replace spaces and hyphens with underscores
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")

	name = reNonAlphanumeric.ReplaceAllString(name, "")
	name = reMultipleUnderscores.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")

	if name == "" {
		return "default"
	}

	return name
}

// StoryDir returns the directory path for a given story.
func StoryDir(basePath, storyName string) string {
	return filepath.Join(basePath, DefaultConfigDir, "stories", SanitizeStoryName(storyName))
}

// SQLitePathForStory returns the SQLite database path for a given story.
func SQLitePathForStory(basePath, storyName string) string {
	return filepath.Join(StoryDir(basePath, storyName), DefaultDatabaseFile)
}
