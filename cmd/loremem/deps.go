package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ersonp/lore-memory/internal/application/handlers"
	"github.com/ersonp/lore-memory/internal/domain/ports"
	"github.com/ersonp/lore-memory/internal/domain/services"
	"github.com/ersonp/lore-memory/internal/infrastructure/config"
	"github.com/ersonp/lore-memory/internal/infrastructure/embedder/hash"
	openaiembedder "github.com/ersonp/lore-memory/internal/infrastructure/embedder/openai"
	llm "github.com/ersonp/lore-memory/internal/infrastructure/llm/openai"
	"github.com/ersonp/lore-memory/internal/infrastructure/logger"
	"github.com/ersonp/lore-memory/internal/infrastructure/observe"
	"github.com/ersonp/lore-memory/internal/infrastructure/relationaldb/sqlite"
)

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - services and repositories are internal.
type Deps struct {
	Config        *config.Config
	Logger        *slog.Logger
	Story         string
	ImportHandler *handlers.ImportHandler
	QueryHandler  *handlers.QueryHandler
	FactHandler   *handlers.FactHandler
	EntityHandler *handlers.EntityHandler
}

// internalDeps holds all dependencies including low-level components.
type internalDeps struct {
	Deps
	relationalDB *sqlite.Repository
	store        *services.FactStore
}

// withDeps loads config and builds dependencies, then calls the provided function.
// It handles cleanup automatically.
func withDeps(ctx context.Context, fn func(*Deps) error) error {
	return withInternalDeps(ctx, func(d *internalDeps) error {
		return fn(&d.Deps)
	})
}

// withInternalDeps provides access to all dependencies including low-level components.
func withInternalDeps(ctx context.Context, fn func(*internalDeps) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := newLogger()

	story := storyName()
	dbPath, err := resolveDatabase(cwd, cfg, story)
	if err != nil {
		return err
	}

	relationalDB, err := sqlite.NewRepository(config.SQLiteConfig{Path: dbPath})
	if err != nil {
		return fmt.Errorf("creating sqlite repository: %w", err)
	}
	defer relationalDB.Close()

	if err := relationalDB.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring sqlite schema: %w", err)
	}

	emb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	metrics, err := observe.NewGlobalMetrics()
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	registry := services.NewEntityRegistry(relationalDB, log)
	store := services.NewFactStore(relationalDB, registry,
		services.WithEmbedder(emb),
		services.WithIngestRecorder(metrics),
		services.WithLogger(log),
	)
	retriever := services.NewRetriever(store, registry, emb, newRanker(cfg.Ranking),
		services.WithRetrieveRecorder(metrics),
		services.WithRetrieverLogger(log),
	)

	log.Debug("dependencies ready", "story", story, "database", dbPath, "embedder", cfg.Embedder.Provider)

	deps := &internalDeps{
		Deps: Deps{
			Config:        cfg,
			Logger:        log,
			Story:         story,
			ImportHandler: handlers.NewImportHandler(services.NewImportService(store)),
			QueryHandler:  handlers.NewQueryHandler(store, registry, retriever),
			FactHandler:   handlers.NewFactHandler(store),
			EntityHandler: handlers.NewEntityHandler(registry),
		},
		relationalDB: relationalDB,
		store:        store,
	}

	return fn(deps)
}

// withExtractHandler provides the LLM-backed extract handler. The LLM client
// is only built here so that other commands work without an API key.
func withExtractHandler(ctx context.Context, fn func(*handlers.ExtractHandler) error) error {
	return withInternalDeps(ctx, func(d *internalDeps) error {
		svc, err := d.extractionService()
		if err != nil {
			return err
		}
		return fn(handlers.NewExtractHandler(svc))
	})
}

func (d *internalDeps) extractionService() (*services.ExtractionService, error) {
	llmClient, err := llm.NewClient(d.Config.LLM)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	return services.NewExtractionService(llmClient, d.store, d.Logger), nil
}

func storyName() string {
	if globalStory == "" {
		return handlers.DefaultStoryName
	}
	return globalStory
}

// resolveDatabase returns the database path for story. An explicit
// sqlite.path in the config (or LOREMEM_DB) wins over the story registry.
func resolveDatabase(basePath string, cfg *config.Config, story string) (string, error) {
	if cfg.SQLite.Path != "" {
		return cfg.SQLite.Path, nil
	}

	stories, err := config.LoadStories(basePath)
	if err != nil {
		return "", fmt.Errorf("loading stories: %w", err)
	}

	entry, err := stories.Get(story)
	if err != nil {
		return "", err
	}
	if entry.Database == "" {
		return config.SQLitePathForStory(basePath, story), nil
	}
	return entry.Database, nil
}

func newEmbedder(cfg config.EmbedderConfig) (ports.Embedder, error) {
	switch cfg.Provider {
	case "", config.EmbedderHash:
		return hash.NewEmbedder(cfg.Dimensions), nil
	case config.EmbedderOpenAI:
		return openaiembedder.NewEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", cfg.Provider)
	}
}

func newRanker(cfg config.RankingConfig) *services.Ranker {
	w := cfg.Weights
	return services.NewRanker(services.Weights{
		Semantic:      w.Semantic,
		Recency:       w.Recency,
		Confidence:    w.Confidence,
		EntityOverlap: w.EntityOverlap,
		TypeMatch:     w.TypeMatch,
	}, cfg.RecencyLambda)
}

func newLogger() *slog.Logger {
	return logger.New(
		logger.WithDebug(globalDebug),
		logger.WithJSON(globalJSONLogs),
		logger.WithPretty(globalPretty),
	)
}

// openRelationalDB opens a story database for handlers that manage their own
// connections.
func openRelationalDB(path string) (ports.RelationalDB, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	repo, err := sqlite.NewRepository(config.SQLiteConfig{Path: path})
	if err != nil {
		return nil, err
	}
	return repo, nil
}
