package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/domain/ports"
)

// maxResolveAttempts bounds the retry-then-read loop when entity creation
// loses a race against a concurrent writer.
const maxResolveAttempts = 3

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// newID returns a new UUID string.
var newID = func() string { return uuid.New().String() }

// EntityRegistry maps free-text names to stable entity ids.
type EntityRegistry struct {
	relationalDB ports.RelationalDB
	logger       *slog.Logger
}

// NewEntityRegistry creates a new EntityRegistry.
func NewEntityRegistry(relationalDB ports.RelationalDB, logger *slog.Logger) *EntityRegistry {
	return &EntityRegistry{
		relationalDB: relationalDB,
		logger:       orDiscard(logger),
	}
}

// Resolve returns the id of the entity called name, creating it on first
// reference. "user"/"player" and "world"/"environment" always map to the
// built-in entities.
func (r *EntityRegistry) Resolve(ctx context.Context, name string) (string, error) {
	if id, ok := entities.BuiltinEntityID(name); ok {
		return id, nil
	}

	normalized := entities.NormalizeName(name)
	if normalized == "" {
		return "", fmt.Errorf("%w: entity name must not be blank", entities.ErrInvalidFact)
	}

	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		existing, err := r.relationalDB.FindEntityByName(ctx, normalized)
		if err != nil {
			return "", fmt.Errorf("finding entity %q: %w", normalized, err)
		}
		if existing != nil {
			r.recordAlias(ctx, existing, name)
			return existing.ID, nil
		}

		entity := &entities.Entity{
			ID:        newID(),
			Name:      normalized,
			Kind:      entities.EntityKindCharacter,
			Aliases:   []string{strings.TrimSpace(name)},
			CreatedAt: timeNow(),
		}
		err = r.relationalDB.CreateEntity(ctx, entity)
		if err == nil {
			r.logger.Debug("entity created", "id", entity.ID, "name", entity.Name)
			return entity.ID, nil
		}
		if !errors.Is(err, entities.ErrEntityExists) {
			return "", fmt.Errorf("creating entity %q: %w", normalized, err)
		}
		// Another writer created the same name first; read it back.
		r.logger.Debug("entity creation raced, retrying lookup", "name", normalized, "attempt", attempt)
	}

	return "", fmt.Errorf("resolving entity %q: %w: gave up after %d attempts", normalized, entities.ErrStorage, maxResolveAttempts)
}

// ResolveAll resolves every name in order.
func (r *EntityRegistry) ResolveAll(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, err := r.Resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Lookup finds an entity without creating it. Returns ("", nil) for unknown
// names.
func (r *EntityRegistry) Lookup(ctx context.Context, name string) (string, error) {
	if id, ok := entities.BuiltinEntityID(name); ok {
		return id, nil
	}
	normalized := entities.NormalizeName(name)
	if normalized == "" {
		return "", nil
	}
	existing, err := r.relationalDB.FindEntityByName(ctx, normalized)
	if err != nil {
		return "", fmt.Errorf("finding entity %q: %w", normalized, err)
	}
	if existing == nil {
		return "", nil
	}
	return existing.ID, nil
}

// Names maps entity ids to canonical names. Unknown ids are omitted.
func (r *EntityRegistry) Names(ctx context.Context, ids []string) (map[string]string, error) {
	found, err := r.relationalDB.FindEntitiesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("finding entities: %w", err)
	}
	names := make(map[string]string, len(found))
	for _, e := range found {
		names[e.ID] = e.Name
	}
	return names, nil
}

// Get finds an entity by its ID.
func (r *EntityRegistry) Get(ctx context.Context, id string) (*entities.Entity, error) {
	return r.relationalDB.FindEntityByID(ctx, id)
}

// List returns entities with pagination.
func (r *EntityRegistry) List(ctx context.Context, limit, offset int) ([]*entities.Entity, error) {
	return r.relationalDB.ListEntities(ctx, limit, offset)
}

// Count returns the number of known entities, built-ins included.
func (r *EntityRegistry) Count(ctx context.Context) (int, error) {
	return r.relationalDB.CountEntities(ctx)
}

// recordAlias remembers a new spelling. Failures are logged only; the
// resolution itself already succeeded.
func (r *EntityRegistry) recordAlias(ctx context.Context, entity *entities.Entity, raw string) {
	alias := strings.TrimSpace(raw)
	if alias == "" || strings.EqualFold(alias, entity.Name) || entity.HasAlias(alias) {
		return
	}
	if err := r.relationalDB.AddEntityAlias(ctx, entity.ID, alias); err != nil {
		r.logger.Warn("recording entity alias failed", "id", entity.ID, "alias", alias, "err", err)
	}
}
