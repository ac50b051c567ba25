package ports

import (
	"context"

	"github.com/ersonp/lore-memory/internal/domain/entities"
)

// RelationalDB defines the interface for the durable entity and fact store.
// Lookups return (nil, nil) when nothing matches.
type RelationalDB interface {
	// EnsureSchema creates the database schema if it doesn't exist and seeds
	// the built-in user and world entities.
	EnsureSchema(ctx context.Context) error

	// Close closes the database connection.
	Close() error

	// Entity operations

	// FindEntityByName finds an entity whose canonical name or one of whose
	// aliases equals name, ignoring case.
	FindEntityByName(ctx context.Context, name string) (*entities.Entity, error)

	// FindEntityByID finds an entity by its ID.
	FindEntityByID(ctx context.Context, entityID string) (*entities.Entity, error)

	// FindEntitiesByIDs finds multiple entities by their IDs.
	FindEntitiesByIDs(ctx context.Context, ids []string) ([]*entities.Entity, error)

	// CreateEntity inserts a new entity. Returns an error wrapping
	// entities.ErrEntityExists when the canonical name is taken.
	CreateEntity(ctx context.Context, entity *entities.Entity) error

	// AddEntityAlias records an additional spelling for an entity.
	AddEntityAlias(ctx context.Context, entityID, alias string) error

	// ListEntities lists entities ordered by name with pagination.
	ListEntities(ctx context.Context, limit, offset int) ([]*entities.Entity, error)

	// CountEntities returns the total number of entities.
	CountEntities(ctx context.Context) (int, error)

	// Fact operations

	// InsertFact persists a new fact.
	InsertFact(ctx context.Context, fact *entities.Fact) error

	// SupersedeFact closes the window of the fact oldID at validTo, marks it
	// superseded and inserts newFact, as one atomic step. Nothing is changed
	// if any part fails.
	SupersedeFact(ctx context.Context, oldID string, validTo int, newFact *entities.Fact) error

	// FindFactByID finds a fact by its ID.
	FindFactByID(ctx context.Context, factID string) (*entities.Fact, error)

	// FindActiveByConflictKey returns the active facts sharing a conflict
	// key, most recently created first (ties: most recently inserted first).
	FindActiveByConflictKey(ctx context.Context, key entities.ConflictKey) ([]entities.Fact, error)

	// FindSuccessors returns facts whose supersedes_id is factID, in
	// creation order.
	FindSuccessors(ctx context.Context, factID string) ([]entities.Fact, error)

	// QueryFacts returns facts matching the filter, ordered by valid_from
	// descending then confidence descending.
	QueryFacts(ctx context.Context, filter entities.FactFilter) ([]entities.Fact, error)

	// UpdateEmbedding attaches an embedding to an existing fact.
	UpdateEmbedding(ctx context.Context, factID string, embedding []float32) error

	// CountFactsByStatus returns fact counts grouped by status.
	CountFactsByStatus(ctx context.Context) (map[entities.FactStatus]int, error)

	// CountFactsByType returns fact counts grouped by type.
	CountFactsByType(ctx context.Context) (map[entities.FactType]int, error)

	// LogAction logs an action to the audit log.
	LogAction(ctx context.Context, action string, factID string, details map[string]any) error

	// FindAuditLog finds audit log entries for a specific fact, oldest first.
	FindAuditLog(ctx context.Context, factID string) ([]entities.AuditEntry, error)
}
