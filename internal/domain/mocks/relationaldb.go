package mocks

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ersonp/lore-memory/internal/domain/entities"
)

// RelationalDB is an in-memory implementation of ports.RelationalDB.
type RelationalDB struct {
	mu sync.Mutex

	Entities map[string]*entities.Entity
	Facts    map[string]*entities.Fact
	Audit    []entities.AuditEntry

	// Err is returned by every method when set.
	Err error
	// InsertFactErr fails InsertFact and the insert half of SupersedeFact.
	InsertFactErr error
	// BeforeCreateEntity runs before an entity is inserted, outside the lock.
	// Tests use it to simulate a concurrent writer winning the race.
	BeforeCreateEntity func(entity *entities.Entity)
	// BeforeSupersede runs before a supersession is applied, outside the
	// lock. Tests use it to let a concurrent writer close the old fact first.
	BeforeSupersede func(oldID string)

	CreateEntityCalls int
	SupersedeCalls    int

	seq    int64
	seqOf  map[string]int64
	nextID int64
}

// NewRelationalDB creates a new mock RelationalDB with the built-in entities.
func NewRelationalDB() *RelationalDB {
	m := &RelationalDB{
		Entities: make(map[string]*entities.Entity),
		Facts:    make(map[string]*entities.Fact),
		seqOf:    make(map[string]int64),
	}
	for _, e := range entities.DefaultEntities() {
		m.Entities[e.ID] = &e
	}
	return m
}

// EnsureSchema creates the database schema if it doesn't exist.
func (m *RelationalDB) EnsureSchema(_ context.Context) error {
	return m.Err
}

// Close closes the database connection.
func (m *RelationalDB) Close() error {
	return nil
}

// Entity methods.

// FindEntityByName finds an entity by canonical name or alias.
func (m *RelationalDB) FindEntityByName(_ context.Context, name string) (*entities.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.findByNameLocked(name), nil
}

// findByNameLocked prefers a canonical name match over an alias match, as
// the SQLite repository does.
func (m *RelationalDB) findByNameLocked(name string) *entities.Entity {
	var aliased *entities.Entity
	for _, e := range m.Entities {
		if strings.EqualFold(e.Name, name) {
			return cloneEntity(e)
		}
		if aliased == nil && e.HasAlias(name) {
			aliased = e
		}
	}
	if aliased == nil {
		return nil
	}
	return cloneEntity(aliased)
}

// FindEntityByID finds an entity by its ID.
func (m *RelationalDB) FindEntityByID(_ context.Context, entityID string) (*entities.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	e, ok := m.Entities[entityID]
	if !ok {
		return nil, nil
	}
	return cloneEntity(e), nil
}

// FindEntitiesByIDs finds multiple entities by their IDs.
func (m *RelationalDB) FindEntitiesByIDs(_ context.Context, ids []string) ([]*entities.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	result := make([]*entities.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := m.Entities[id]; ok {
			result = append(result, cloneEntity(e))
		}
	}
	return result, nil
}

// CreateEntity inserts a new entity.
func (m *RelationalDB) CreateEntity(_ context.Context, entity *entities.Entity) error {
	if m.BeforeCreateEntity != nil {
		m.BeforeCreateEntity(entity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateEntityCalls++
	if m.Err != nil {
		return m.Err
	}
	for _, e := range m.Entities {
		if strings.EqualFold(e.Name, entity.Name) {
			return fmt.Errorf("creating entity %q: %w", entity.Name, entities.ErrEntityExists)
		}
	}
	m.Entities[entity.ID] = cloneEntity(entity)
	return nil
}

// PutEntity stores an entity directly, bypassing uniqueness checks.
func (m *RelationalDB) PutEntity(entity *entities.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entities[entity.ID] = cloneEntity(entity)
}

// AddEntityAlias records an additional spelling for an entity.
func (m *RelationalDB) AddEntityAlias(_ context.Context, entityID, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	e, ok := m.Entities[entityID]
	if !ok {
		return fmt.Errorf("entity not found: %s", entityID)
	}
	if !e.HasAlias(alias) {
		e.Aliases = append(e.Aliases, alias)
	}
	return nil
}

// ListEntities lists entities ordered by name.
func (m *RelationalDB) ListEntities(_ context.Context, limit, offset int) ([]*entities.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	result := make([]*entities.Entity, 0, len(m.Entities))
	for _, e := range m.Entities {
		result = append(result, cloneEntity(e))
	}
	// Sort by name for deterministic test results
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return paginate(result, limit, offset), nil
}

// CountEntities returns the total number of entities.
func (m *RelationalDB) CountEntities(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entities), m.Err
}

// Fact methods.

// InsertFact persists a new fact. Unlike the SQLite repository it accepts a
// second active fact under a conflict key, so tests can reproduce stores
// written without conflict detection.
func (m *RelationalDB) InsertFact(_ context.Context, fact *entities.Fact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	return m.insertLocked(fact)
}

func (m *RelationalDB) insertLocked(fact *entities.Fact) error {
	if m.InsertFactErr != nil {
		return m.InsertFactErr
	}
	if _, exists := m.Facts[fact.ID]; exists {
		return fmt.Errorf("fact %s already exists", fact.ID)
	}
	m.seq++
	m.seqOf[fact.ID] = m.seq
	m.Facts[fact.ID] = cloneFact(fact)
	return nil
}

// SupersedeFact closes oldID and inserts newFact atomically. It fails with
// entities.ErrFactConflict when oldID is no longer active.
func (m *RelationalDB) SupersedeFact(_ context.Context, oldID string, validTo int, newFact *entities.Fact) error {
	if m.BeforeSupersede != nil {
		m.BeforeSupersede(oldID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SupersedeCalls++
	if m.Err != nil {
		return m.Err
	}
	old, ok := m.Facts[oldID]
	if !ok {
		return fmt.Errorf("fact not found: %s", oldID)
	}
	if old.Status != entities.StatusActive {
		return fmt.Errorf("fact %s is %s: %w", oldID, old.Status, entities.ErrFactConflict)
	}
	if err := m.insertLocked(newFact); err != nil {
		return err
	}
	vt := validTo
	old.ValidTo = &vt
	old.Status = entities.StatusSuperseded
	old.UpdatedAt = newFact.CreatedAt
	return nil
}

// FindFactByID finds a fact by its ID.
func (m *RelationalDB) FindFactByID(_ context.Context, factID string) (*entities.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	f, ok := m.Facts[factID]
	if !ok {
		return nil, nil
	}
	return cloneFact(f), nil
}

// FindActiveByConflictKey returns active facts sharing a conflict key.
func (m *RelationalDB) FindActiveByConflictKey(_ context.Context, key entities.ConflictKey) ([]entities.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var result []entities.Fact
	for _, f := range m.Facts {
		if f.Status == entities.StatusActive && f.ConflictKey() == key {
			result = append(result, *cloneFact(f))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return m.seqOf[result[i].ID] > m.seqOf[result[j].ID]
	})
	return result, nil
}

// FindSuccessors returns facts superseding factID in creation order.
func (m *RelationalDB) FindSuccessors(_ context.Context, factID string) ([]entities.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var result []entities.Fact
	for _, f := range m.Facts {
		if f.SupersedesID != nil && *f.SupersedesID == factID {
			result = append(result, *cloneFact(f))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return m.seqOf[result[i].ID] < m.seqOf[result[j].ID]
	})
	return result, nil
}

// QueryFacts returns facts matching the filter.
func (m *RelationalDB) QueryFacts(_ context.Context, filter entities.FactFilter) ([]entities.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	result := make([]entities.Fact, 0, len(m.Facts))
	for _, f := range m.Facts {
		if filter.Matches(f) {
			result = append(result, *cloneFact(f))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.ValidFrom != b.ValidFrom {
			return a.ValidFrom > b.ValidFrom
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return m.seqOf[a.ID] > m.seqOf[b.ID]
	})
	return paginate(result, filter.Limit, filter.Offset), nil
}

// UpdateEmbedding attaches an embedding to an existing fact.
func (m *RelationalDB) UpdateEmbedding(_ context.Context, factID string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	f, ok := m.Facts[factID]
	if !ok {
		return fmt.Errorf("fact not found: %s", factID)
	}
	f.Embedding = slices.Clone(embedding)
	return nil
}

// CountFactsByStatus returns fact counts grouped by status.
func (m *RelationalDB) CountFactsByStatus(_ context.Context) (map[entities.FactStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	counts := make(map[entities.FactStatus]int)
	for _, f := range m.Facts {
		counts[f.Status]++
	}
	return counts, nil
}

// CountFactsByType returns fact counts grouped by type.
func (m *RelationalDB) CountFactsByType(_ context.Context) (map[entities.FactType]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	counts := make(map[entities.FactType]int)
	for _, f := range m.Facts {
		counts[f.Type]++
	}
	return counts, nil
}

// Audit methods.

// LogAction logs an action to the audit log.
func (m *RelationalDB) LogAction(_ context.Context, action string, factID string, details map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.nextID++
	m.Audit = append(m.Audit, entities.AuditEntry{
		ID:        m.nextID,
		Action:    action,
		FactID:    factID,
		Details:   details,
		CreatedAt: time.Now(),
	})
	return nil
}

// FindAuditLog finds audit log entries for a specific fact, oldest first.
func (m *RelationalDB) FindAuditLog(_ context.Context, factID string) ([]entities.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var result []entities.AuditEntry
	for _, entry := range m.Audit {
		if entry.FactID == factID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneEntity(e *entities.Entity) *entities.Entity {
	c := *e
	c.Aliases = slices.Clone(e.Aliases)
	return &c
}

func cloneFact(f *entities.Fact) *entities.Fact {
	c := *f
	c.SubjectIDs = slices.Clone(f.SubjectIDs)
	c.ObjectIDs = slices.Clone(f.ObjectIDs)
	c.Embedding = slices.Clone(f.Embedding)
	if f.ValidTo != nil {
		v := *f.ValidTo
		c.ValidTo = &v
	}
	if f.SupersedesID != nil {
		s := *f.SupersedesID
		c.SupersedesID = &s
	}
	return &c
}
