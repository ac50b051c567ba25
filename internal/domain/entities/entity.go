package entities

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EntityKind classifies what an entity stands for.
type EntityKind string

const (
	EntityKindCharacter EntityKind = "character"
	EntityKindUser      EntityKind = "user"
	EntityKindWorld     EntityKind = "world"
)

// Fixed identities of the two built-in entities. They are seeded when the
// schema is created and are never removed.
const (
	UserEntityID  = "entity-user"
	WorldEntityID = "entity-world"

	UserEntityName  = "User"
	WorldEntityName = "World"
)

// Entity represents a named participant that facts can refer to, such as a
// character, the player, or the world itself.
type Entity struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"` // Canonical, normalized name (e.g., "Alice Smith")
	Kind      EntityKind `json:"kind"`
	Aliases   []string   `json:"aliases,omitempty"` // Raw spellings seen for this entity
	CreatedAt time.Time  `json:"created_at"`
}

// HasAlias reports whether alias is already recorded, ignoring case.
func (e *Entity) HasAlias(alias string) bool {
	for _, a := range e.Aliases {
		if strings.EqualFold(a, alias) {
			return true
		}
	}
	return false
}

// DefaultEntities returns the built-in user and world entities.
func DefaultEntities() []Entity {
	return []Entity{
		{ID: UserEntityID, Name: UserEntityName, Kind: EntityKindUser, Aliases: []string{"user", "player"}},
		{ID: WorldEntityID, Name: WorldEntityName, Kind: EntityKindWorld, Aliases: []string{"world", "environment"}},
	}
}

// NormalizeName trims the name, collapses inner whitespace and title-cases
// every word, so "  bob   SMITH " becomes "Bob Smith".
func NormalizeName(name string) string {
	fields := strings.Fields(name)
	// Casers carry state and must not be shared across goroutines.
	caser := cases.Title(language.Und)
	for i, f := range fields {
		fields[i] = caser.String(f)
	}
	return strings.Join(fields, " ")
}

// BuiltinEntityID maps the reserved spellings of the player and the world to
// their fixed ids. The second return value is false for any other name.
func BuiltinEntityID(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "user", "player":
		return UserEntityID, true
	case "world", "environment":
		return WorldEntityID, true
	default:
		return "", false
	}
}
