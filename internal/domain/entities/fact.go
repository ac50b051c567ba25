// Package entities contains core domain data structures.
package entities

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// FactType represents the category of a fact.
type FactType string

const (
	// FactTypeInterCharacter describes a relation between characters and
	// always carries objects.
	FactTypeInterCharacter FactType = "inter-character"
	// FactTypeCharacterToUser describes how a character relates to the player.
	FactTypeCharacterToUser FactType = "character-to-user"
	// FactTypeWorld describes world state.
	FactTypeWorld FactType = "world"
)

// AllFactTypes lists every known fact type.
var AllFactTypes = []FactType{FactTypeInterCharacter, FactTypeCharacterToUser, FactTypeWorld}

// IsValid checks if the fact type is one of the known types.
func (t FactType) IsValid() bool {
	return slices.Contains(AllFactTypes, t)
}

// RequiresObjects reports whether facts of this type must name objects.
func (t FactType) RequiresObjects() bool {
	return t == FactTypeInterCharacter
}

// FactStatus is the lifecycle state of a stored fact.
type FactStatus string

const (
	StatusActive     FactStatus = "active"
	StatusSuperseded FactStatus = "superseded"
	// StatusDuplicate is only ever reported as an ingestion outcome; no row
	// is stored with it.
	StatusDuplicate FactStatus = "duplicate"
	// StatusAny disables status filtering in queries.
	StatusAny FactStatus = "*"
)

// Confidence bounds accepted on ingestion.
const (
	MinConfidence = 0.1
	MaxConfidence = 1.0
)

// Fact represents a single chapter-scoped memory about characters, the player
// or the world.
type Fact struct {
	ID            string     `json:"id"`
	Type          FactType   `json:"type"`
	Predicate     string     `json:"predicate"`
	SubjectIDs    []string   `json:"subject_ids"`
	ObjectIDs     []string   `json:"object_ids,omitempty"`
	CanonicalFact string     `json:"canonical_fact"`
	RawContent    string     `json:"raw_content"`
	Confidence    float64    `json:"confidence"`
	ValidFrom     int        `json:"valid_from"`
	ValidTo       *int       `json:"valid_to,omitempty"`
	Embedding     []float32  `json:"embedding,omitempty"`
	Status        FactStatus `json:"status"`
	SupersedesID  *string    `json:"supersedes_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ConflictKey returns the key shared by all versions of the same claim.
func (f *Fact) ConflictKey() ConflictKey {
	return NewConflictKey(f.Type, f.Predicate, f.SubjectIDs, f.ObjectIDs)
}

// ValidAt reports whether the fact's window contains chapter.
func (f *Fact) ValidAt(chapter int) bool {
	if f.ValidFrom > chapter {
		return false
	}
	return f.ValidTo == nil || *f.ValidTo >= chapter
}

// EntityIDs returns subjects followed by objects.
func (f *Fact) EntityIDs() []string {
	ids := make([]string, 0, len(f.SubjectIDs)+len(f.ObjectIDs))
	ids = append(ids, f.SubjectIDs...)
	return append(ids, f.ObjectIDs...)
}

// CandidateFact is a fact proposed for ingestion, referring to entities by
// name rather than id.
type CandidateFact struct {
	Type          FactType `json:"type"`
	Predicate     string   `json:"predicate"`
	Subjects      []string `json:"subjects"`
	Objects       []string `json:"objects,omitempty"`
	CanonicalFact string   `json:"canonical_fact"`
	RawContent    string   `json:"raw_content"`
	Confidence    float64  `json:"confidence"`
	ValidFrom     int      `json:"valid_from"`
}

// Validate rejects malformed candidates. The returned error wraps
// ErrInvalidFact.
func (c *CandidateFact) Validate() error {
	if !c.Type.IsValid() {
		return invalidf("unknown fact type %q", c.Type)
	}
	if strings.TrimSpace(c.Predicate) == "" {
		return invalidf("predicate is required")
	}
	if len(c.Subjects) == 0 {
		return invalidf("at least one subject is required")
	}
	for _, s := range c.Subjects {
		if strings.TrimSpace(s) == "" {
			return invalidf("subject names must not be blank")
		}
	}
	if c.Type.RequiresObjects() {
		if len(c.Objects) == 0 {
			return invalidf("%s facts require objects", c.Type)
		}
		for _, o := range c.Objects {
			if strings.TrimSpace(o) == "" {
				return invalidf("object names must not be blank")
			}
		}
	} else if len(c.Objects) > 0 {
		return invalidf("%s facts must not have objects", c.Type)
	}
	if strings.TrimSpace(c.CanonicalFact) == "" {
		return invalidf("canonical fact is required")
	}
	if c.Confidence < MinConfidence || c.Confidence > MaxConfidence {
		return invalidf("confidence %.2f outside [%.1f, %.1f]", c.Confidence, MinConfidence, MaxConfidence)
	}
	if c.ValidFrom < 1 {
		return invalidf("valid_from must be >= 1, got %d", c.ValidFrom)
	}
	return nil
}

// EmbeddingText is the text embedded for a fact.
func (c *CandidateFact) EmbeddingText() string {
	return c.CanonicalFact
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFact, fmt.Sprintf(format, args...))
}
