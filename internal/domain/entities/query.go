package entities

import "slices"

// ChapterRange is an inclusive chapter interval.
type ChapterRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// FactFilter narrows a fact query. All non-zero fields combine with AND.
// At most one of Chapter, Range and ValidAt should be set; when several are,
// Chapter wins over Range, which wins over ValidAt.
type FactFilter struct {
	Types      []FactType
	EntityID   string // matches subject or object membership
	Predicates []string
	// Status defaults to StatusActive when empty. Use StatusAny to disable.
	Status FactStatus

	Chapter *int
	Range   *ChapterRange
	ValidAt *int

	ConflictKey string

	Limit  int
	Offset int
}

// EffectiveStatus returns the status the filter applies.
func (f *FactFilter) EffectiveStatus() FactStatus {
	if f.Status == "" {
		return StatusActive
	}
	return f.Status
}

// Matches reports whether fact satisfies every criterion of the filter
// except Limit and Offset.
func (f *FactFilter) Matches(fact *Fact) bool {
	if st := f.EffectiveStatus(); st != StatusAny && fact.Status != st {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, fact.Type) {
		return false
	}
	if len(f.Predicates) > 0 && !slices.Contains(f.Predicates, fact.Predicate) {
		return false
	}
	if f.EntityID != "" && !slices.Contains(fact.EntityIDs(), f.EntityID) {
		return false
	}
	if f.ConflictKey != "" && fact.ConflictKey().String() != f.ConflictKey {
		return false
	}
	switch {
	case f.Chapter != nil:
		return fact.ValidAt(*f.Chapter)
	case f.Range != nil:
		if fact.ValidFrom > f.Range.Max {
			return false
		}
		return fact.ValidTo == nil || *fact.ValidTo >= f.Range.Min
	case f.ValidAt != nil:
		return fact.ValidAt(*f.ValidAt)
	}
	return true
}

// IngestOutcome is the decision taken for an ingested candidate.
type IngestOutcome string

const (
	OutcomeCreated    IngestOutcome = "created"
	OutcomeSuperseded IngestOutcome = "superseded"
	OutcomeDuplicate  IngestOutcome = "duplicate"
)

// IngestResult reports what happened to a candidate fact.
type IngestResult struct {
	FactID  string        `json:"fact_id"`
	Outcome IngestOutcome `json:"outcome"`
	// SupersededID is set when Outcome is OutcomeSuperseded.
	SupersededID string `json:"superseded_id,omitempty"`
}

// SupersessionChain is the history around a fact: ancestors oldest first and
// direct descendants in creation order.
type SupersessionChain struct {
	Fact  Fact   `json:"fact"`
	Older []Fact `json:"older"`
	Newer []Fact `json:"newer"`
}

// Stats summarises the store contents.
type Stats struct {
	TotalFacts int                `json:"total_facts"`
	ByStatus   map[FactStatus]int `json:"by_status"`
	ByType     map[FactType]int   `json:"by_type"`
	Entities   int                `json:"entities"`
}
