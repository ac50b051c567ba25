package entities

// DefaultRetrievalLimit is the page size used when none is given.
const DefaultRetrievalLimit = 50

// RetrievalContext describes what a caller wants to recall.
type RetrievalContext struct {
	// Query is optional free text. When empty, results are ordered by
	// chapter and confidence and no scores are produced.
	Query string

	// EntityNames restricts candidates to facts mentioning any of these
	// entities. Unknown names match nothing.
	EntityNames []string

	Types      []FactType
	Predicates []string
	Status     FactStatus

	Chapter *int
	Range   *ChapterRange
	ValidAt *int

	// ReferenceChapter anchors recency scoring. Defaults to the chapter
	// implied by the time filter.
	ReferenceChapter *int

	// IncludeWorld merges world facts valid at the requested chapter.
	IncludeWorld bool

	PreferredTypes []FactType

	Limit     int
	Threshold float64
}

// EffectiveLimit returns Limit or the default.
func (c *RetrievalContext) EffectiveLimit() int {
	if c.Limit <= 0 {
		return DefaultRetrievalLimit
	}
	return c.Limit
}

// TimeChapter returns the single chapter implied by the time filter, if any.
func (c *RetrievalContext) TimeChapter() *int {
	switch {
	case c.Chapter != nil:
		return c.Chapter
	case c.Range != nil:
		return &c.Range.Max
	case c.ValidAt != nil:
		return c.ValidAt
	}
	return nil
}

// RetrievalResult is an ordered page of facts.
type RetrievalResult struct {
	Facts []Fact `json:"facts"`
	// Total counts candidates before truncation to the limit.
	Total int `json:"total"`
	// Scores is keyed by fact id and only set for text queries.
	Scores map[string]float64 `json:"scores,omitempty"`
}
