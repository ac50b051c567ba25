package services

import (
	"math"
	"slices"
	"strings"

	"github.com/ersonp/lore-memory/internal/domain/entities"
)

// DefaultRecencyLambda is the per-chapter decay rate of the recency score.
const DefaultRecencyLambda = 0.08

// neutralRecency is used when no reference chapter is known.
const neutralRecency = 0.5

// Weights are the relative contributions of each score component.
type Weights struct {
	Semantic      float64 `yaml:"semantic" json:"semantic"`
	Recency       float64 `yaml:"recency" json:"recency"`
	Confidence    float64 `yaml:"confidence" json:"confidence"`
	EntityOverlap float64 `yaml:"entity_overlap" json:"entity_overlap"`
	TypeMatch     float64 `yaml:"type_match" json:"type_match"`
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{
		Semantic:      0.4,
		Recency:       0.25,
		Confidence:    0.1,
		EntityOverlap: 0.15,
		TypeMatch:     0.1,
	}
}

// RankQuery is what a fact is scored against.
type RankQuery struct {
	Embedding        []float32
	ReferenceChapter *int
	Mentions         []string
	PreferredTypes   []entities.FactType
}

// ScoreBreakdown holds each component score, all in [0,1].
type ScoreBreakdown struct {
	Semantic      float64 `json:"semantic"`
	Recency       float64 `json:"recency"`
	Confidence    float64 `json:"confidence"`
	EntityOverlap float64 `json:"entity_overlap"`
	TypeMatch     float64 `json:"type_match"`
	Total         float64 `json:"total"`
}

// Ranker scores facts for relevance. It holds no mutable state and is safe
// for concurrent use.
type Ranker struct {
	weights Weights
	lambda  float64
}

// NewRanker creates a Ranker. A non-positive lambda selects
// DefaultRecencyLambda.
func NewRanker(weights Weights, lambda float64) *Ranker {
	if lambda <= 0 {
		lambda = DefaultRecencyLambda
	}
	return &Ranker{weights: weights, lambda: lambda}
}

// Score returns the weighted relevance of fact in [0,1]. names maps entity
// ids to canonical names for the overlap component.
func (r *Ranker) Score(fact *entities.Fact, names map[string]string, q RankQuery) float64 {
	return r.Breakdown(fact, names, q).Total
}

// Breakdown returns every component alongside the total.
func (r *Ranker) Breakdown(fact *entities.Fact, names map[string]string, q RankQuery) ScoreBreakdown {
	b := ScoreBreakdown{
		Semantic:      semanticScore(fact.Embedding, q.Embedding),
		Recency:       r.recencyScore(fact.ValidFrom, q.ReferenceChapter),
		Confidence:    clamp01(fact.Confidence),
		EntityOverlap: entityOverlap(fact, names, q.Mentions),
	}
	if slices.Contains(q.PreferredTypes, fact.Type) {
		b.TypeMatch = 1
	}

	w := r.weights
	b.Total = clamp01(w.Semantic*b.Semantic +
		w.Recency*b.Recency +
		w.Confidence*b.Confidence +
		w.EntityOverlap*b.EntityOverlap +
		w.TypeMatch*b.TypeMatch)
	return b
}

func (r *Ranker) recencyScore(validFrom int, ref *int) float64 {
	if ref == nil {
		return neutralRecency
	}
	age := max(0, *ref-validFrom)
	return math.Exp(-r.lambda * float64(age))
}

// semanticScore maps cosine similarity from [-1,1] to [0,1]. Missing,
// mismatched or zero vectors score 0.
func semanticScore(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return clamp01((cos + 1) / 2)
}

// entityOverlap is the fraction of mentions that match, as a case-insensitive
// substring in either direction, the name of any subject or object.
func entityOverlap(fact *entities.Fact, names map[string]string, mentions []string) float64 {
	if len(mentions) == 0 {
		return 0
	}
	factNames := make([]string, 0, len(fact.SubjectIDs)+len(fact.ObjectIDs))
	for _, id := range fact.EntityIDs() {
		if n, ok := names[id]; ok && n != "" {
			factNames = append(factNames, strings.ToLower(n))
		}
	}
	if len(factNames) == 0 {
		return 0
	}

	matched := 0
	for _, m := range mentions {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		for _, n := range factNames {
			if strings.Contains(n, m) || strings.Contains(m, n) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(mentions))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
