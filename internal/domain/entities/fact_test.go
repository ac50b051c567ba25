package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCandidate() CandidateFact {
	return CandidateFact{
		Type:          FactTypeInterCharacter,
		Predicate:     "trusts",
		Subjects:      []string{"Alice"},
		Objects:       []string{"Bob"},
		CanonicalFact: "Alice trusts Bob",
		RawContent:    "Alice smiled at Bob; she trusted him.",
		Confidence:    0.9,
		ValidFrom:     1,
	}
}

func TestFactType_IsValid(t *testing.T) {
	assert.True(t, FactTypeInterCharacter.IsValid())
	assert.True(t, FactTypeCharacterToUser.IsValid())
	assert.True(t, FactTypeWorld.IsValid())
	assert.False(t, FactType("").IsValid())
	assert.False(t, FactType("character").IsValid())
}

func TestCandidateFact_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *CandidateFact)
		errMsg string
	}{
		{
			name:   "valid inter-character",
			mutate: func(c *CandidateFact) {},
		},
		{
			name: "valid world fact without objects",
			mutate: func(c *CandidateFact) {
				c.Type = FactTypeWorld
				c.Objects = nil
			},
		},
		{
			name:   "unknown type",
			mutate: func(c *CandidateFact) { c.Type = "gossip" },
			errMsg: "unknown fact type",
		},
		{
			name:   "blank predicate",
			mutate: func(c *CandidateFact) { c.Predicate = "  " },
			errMsg: "predicate is required",
		},
		{
			name:   "missing subjects",
			mutate: func(c *CandidateFact) { c.Subjects = nil },
			errMsg: "at least one subject",
		},
		{
			name:   "inter-character without objects",
			mutate: func(c *CandidateFact) { c.Objects = nil },
			errMsg: "require objects",
		},
		{
			name: "character-to-user with objects",
			mutate: func(c *CandidateFact) {
				c.Type = FactTypeCharacterToUser
			},
			errMsg: "must not have objects",
		},
		{
			name:   "confidence too low",
			mutate: func(c *CandidateFact) { c.Confidence = 0.05 },
			errMsg: "confidence",
		},
		{
			name:   "confidence too high",
			mutate: func(c *CandidateFact) { c.Confidence = 1.2 },
			errMsg: "confidence",
		},
		{
			name:   "chapter zero",
			mutate: func(c *CandidateFact) { c.ValidFrom = 0 },
			errMsg: "valid_from",
		},
		{
			name:   "empty canonical fact",
			mutate: func(c *CandidateFact) { c.CanonicalFact = "" },
			errMsg: "canonical fact",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCandidate()
			tt.mutate(&c)
			err := c.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidFact)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConflictKey_OrderInsensitive(t *testing.T) {
	a := NewConflictKey(FactTypeInterCharacter, "allied_with", []string{"b", "a"}, []string{"d", "c"})
	b := NewConflictKey(FactTypeInterCharacter, "allied_with", []string{"a", "b"}, []string{"c", "d"})
	assert.Equal(t, a, b)
	assert.Equal(t, a.String(), b.String())

	world := NewConflictKey(FactTypeWorld, "weather", []string{WorldEntityID}, nil)
	assert.Equal(t, "world|weather|entity-world|-", world.String())

	other := NewConflictKey(FactTypeInterCharacter, "Allied_with", []string{"a", "b"}, []string{"c", "d"})
	assert.NotEqual(t, a, other, "predicates compare exactly")
}

func TestConflictKey_DoesNotMutateInput(t *testing.T) {
	subjects := []string{"z", "a"}
	NewConflictKey(FactTypeWorld, "p", subjects, nil)
	assert.Equal(t, []string{"z", "a"}, subjects)
}

func TestFact_ValidAt(t *testing.T) {
	six := 6
	closed := Fact{ValidFrom: 3, ValidTo: &six}
	open := Fact{ValidFrom: 3}

	for chapter, want := range map[int]bool{1: false, 2: false, 3: true, 6: true, 7: false} {
		assert.Equal(t, want, closed.ValidAt(chapter), "closed window at chapter %d", chapter)
	}
	assert.False(t, open.ValidAt(2))
	assert.True(t, open.ValidAt(3))
	assert.True(t, open.ValidAt(1000))
}

func TestFactFilter_Matches(t *testing.T) {
	four := 4
	fact := Fact{
		Type:       FactTypeInterCharacter,
		Predicate:  "trusts",
		SubjectIDs: []string{"alice"},
		ObjectIDs:  []string{"bob"},
		ValidFrom:  2,
		ValidTo:    &four,
		Status:     StatusActive,
	}
	ch := func(n int) *int { return &n }

	tests := []struct {
		name   string
		filter FactFilter
		want   bool
	}{
		{"empty filter", FactFilter{}, true},
		{"object membership", FactFilter{EntityID: "bob"}, true},
		{"unrelated entity", FactFilter{EntityID: "carol"}, false},
		{"type match", FactFilter{Types: []FactType{FactTypeWorld, FactTypeInterCharacter}}, true},
		{"type mismatch", FactFilter{Types: []FactType{FactTypeWorld}}, false},
		{"predicate mismatch", FactFilter{Predicates: []string{"fears"}}, false},
		{"superseded status", FactFilter{Status: StatusSuperseded}, false},
		{"any status", FactFilter{Status: StatusAny}, true},
		{"chapter inside", FactFilter{Chapter: ch(3)}, true},
		{"chapter after window", FactFilter{Chapter: ch(5)}, false},
		{"valid at start", FactFilter{ValidAt: ch(2)}, true},
		{"range overlap", FactFilter{Range: &ChapterRange{Min: 4, Max: 9}}, true},
		{"range after", FactFilter{Range: &ChapterRange{Min: 5, Max: 9}}, false},
		{"range before", FactFilter{Range: &ChapterRange{Min: 0, Max: 1}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(&fact))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"Bob":             "Bob",
		"bob":             "Bob",
		"BOB ":            "Bob",
		"  alice   smith": "Alice Smith",
		"":                "",
	}
	for input, want := range tests {
		assert.Equal(t, want, NormalizeName(input), "input %q", input)
	}
}

func TestBuiltinEntityID(t *testing.T) {
	id, ok := BuiltinEntityID(" Player")
	require.True(t, ok)
	assert.Equal(t, UserEntityID, id)

	id, ok = BuiltinEntityID("ENVIRONMENT")
	require.True(t, ok)
	assert.Equal(t, WorldEntityID, id)

	_, ok = BuiltinEntityID("Alice")
	assert.False(t, ok)
}
