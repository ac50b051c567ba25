package services

import (
	"strings"
	"unicode"

	"github.com/ersonp/lore-memory/internal/domain/entities"
)

// referenceWords map pronoun-like words to the built-in entity they denote.
var referenceWords = map[string]string{
	"user":        entities.UserEntityName,
	"player":      entities.UserEntityName,
	"you":         entities.UserEntityName,
	"world":       entities.WorldEntityName,
	"environment": entities.WorldEntityName,
}

// mentionStopwords are capitalized words that start sentences far more often
// than they name anyone.
var mentionStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "but": true, "did": true, "do": true,
	"does": true, "how": true, "i": true, "in": true, "is": true, "it": true,
	"of": true, "on": true, "the": true, "what": true, "when": true,
	"where": true, "who": true, "why": true, "with": true,
}

// ExtractMentions returns the entity names a query appears to refer to:
// capitalized words plus a fixed vocabulary for the user and the world.
// Results are deduplicated case-insensitively and keep first-seen order.
func ExtractMentions(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})

	var mentions []string
	seen := make(map[string]bool)
	add := func(name string) {
		key := strings.ToLower(name)
		if !seen[key] {
			seen[key] = true
			mentions = append(mentions, name)
		}
	}

	for _, w := range words {
		w = strings.Trim(w, "'-")
		if w == "" {
			continue
		}
		lower := strings.ToLower(w)
		if canonical, ok := referenceWords[lower]; ok {
			add(canonical)
			continue
		}
		if mentionStopwords[lower] {
			continue
		}
		if r := []rune(w)[0]; unicode.IsUpper(r) {
			add(w)
		}
	}
	return mentions
}
