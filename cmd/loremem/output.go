package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ersonp/lore-memory/internal/domain/entities"
)

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// window renders a validity window as "ch 3-7" or "ch 3+".
func window(f *entities.Fact) string {
	if f.ValidTo == nil {
		return fmt.Sprintf("ch %d+", f.ValidFrom)
	}
	if *f.ValidTo == f.ValidFrom {
		return fmt.Sprintf("ch %d", f.ValidFrom)
	}
	return fmt.Sprintf("ch %d-%d", f.ValidFrom, *f.ValidTo)
}

// entityNames joins the names of ids, falling back to the id itself.
func entityNames(ids []string, names map[string]string) string {
	return strings.Join(namesOf(ids, names), ", ")
}

func describeFact(f *entities.Fact, names map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] (%s) %s", window(f), f.Type, f.CanonicalFact)
	fmt.Fprintf(&b, "\n   %s %s", entityNames(f.SubjectIDs, names), f.Predicate)
	if len(f.ObjectIDs) > 0 {
		fmt.Fprintf(&b, " %s", entityNames(f.ObjectIDs, names))
	}
	fmt.Fprintf(&b, "  confidence=%.2f status=%s", f.Confidence, f.Status)
	fmt.Fprintf(&b, "\n   id=%s", f.ID)
	if f.SupersedesID != nil {
		fmt.Fprintf(&b, " supersedes=%s", *f.SupersedesID)
	}
	return b.String()
}

// printFacts lists facts in order. scores may be nil.
func printFacts(w io.Writer, facts []entities.Fact, names map[string]string, scores map[string]float64) {
	if len(facts) == 0 {
		fmt.Fprintln(w, "No facts found.")
		return
	}
	for i := range facts {
		f := &facts[i]
		if score, ok := scores[f.ID]; ok {
			fmt.Fprintf(w, "%d. (%.3f) %s\n\n", i+1, score, describeFact(f, names))
		} else {
			fmt.Fprintf(w, "%d. %s\n\n", i+1, describeFact(f, names))
		}
	}
}
