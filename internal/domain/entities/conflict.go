package entities

import (
	"slices"
	"strings"
)

// ConflictKey identifies facts that are mutually exclusive versions of the
// same claim. Subject and object ids are sorted, so argument order does not
// matter.
type ConflictKey struct {
	Type      FactType
	Predicate string
	Subjects  string // sorted, comma joined
	Objects   string // sorted, comma joined; empty when the fact has none
}

// NewConflictKey builds the key for the given fact attributes.
func NewConflictKey(t FactType, predicate string, subjectIDs, objectIDs []string) ConflictKey {
	return ConflictKey{
		Type:      t,
		Predicate: predicate,
		Subjects:  sortedJoin(subjectIDs),
		Objects:   sortedJoin(objectIDs),
	}
}

// String returns the persisted form of the key.
func (k ConflictKey) String() string {
	objects := k.Objects
	if objects == "" {
		objects = "-"
	}
	return string(k.Type) + "|" + k.Predicate + "|" + k.Subjects + "|" + objects
}

func sortedJoin(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return strings.Join(sorted, ",")
}
