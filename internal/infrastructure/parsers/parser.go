// Package parsers reads candidate facts from JSON and CSV files.
package parsers

import (
	"io"
	"path/filepath"
	"strings"
)

// RawCandidate is a candidate fact as written in an import file, before
// validation.
type RawCandidate struct {
	Type          string   `json:"type"`
	Predicate     string   `json:"predicate"`
	Subjects      []string `json:"subjects"`
	Objects       []string `json:"objects,omitempty"`
	CanonicalFact string   `json:"canonical_fact"`
	RawContent    string   `json:"raw_content,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"` // Pointer to distinguish 0 from unset
	ValidFrom     int      `json:"valid_from,omitempty"` // 0 means use the caller's chapter
	LineNum       int      `json:"-"`                    // Line number in source file (set by parser)
}

// Parser defines the interface for parsing candidates from various formats.
type Parser interface {
	Parse(r io.Reader) ([]RawCandidate, error)
}

// ForFormat returns the appropriate parser for the given format.
// Supported formats: "json", "csv".
func ForFormat(format string) Parser {
	switch strings.ToLower(format) {
	case "json":
		return &JSONParser{}
	case "csv":
		return &CSVParser{}
	default:
		return nil
	}
}

// ForFile returns the appropriate parser based on file extension.
func ForFile(filename string) Parser {
	return ForFormat(strings.TrimPrefix(filepath.Ext(filename), "."))
}
