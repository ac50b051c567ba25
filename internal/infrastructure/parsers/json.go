package parsers

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONParser parses a JSON array of candidates.
type JSONParser struct{}

// Parse reads JSON from the reader and returns parsed candidates.
func (p *JSONParser) Parse(r io.Reader) ([]RawCandidate, error) {
	var candidates []RawCandidate

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&candidates); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	// Array index + 1
	for i := range candidates {
		candidates[i].LineNum = i + 1
	}

	return candidates, nil
}
