package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// listSeparator separates names inside the subjects and objects columns.
const listSeparator = ";"

// CSVParser parses candidates from CSV with a header row.
type CSVParser struct{}

// Parse reads CSV from the reader and returns parsed candidates.
// Columns: type, predicate, subjects, objects, canonical_fact, raw_content,
// confidence, valid_from. The first three and canonical_fact are required.
func (p *CSVParser) Parse(r io.Reader) ([]RawCandidate, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	colIndex, err := p.readHeader(reader)
	if err != nil {
		return nil, err
	}

	return p.readRecords(reader, colIndex)
}

func (p *CSVParser) readHeader(reader *csv.Reader) (map[string]int, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	for _, col := range []string{"type", "predicate", "subjects", "canonical_fact"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	return colIndex, nil
}

func (p *CSVParser) readRecords(reader *csv.Reader, colIndex map[string]int) ([]RawCandidate, error) {
	var candidates []RawCandidate
	lineNum := 1 // Header is line 1

	for {
		lineNum++
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		c, err := p.parseRecord(record, colIndex, lineNum)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}

	return candidates, nil
}

func (p *CSVParser) parseRecord(record []string, colIndex map[string]int, lineNum int) (RawCandidate, error) {
	c := RawCandidate{
		Type:          getColumn(record, colIndex, "type"),
		Predicate:     getColumn(record, colIndex, "predicate"),
		Subjects:      splitList(getColumn(record, colIndex, "subjects")),
		Objects:       splitList(getColumn(record, colIndex, "objects")),
		CanonicalFact: getColumn(record, colIndex, "canonical_fact"),
		RawContent:    getColumn(record, colIndex, "raw_content"),
		LineNum:       lineNum,
	}

	if s := getColumn(record, colIndex, "confidence"); s != "" {
		conf, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return RawCandidate{}, fmt.Errorf("line %d: invalid confidence value %q: %w", lineNum, s, err)
		}
		c.Confidence = &conf
	}

	if s := getColumn(record, colIndex, "valid_from"); s != "" {
		ch, err := strconv.Atoi(s)
		if err != nil {
			return RawCandidate{}, fmt.Errorf("line %d: invalid valid_from value %q: %w", lineNum, s, err)
		}
		c.ValidFrom = ch
	}

	return c, nil
}

// getColumn safely retrieves a column value from a record.
func getColumn(record []string, colIndex map[string]int, col string) string {
	if idx, ok := colIndex[col]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, listSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
