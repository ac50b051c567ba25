package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/infrastructure/parsers"
)

var exportNames = map[string]string{
	"e-mara":  "Mara",
	"e-tobin": "Tobin, the Smith",
}

func exportFacts() []entities.Fact {
	validTo := 4
	supersedes := "fact-0"
	return []entities.Fact{
		{
			ID:            "fact-1",
			Type:          entities.FactTypeInterCharacter,
			Predicate:     "trusts",
			SubjectIDs:    []string{"e-mara"},
			ObjectIDs:     []string{"e-tobin"},
			CanonicalFact: "Mara trusts Tobin",
			RawContent:    `"I'd trust him with my life," Mara said.`,
			Confidence:    0.95,
			ValidFrom:     2,
			ValidTo:       &validTo,
			Status:        entities.StatusSuperseded,
			SupersedesID:  &supersedes,
		},
	}
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	err := formatJSON(&buf, exportFacts(), exportNames)
	require.NoError(t, err)

	var parsed []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))

	require.Len(t, parsed, 1)
	assert.Equal(t, "fact-1", parsed[0]["id"])
	assert.Equal(t, "inter-character", parsed[0]["type"])
	assert.Equal(t, []any{"Mara"}, parsed[0]["subjects"])
	assert.Equal(t, []any{"Tobin, the Smith"}, parsed[0]["objects"])
	assert.Equal(t, "trusts", parsed[0]["predicate"])
	assert.Equal(t, 0.95, parsed[0]["confidence"])
	assert.Equal(t, 2.0, parsed[0]["valid_from"])
	assert.Equal(t, 4.0, parsed[0]["valid_to"])
	assert.Equal(t, "superseded", parsed[0]["status"])
	assert.Equal(t, "fact-0", parsed[0]["supersedes_id"])
}

func TestFormatJSON_EmptyFacts(t *testing.T) {
	var buf bytes.Buffer
	err := formatJSON(&buf, []entities.Fact{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", buf.String())
}

func TestFormatCSV_CanBeIngested(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, formatCSV(&buf, exportFacts(), exportNames))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,type,predicate,subjects,objects,canonical_fact,raw_content,confidence,valid_from,valid_to,status", lines[0])
	assert.Contains(t, lines[1], `"Tobin, the Smith"`, "commas are quoted")

	raw, err := (&parsers.CSVParser{}).Parse(&buf)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "inter-character", raw[0].Type)
	assert.Equal(t, []string{"Mara"}, raw[0].Subjects)
	assert.Equal(t, []string{"Tobin, the Smith"}, raw[0].Objects)
	assert.Equal(t, `"I'd trust him with my life," Mara said.`, raw[0].RawContent)
	require.NotNil(t, raw[0].Confidence)
	assert.InDelta(t, 0.95, *raw[0].Confidence, 1e-9)
	assert.Equal(t, 2, raw[0].ValidFrom)
}

func TestFormatMarkdown(t *testing.T) {
	facts := exportFacts()
	facts[0].CanonicalFact = "Mara | trusts Tobin"

	var buf bytes.Buffer
	require.NoError(t, formatMarkdown(&buf, facts, exportNames))

	result := buf.String()
	assert.Contains(t, result, "# Exported Facts")
	assert.Contains(t, result, "Total: 1 facts")
	assert.Contains(t, result, "| Chapters | Type | Subjects | Predicate | Objects | Fact | Status |")
	assert.Contains(t, result, `| ch 2-4 | inter-character | Mara | trusts | Tobin, the Smith | Mara \| trusts Tobin | superseded |`)
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "pipe escaped", input: "value|with|pipes", expected: "value\\|with\\|pipes"},
		{name: "newline replaced", input: "line1\nline2", expected: "line1 line2"},
		{name: "no change needed", input: "simple text", expected: "simple text"},
		{name: "combined", input: "pipe|and\nnewline", expected: "pipe\\|and newline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, escapeMarkdown(tt.input))
		})
	}
}

func TestExporter_WritesFile(t *testing.T) {
	var stdout bytes.Buffer
	path := filepath.Join(t.TempDir(), "facts.md")
	e := &exporter{format: "markdown", output: path, stdout: &stdout}

	require.NoError(t, e.export(exportFacts(), exportNames))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Exported Facts")
	assert.Contains(t, stdout.String(), "Exported 1 facts to "+path)
}

func TestWindow(t *testing.T) {
	four := 4
	two := 2
	assert.Equal(t, "ch 2+", window(&entities.Fact{ValidFrom: 2}))
	assert.Equal(t, "ch 2-4", window(&entities.Fact{ValidFrom: 2, ValidTo: &four}))
	assert.Equal(t, "ch 2", window(&entities.Fact{ValidFrom: 2, ValidTo: &two}))
}
