package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONParser_Parse_ValidInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []RawCandidate
	}{
		{
			name: "single candidate",
			input: `[{"type": "inter-character", "predicate": "trusts", "subjects": ["Alice"],
				"objects": ["Bob"], "canonical_fact": "Alice trusts Bob"}]`,
			expected: []RawCandidate{
				{
					Type:          "inter-character",
					Predicate:     "trusts",
					Subjects:      []string{"Alice"},
					Objects:       []string{"Bob"},
					CanonicalFact: "Alice trusts Bob",
					LineNum:       1,
				},
			},
		},
		{
			name:     "empty array",
			input:    "[]",
			expected: []RawCandidate{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &JSONParser{}
			result, err := parser.Parse(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestJSONParser_Parse_AllFields(t *testing.T) {
	input := `[{
		"type": "world",
		"predicate": "weather",
		"subjects": ["World"],
		"canonical_fact": "It is raining",
		"raw_content": "Rain hammered the roofs.",
		"confidence": 0.95,
		"valid_from": 3
	}]`

	parser := &JSONParser{}
	result, err := parser.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result, 1)

	c := result[0]
	assert.Equal(t, "world", c.Type)
	assert.Equal(t, []string{"World"}, c.Subjects)
	assert.Nil(t, c.Objects)
	assert.Equal(t, "Rain hammered the roofs.", c.RawContent)
	require.NotNil(t, c.Confidence)
	assert.InDelta(t, 0.95, *c.Confidence, 1e-9)
	assert.Equal(t, 3, c.ValidFrom)
}

func TestJSONParser_Parse_InvalidInput(t *testing.T) {
	parser := &JSONParser{}

	_, err := parser.Parse(strings.NewReader("not json"))
	require.Error(t, err)

	_, err = parser.Parse(strings.NewReader(`[{"subject": "Gandalf"}]`))
	require.Error(t, err, "unknown fields are rejected")
}

func TestCSVParser_Parse_ValidInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []RawCandidate
	}{
		{
			name:  "required columns only",
			input: "type,predicate,subjects,canonical_fact\ncharacter-to-user,likes,Alice,Alice likes the user\n",
			expected: []RawCandidate{
				{
					Type:          "character-to-user",
					Predicate:     "likes",
					Subjects:      []string{"Alice"},
					CanonicalFact: "Alice likes the user",
					LineNum:       2,
				},
			},
		},
		{
			name:     "empty CSV (header only)",
			input:    "type,predicate,subjects,canonical_fact\n",
			expected: nil,
		},
		{
			name:  "list columns and different order",
			input: "canonical_fact,objects,subjects,predicate,type\nThey fight Carol,Carol,Alice; Bob,fights,inter-character\n",
			expected: []RawCandidate{
				{
					Type:          "inter-character",
					Predicate:     "fights",
					Subjects:      []string{"Alice", "Bob"},
					Objects:       []string{"Carol"},
					CanonicalFact: "They fight Carol",
					LineNum:       2,
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &CSVParser{}
			result, err := parser.Parse(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestCSVParser_Parse_AllColumns(t *testing.T) {
	input := "type,predicate,subjects,objects,canonical_fact,raw_content,confidence,valid_from\n" +
		"inter-character,trusts,Alice,Bob,Alice trusts Bob,She trusted him.,0.8,4\n"

	parser := &CSVParser{}
	result, err := parser.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result, 1)

	c := result[0]
	assert.Equal(t, "She trusted him.", c.RawContent)
	require.NotNil(t, c.Confidence)
	assert.InDelta(t, 0.8, *c.Confidence, 1e-9)
	assert.Equal(t, 4, c.ValidFrom)
}

func TestCSVParser_Parse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		errMsg string
	}{
		{
			name:   "missing required column",
			input:  "type,predicate,subjects\nworld,weather,World\n",
			errMsg: "missing required column: canonical_fact",
		},
		{
			name:   "invalid confidence value",
			input:  "type,predicate,subjects,canonical_fact,confidence\nworld,weather,World,Rain,high\n",
			errMsg: "invalid confidence value",
		},
		{
			name:   "invalid chapter",
			input:  "type,predicate,subjects,canonical_fact,valid_from\nworld,weather,World,Rain,three\n",
			errMsg: "invalid valid_from value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &CSVParser{}
			_, err := parser.Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestForFormat(t *testing.T) {
	assert.IsType(t, &JSONParser{}, ForFormat("json"))
	assert.IsType(t, &CSVParser{}, ForFormat("CSV"))
	assert.Nil(t, ForFormat("unknown"))
}

func TestForFile(t *testing.T) {
	assert.IsType(t, &JSONParser{}, ForFile("facts.json"))
	assert.IsType(t, &CSVParser{}, ForFile("data.csv"))
	assert.Nil(t, ForFile("file.txt"))
	assert.Nil(t, ForFile("noextension"))
}
