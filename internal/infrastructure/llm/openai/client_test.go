package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/infrastructure/config"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LLMConfig
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			cfg: config.LLMConfig{
				APIKey: "test-key",
			},
			wantErr: false,
		},
		{
			name: "valid config with model",
			cfg: config.LLMConfig{
				APIKey: "test-key",
				Model:  "gpt-4",
			},
			wantErr: false,
		},
		{
			name:    "missing API key",
			cfg:     config.LLMConfig{},
			wantErr: true,
			errMsg:  "API key is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, client)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, client)
			}
		})
	}
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain JSON",
			input:    `[{"type": "character"}]`,
			expected: `[{"type": "character"}]`,
		},
		{
			name:     "JSON with json code block",
			input:    "```json\n[{\"type\": \"character\"}]\n```",
			expected: `[{"type": "character"}]`,
		},
		{
			name:     "JSON with plain code block",
			input:    "```\n[{\"type\": \"character\"}]\n```",
			expected: `[{"type": "character"}]`,
		},
		{
			name:     "JSON with whitespace",
			input:    "  \n[{\"type\": \"character\"}]\n  ",
			expected: `[{"type": "character"}]`,
		},
		{
			name:     "empty array",
			input:    "[]",
			expected: "[]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cleanJSONResponse(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestObjectToString(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{
			name:     "string value",
			input:    "hobbit",
			expected: "hobbit",
		},
		{
			name:     "integer as float64",
			input:    float64(42),
			expected: "42",
		},
		{
			name:     "float value",
			input:    float64(3.14),
			expected: "3.14",
		},
		{
			name:     "int value",
			input:    100,
			expected: "100",
		},
		{
			name:     "bool true",
			input:    true,
			expected: "true",
		},
		{
			name:     "bool false",
			input:    false,
			expected: "false",
		},
		{
			name:     "nil value",
			input:    nil,
			expected: "<nil>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := objectToString(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestToNames(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected []string
	}{
		{name: "nil", input: nil, expected: nil},
		{name: "single string", input: " Mara ", expected: []string{"Mara"}},
		{name: "blank string", input: "  ", expected: nil},
		{name: "array", input: []any{"Mara", 7.0, nil, " "}, expected: []string{"Mara", "7"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, toNames(tt.input))
		})
	}
}

func TestNormalizeTypeAndConfidence(t *testing.T) {
	assert.Equal(t, entities.FactTypeInterCharacter, normalizeType(" Inter_Character "))
	assert.Equal(t, entities.FactTypeCharacterToUser, normalizeType("character to user"))
	assert.Equal(t, entities.FactTypeWorld, normalizeType("WORLD"))

	high, low := 1.7, 0.0
	assert.InDelta(t, defaultConfidence, normalizeConfidence(nil), 1e-9)
	assert.InDelta(t, entities.MaxConfidence, normalizeConfidence(&high), 1e-9)
	assert.InDelta(t, entities.MinConfidence, normalizeConfidence(&low), 1e-9)
}

// chatServer answers chat completions with the given assistant content.
func chatServer(t *testing.T, content string, gotMessages *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, m := range req.Messages {
			*gotMessages = append(*gotMessages, m.Content)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
}

func TestClient_ExtractCandidates(t *testing.T) {
	content := "```json\n" + `[
		{"type": "inter-character", "predicate": "resents", "subjects": ["Mara"], "objects": "Tobin", "canonical_fact": "Mara resents Tobin", "confidence": 0.9},
		{"type": "World", "predicate": "weather", "subjects": "world", "canonical_fact": "It rains"}
	]` + "\n```"
	var messages []string
	server := chatServer(t, content, &messages)
	defer server.Close()

	client, err := NewClient(config.LLMConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	candidates, err := client.ExtractCandidates(context.Background(), "Mara glared at Tobin.", 4)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, entities.CandidateFact{
		Type:          entities.FactTypeInterCharacter,
		Predicate:     "resents",
		Subjects:      []string{"Mara"},
		Objects:       []string{"Tobin"},
		CanonicalFact: "Mara resents Tobin",
		Confidence:    0.9,
		ValidFrom:     4,
	}, candidates[0])
	assert.Equal(t, entities.FactTypeWorld, candidates[1].Type)
	assert.Equal(t, []string{"world"}, candidates[1].Subjects)
	assert.InDelta(t, defaultConfidence, candidates[1].Confidence, 1e-9)
	assert.Equal(t, 4, candidates[1].ValidFrom)

	require.Len(t, messages, 2)
	assert.Equal(t, "Mara glared at Tobin.", messages[1])
}

func TestClient_ExtractCandidates_BadJSON(t *testing.T) {
	var messages []string
	server := chatServer(t, "I could not find any facts.", &messages)
	defer server.Close()

	client, err := NewClient(config.LLMConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.ExtractCandidates(context.Background(), "text", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing facts JSON")
}
