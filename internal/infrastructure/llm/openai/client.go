// Package openai provides an LLMClient implementation using OpenAI.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/domain/ports"
	"github.com/ersonp/lore-memory/internal/infrastructure/config"
)

var _ ports.LLMClient = (*Client)(nil)

// defaultConfidence is assigned when the model omits a confidence.
const defaultConfidence = 0.7

const extractionPrompt = `You are a memory extractor for an interactive story. Extract durable facts from the given passage.

Every fact has one of these types:
- inter-character: a relation between characters; needs subjects AND objects
- character-to-user: how a character feels about or relates to the player ("user"); no objects
- world: state of the world (weather, politics, places); subject is "world"; no objects

For each fact, return:
- type: one of the types above
- predicate: a short snake_case verb phrase (e.g. "trusts", "is_angry_with", "weather")
- subjects: array of names the fact is about
- objects: array of names the relation points to (inter-character only)
- canonical_fact: one plain sentence stating the fact
- raw_content: the passage excerpt the fact comes from
- confidence: how certain the passage makes the fact (0.1-1.0)

Return ONLY a valid JSON array, no other text. Return [] if there are no facts.

Example:
Input: "Mara glared at Tobin. 'I will never forgive you,' she told him. Rain hammered the docks."
Output: [
  {"type": "inter-character", "predicate": "resents", "subjects": ["Mara"], "objects": ["Tobin"], "canonical_fact": "Mara resents Tobin", "raw_content": "'I will never forgive you,' she told him.", "confidence": 0.9},
  {"type": "world", "predicate": "weather", "subjects": ["world"], "canonical_fact": "It is raining at the docks", "raw_content": "Rain hammered the docks.", "confidence": 0.8}
]`

// Client implements the LLMClient interface using OpenAI.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a new OpenAI LLM client.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := "gpt-4o-mini"
	if cfg.Model != "" {
		model = cfg.Model
	}

	return &Client{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// ExtractCandidates extracts candidate facts from the given text. Every
// candidate is stamped with chapter as its valid_from.
func (c *Client) ExtractCandidates(ctx context.Context, text string, chapter int) ([]entities.CandidateFact, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: extractionPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("calling OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	content := cleanJSONResponse(resp.Choices[0].Message.Content)

	var raw []rawCandidate
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parsing facts JSON: %w (response: %s)", err, content)
	}

	candidates := make([]entities.CandidateFact, 0, len(raw))
	for _, rc := range raw {
		candidates = append(candidates, rc.toCandidate(chapter))
	}
	return candidates, nil
}

// rawCandidate is the JSON structure the model returns. Names may come back
// as a single string or as numbers, so they are decoded loosely.
type rawCandidate struct {
	Type          string   `json:"type"`
	Predicate     string   `json:"predicate"`
	Subjects      any      `json:"subjects"`
	Objects       any      `json:"objects,omitempty"`
	CanonicalFact string   `json:"canonical_fact"`
	RawContent    string   `json:"raw_content,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
}

func (rc rawCandidate) toCandidate(chapter int) entities.CandidateFact {
	return entities.CandidateFact{
		Type:          normalizeType(rc.Type),
		Predicate:     strings.TrimSpace(rc.Predicate),
		Subjects:      toNames(rc.Subjects),
		Objects:       toNames(rc.Objects),
		CanonicalFact: strings.TrimSpace(rc.CanonicalFact),
		RawContent:    rc.RawContent,
		Confidence:    normalizeConfidence(rc.Confidence),
		ValidFrom:     chapter,
	}
}

// normalizeType maps spellings like "Inter_Character" onto the known types.
// Unknown types pass through and are rejected on ingestion.
func normalizeType(t string) entities.FactType {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.ReplaceAll(t, " ", "-")
	return entities.FactType(t)
}

func normalizeConfidence(c *float64) float64 {
	if c == nil {
		return defaultConfidence
	}
	return min(max(*c, entities.MinConfidence), entities.MaxConfidence)
}

// toNames flattens a JSON string, number or array into a list of names.
func toNames(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		names := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			if s := strings.TrimSpace(objectToString(item)); s != "" {
				names = append(names, s)
			}
		}
		return names
	default:
		if s := strings.TrimSpace(objectToString(val)); s != "" {
			return []string{s}
		}
		return nil
	}
}

// objectToString converts a scalar JSON value to string (handles numbers from LLM).
func objectToString(obj any) string {
	switch v := obj.(type) {
	case string:
		return v
	case float64:
		if v == float64(int(v)) {
			return strconv.Itoa(int(v))
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// cleanJSONResponse removes markdown code blocks if present.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}

	return strings.TrimSpace(content)
}
