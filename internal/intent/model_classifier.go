package intent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/apexion-ai/orchestrator-kernel/internal/provider"
)

// classifierSystemPrompt forces a single JSON object out of the model,
// mirroring architect.go's architectSystemPrompt forced-JSON-shape idiom.
const classifierSystemPrompt = `You classify a single user request into exactly one intent.

Valid intents: planning, coding, review, explore, test, refactor, explain, docs, security, performance, data, chat.

Respond with ONLY a JSON object in this exact format, no other text:
{
  "intent": "<one of the valid intents>",
  "confidence": <float 0.0-1.0>,
  "reasoning": "<one short sentence>"
}`

// ModelClassifier asks a provider to classify intent directly, falling back
// to a HeuristicClassifier when the model's confidence is too low or its
// response doesn't parse. Grounded on architect.go's getPlan: a forced-JSON
// system prompt, fenced/raw JSON extraction, then json.Unmarshal.
type ModelClassifier struct {
	provider   provider.Provider
	model      string
	fallback   *HeuristicClassifier
	minConfide float64
}

// NewModelClassifier builds a classifier against p using model. minConfidence
// below which the heuristic fallback is trusted instead; 0 uses a sane default.
func NewModelClassifier(p provider.Provider, model string, minConfidence float64) *ModelClassifier {
	if minConfidence <= 0 {
		minConfidence = 0.55
	}
	return &ModelClassifier{
		provider:   p,
		model:      model,
		fallback:   NewHeuristicClassifier(),
		minConfide: minConfidence,
	}
}

// Classify never returns an error: any model failure or low-confidence
// result silently degrades to the heuristic classifier's result.
func (c *ModelClassifier) Classify(ctx context.Context, userText string) Intent {
	fallback := c.fallback.Classify(ctx, userText)

	text, err := c.collectText(ctx, userText)
	if err != nil || text == "" {
		return fallback
	}

	jsonStr := extractJSON(text)
	if jsonStr == "" {
		return fallback
	}

	var parsed struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return fallback
	}

	kind, ok := validKind(parsed.Intent)
	if !ok || parsed.Confidence < c.minConfide {
		return fallback
	}

	return Intent{Kind: kind, Confidence: parsed.Confidence, Reasoning: parsed.Reasoning}
}

// collectText drives one non-streaming-from-the-caller's-perspective Chat
// call, draining the event channel into its accumulated text deltas.
func (c *ModelClassifier) collectText(ctx context.Context, userText string) (string, error) {
	req := &provider.ChatRequest{
		Model:        c.model,
		SystemPrompt: classifierSystemPrompt,
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: []provider.Content{{Type: provider.ContentTypeText, Text: userText}}},
		},
		MaxTokens: 256,
	}

	events, err := c.provider.Chat(ctx, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for ev := range events {
		switch ev.Type {
		case provider.EventTextDelta:
			sb.WriteString(ev.TextDelta)
		case provider.EventError:
			return "", ev.Error
		case provider.EventDone:
			return sb.String(), nil
		}
	}
	return sb.String(), nil
}

var validKinds = map[Kind]bool{
	Planning: true, Coding: true, Review: true, Explore: true, Test: true,
	Refactor: true, Explain: true, Docs: true, Security: true,
	Performance: true, Data: true, Chat: true,
}

func validKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	return k, validKinds[k]
}

// extractJSON finds a JSON object in text, preferring a fenced ```json
// block, then a bare fenced block, then the first raw brace-delimited
// object. Ported from agent/architect.go's extractJSON.
func extractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		start := idx + len("```json")
		if end := strings.Index(text[start:], "```"); end >= 0 {
			return strings.TrimSpace(text[start : start+end])
		}
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		start := idx + 3
		if nl := strings.Index(text[start:], "\n"); nl >= 0 {
			start += nl + 1
		}
		if end := strings.Index(text[start:], "```"); end >= 0 {
			candidate := strings.TrimSpace(text[start : start+end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
