// Package parser converts a streamed assistant turn into either plain text
// or a list of tool calls. Strategies are tried in order until one
// succeeds; this generalizes the fenced/raw JSON extraction the teacher
// uses for architect plans (architect.go's extractJSON) into the full
// layered contract the kernel needs: native stream assembly, strict JSON,
// fenced JSON, regex salvage, partial JSON completion, and a plain-text
// fallback.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/apexion-ai/orchestrator-kernel/internal/provider"
)

// Strategy names the parsing strategy that produced a ParsedTurn, recorded
// for debugging per spec.
type Strategy string

const (
	StrategyNative         Strategy = "native_stream"
	StrategyStrictJSON     Strategy = "strict_json"
	StrategyFencedJSON     Strategy = "fenced_json"
	StrategyRegexSalvage   Strategy = "regex_salvage"
	StrategyPartialJSON    Strategy = "partial_json_completion"
	StrategyPlainText      Strategy = "plain_text"
)

// RawToolCall is a tool/arguments pair parsed out of model text, before
// sanitization and before becoming a provider.ToolCallRequest.
type RawToolCall struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// ParsedTurn is the parser's output for one assistant turn.
type ParsedTurn struct {
	Text      string
	ToolCalls []RawToolCall
	Strategy  Strategy
}

// ParseNative wraps tool calls the provider already assembled natively
// (OpenAI/Anthropic SSE tool-call fragments). This is always tried first
// and always succeeds when calls is non-empty.
func ParseNative(text string, calls []provider.ToolCallRequest) ParsedTurn {
	out := ParsedTurn{Text: text, Strategy: StrategyNative}
	for _, c := range calls {
		out.ToolCalls = append(out.ToolCalls, RawToolCall{Tool: c.Name, Arguments: c.Input})
	}
	return out
}

// Parse runs the layered fallback chain over raw assistant text. It should
// only be invoked when the provider emitted no native tool-call fragments
// (text-only models, or a native assembly that yielded nothing usable).
func Parse(text string) ParsedTurn {
	if calls, ok := tryStrictJSON(text); ok {
		return ParsedTurn{ToolCalls: calls, Strategy: StrictForNonEmpty(calls)}
	}
	if fenced, ok := extractFencedJSON(text); ok {
		if calls, ok := tryStrictJSON(fenced); ok {
			return ParsedTurn{ToolCalls: calls, Strategy: StrategyFencedJSON}
		}
	}
	if calls := regexSalvage(text); len(calls) > 0 {
		return ParsedTurn{ToolCalls: calls, Strategy: StrategyRegexSalvage}
	}
	if repaired := completePartialJSON(text); repaired != "" {
		if calls, ok := tryStrictJSON(repaired); ok {
			return ParsedTurn{ToolCalls: calls, Strategy: StrategyPartialJSON}
		}
	}
	return ParsedTurn{Text: text, Strategy: StrategyPlainText}
}

// StrictForNonEmpty picks StrategyStrictJSON when calls were actually
// found; kept as a tiny helper so Parse reads linearly.
func StrictForNonEmpty(calls []RawToolCall) Strategy {
	if len(calls) > 0 {
		return StrategyStrictJSON
	}
	return StrategyPlainText
}

// tryStrictJSON parses s as either a single {"tool":...,"arguments":...}
// object or a JSON array of the same.
func tryStrictJSON(s string) ([]RawToolCall, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if strings.HasPrefix(s, "[") {
		var calls []RawToolCall
		if err := json.Unmarshal([]byte(s), &calls); err != nil {
			return nil, false
		}
		return calls, len(calls) > 0
	}
	if strings.HasPrefix(s, "{") {
		var one RawToolCall
		if err := json.Unmarshal([]byte(s), &one); err != nil || one.Tool == "" {
			return nil, false
		}
		return []RawToolCall{one}, true
	}
	return nil, false
}

// extractFencedJSON finds the first fenced code block (```json or plain
// ```) and returns its trimmed contents, mirroring architect.go's
// extractJSON but kept strategy-distinct so each step records separately.
func extractFencedJSON(text string) (string, bool) {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		start := idx + len("```json")
		if end := strings.Index(text[start:], "```"); end >= 0 {
			return strings.TrimSpace(text[start : start+end]), true
		}
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		start := idx + 3
		if nl := strings.Index(text[start:], "\n"); nl >= 0 {
			start += nl + 1
		}
		if end := strings.Index(text[start:], "```"); end >= 0 {
			candidate := strings.TrimSpace(text[start : start+end])
			if strings.HasPrefix(candidate, "{") || strings.HasPrefix(candidate, "[") {
				return candidate, true
			}
		}
	}
	return "", false
}

// toolCallPattern tolerates single quotes and loosely-formed JSON; it is
// intentionally permissive since this strategy only runs after stricter
// ones have failed.
var toolCallPattern = regexp.MustCompile(`(?s)\{\s*['"]tool['"]\s*:\s*['"]([a-zA-Z0-9_\-]+)['"]\s*,\s*['"]arguments['"]\s*:\s*(\{.*?\})\s*\}`)

// regexSalvage extracts {"tool": ..., "arguments": {...}} fragments from
// otherwise unparseable text, normalizing single quotes and trailing
// commas before each fragment is individually re-validated as JSON.
func regexSalvage(text string) []RawToolCall {
	var out []RawToolCall
	for _, m := range toolCallPattern.FindAllStringSubmatch(text, -1) {
		name := m[1]
		argsText := normalizeLooseJSON(m[2])
		if !json.Valid([]byte(argsText)) {
			continue
		}
		out = append(out, RawToolCall{Tool: name, Arguments: json.RawMessage(argsText)})
	}
	return out
}

var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

// normalizeLooseJSON fixes single-quoted keys/strings and trailing commas.
// It never reorders content — only append/replace style fixes, matching
// tool_repair.go's "never reorder, only patch" philosophy.
func normalizeLooseJSON(s string) string {
	s = trailingCommaPattern.ReplaceAllString(s, "$1")
	if !strings.Contains(s, `"`) && strings.Contains(s, "'") {
		s = strings.ReplaceAll(s, "'", `"`)
	}
	return s
}

// completePartialJSON attempts a deterministic, append-only repair of
// truncated JSON: close any unterminated string, then append missing
// closing brackets in the order their openers appeared. No existing
// character is ever reordered or removed.
func completePartialJSON(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	s := text[start:]

	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(s)
	if inString {
		sb.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			sb.WriteByte('}')
		} else {
			sb.WriteByte(']')
		}
	}
	repaired := sb.String()
	if !json.Valid([]byte(repaired)) {
		return ""
	}
	return repaired
}
