package parser

import (
	"encoding/json"
	"testing"
)

func TestParseStrictJSONArray(t *testing.T) {
	p := Parse(`[{"tool":"read_file","arguments":{"file_path":"a.go"}}]`)
	if p.Strategy != StrategyStrictJSON || len(p.ToolCalls) != 1 {
		t.Fatalf("got %+v", p)
	}
	if p.ToolCalls[0].Tool != "read_file" {
		t.Fatalf("unexpected tool: %s", p.ToolCalls[0].Tool)
	}
}

func TestParseFencedJSON(t *testing.T) {
	text := "Sure, here goes:\n```json\n{\"tool\":\"grep\",\"arguments\":{\"pattern\":\"TODO\"}}\n```\nDone."
	p := Parse(text)
	if p.Strategy != StrategyFencedJSON {
		t.Fatalf("expected fenced_json, got %s", p.Strategy)
	}
	if len(p.ToolCalls) != 1 || p.ToolCalls[0].Tool != "grep" {
		t.Fatalf("got %+v", p.ToolCalls)
	}
}

func TestParseRegexSalvageToleratesSingleQuotesAndTrailingComma(t *testing.T) {
	text := `blah blah {'tool': 'glob', 'arguments': {'pattern': '**/*.go',}} more text`
	p := Parse(text)
	if p.Strategy != StrategyRegexSalvage {
		t.Fatalf("expected regex_salvage, got %s", p.Strategy)
	}
	if len(p.ToolCalls) != 1 || p.ToolCalls[0].Tool != "glob" {
		t.Fatalf("got %+v", p.ToolCalls)
	}
}

func TestParsePartialJSONCompletion(t *testing.T) {
	text := `{"tool": "read_file", "arguments": {"file_path": "main.go"`
	p := Parse(text)
	if p.Strategy != StrategyPartialJSON {
		t.Fatalf("expected partial_json_completion, got %s", p.Strategy)
	}
	if len(p.ToolCalls) != 1 || p.ToolCalls[0].Tool != "read_file" {
		t.Fatalf("got %+v", p.ToolCalls)
	}
}

func TestParsePlainTextFallback(t *testing.T) {
	p := Parse("Just a normal reply with no tool calls at all.")
	if p.Strategy != StrategyPlainText {
		t.Fatalf("expected plain_text, got %s", p.Strategy)
	}
	if len(p.ToolCalls) != 0 {
		t.Fatalf("expected no tool calls, got %+v", p.ToolCalls)
	}
}

func TestSanitizeRejectsPathTraversal(t *testing.T) {
	call := RawToolCall{Tool: "read_file", Arguments: []byte(`{"file_path":"../../etc/passwd"}`)}
	if _, err := Sanitize("read_file", call, DefaultSanitizeConfig()); err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
}

func TestSanitizeRejectsShellInjectionInNonShellTool(t *testing.T) {
	call := RawToolCall{Tool: "grep", Arguments: []byte(`{"pattern":"foo; rm -rf /"}`)}
	if _, err := Sanitize("grep", call, DefaultSanitizeConfig()); err == nil {
		t.Fatal("expected shell metacharacter to be rejected")
	}
}

func TestSanitizeAllowsShellMetacharsInDeclaredRawShellField(t *testing.T) {
	call := RawToolCall{Tool: "bash", Arguments: []byte(`{"command":"go test ./... && echo done"}`)}
	if _, err := Sanitize("bash", call, DefaultSanitizeConfig()); err != nil {
		t.Fatalf("expected bash.command to be exempted, got %v", err)
	}
}

func TestSanitizeTruncatesOverlongStrings(t *testing.T) {
	cfg := DefaultSanitizeConfig()
	cfg.MaxArgStringLen = 10
	long := ""
	for i := 0; i < 50; i++ {
		long += "x"
	}
	call := RawToolCall{Tool: "write_file", Arguments: []byte(`{"content":"` + long + `"}`)}
	out, err := Sanitize("write_file", call, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var fields map[string]string
	if err := json.Unmarshal(out.Arguments, &fields); err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if len(fields["content"]) <= cfg.MaxArgStringLen {
		t.Fatal("expected truncation marker to keep content longer than raw cutoff but bounded")
	}
}
