package parser

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// SanitizeConfig tunes mandatory sanitization. Tools that legitimately need
// raw shell content (a bash tool's "command" field) are named in
// RawShellFields so they're exempted from the shell-metacharacter check —
// command injection prevention there is the Safety Gate's job (§4.6), not
// the parser's.
type SanitizeConfig struct {
	MaxArgStringLen int
	RawShellFields  map[string]bool // "toolName.fieldName" -> true
}

func DefaultSanitizeConfig() SanitizeConfig {
	return SanitizeConfig{
		MaxArgStringLen: 64 * 1024,
		RawShellFields:  map[string]bool{"bash.command": true},
	}
}

// pathFieldNames signals which argument names are path-shaped and therefore
// subject to path-traversal rejection.
var pathFieldNames = map[string]bool{
	"file_path": true, "path": true, "dir": true, "directory": true, "filename": true,
}

var shellMetachars = []string{";", "|", "&&", "||", "$(", "`"}

// Sanitize validates a RawToolCall's arguments against the mandatory rules
// in spec.md §4.4, returning an error describing the first violation found.
// It never mutates arguments in place except for the documented truncation
// of overlong string fields.
func Sanitize(toolName string, call RawToolCall, cfg SanitizeConfig) (RawToolCall, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(call.Arguments, &fields); err != nil {
		return call, fmt.Errorf("arguments are not a JSON object: %w", err)
	}

	out := make(map[string]json.RawMessage, len(fields))
	for name, raw := range fields {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			out[name] = raw // non-string field, passes through untouched
			continue
		}

		if pathFieldNames[name] && pathTraverses(s) {
			return call, fmt.Errorf("argument %q rejected: path traversal (%q)", name, s)
		}

		if !cfg.RawShellFields[toolName+"."+name] && containsShellMetachar(s) {
			return call, fmt.Errorf("argument %q rejected: shell metacharacter in %q", name, s)
		}

		if cfg.MaxArgStringLen > 0 && len(s) > cfg.MaxArgStringLen {
			s = s[:cfg.MaxArgStringLen] + fmt.Sprintf("\n[...truncated, %d chars omitted...]", len(s)-cfg.MaxArgStringLen)
		}
		encoded, _ := json.Marshal(s)
		out[name] = encoded
	}

	merged, err := json.Marshal(out)
	if err != nil {
		return call, fmt.Errorf("re-encoding sanitized arguments: %w", err)
	}
	call.Arguments = merged
	return call, nil
}

// pathTraverses reports whether a cleaned path still climbs above its
// starting point via ".." segments.
func pathTraverses(p string) bool {
	clean := filepath.Clean(p)
	return clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, string(filepath.Separator)+"..")
}

// containsShellMetachar mirrors the Safety Gate's bash-command check
// (internal/permission's DefaultPolicy.isCommandAllowed helper) so the
// same injection markers are rejected at both layers.
func containsShellMetachar(s string) bool {
	for _, meta := range shellMetachars {
		if strings.Contains(s, meta) {
			return true
		}
	}
	return false
}
