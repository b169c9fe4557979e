package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxFileBytes caps how much of a project context file is injected into the
// system prompt, to keep a stray huge README from blowing the context window.
const maxFileBytes = 8 * 1024

// projectContextFiles are checked in cwd, in priority order.
var projectContextFiles = []string{"ORCHKERNEL.md", "AGENTS.md"}

// loadProjectContext looks for a root context file (ORCHKERNEL.md / AGENTS.md)
// and a .orchkernel/context.md override, concatenating whatever it finds and
// wrapping the result in <project_context> tags for the system prompt.
func loadProjectContext(cwd string) string {
	var parts []string

	for _, name := range projectContextFiles {
		path := filepath.Join(cwd, name)
		if content := readContextFile(path); content != "" {
			parts = append(parts, fmt.Sprintf("From %s:\n%s", path, content))
			break // first match wins among root-level candidates
		}
	}

	dotPath := filepath.Join(cwd, ".orchkernel", "context.md")
	if content := readContextFile(dotPath); content != "" {
		parts = append(parts, fmt.Sprintf("From %s:\n%s", dotPath, content))
	}

	if len(parts) == 0 {
		return ""
	}

	return "\n\n<project_context>\n" + strings.Join(parts, "\n\n") + "\n</project_context>"
}

// readContextFile reads a file and returns its trimmed content, truncating
// at maxFileBytes with a notice. Returns "" if the file is missing or empty.
func readContextFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return ""
	}

	if len(content) > maxFileBytes {
		content = content[:maxFileBytes] + fmt.Sprintf("\n[Truncated at %d bytes]", maxFileBytes)
	}

	return content
}

// findGitRoot walks up from dir looking for a .git entry, returning the
// containing directory or "" if dir isn't inside a git repository.
func findGitRoot(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		if info, err := os.Stat(filepath.Join(abs, ".git")); err == nil && (info.IsDir() || info.Mode().IsRegular()) {
			return abs
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return ""
		}
		abs = parent
	}
}
