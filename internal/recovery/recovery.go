// Package recovery diagnoses and repairs a failed tool call. It
// generalizes the agent package's deterministic tool_repair.go (name/arg
// rename tables, fallback chain) and failureloop.go (repeated-failure
// streak detection) into a bounded-attempt recovery strategy, adding an
// LLM round-trip for failures the deterministic tables can't resolve.
package recovery

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/apexion-ai/orchestrator-kernel/internal/provider"
)

// ErrorKind categorizes a tool failure, driving which recovery strategy applies.
type ErrorKind string

const (
	ErrorMissingFile ErrorKind = "missing_file"
	ErrorParameter   ErrorKind = "parameter_error"
	ErrorPermission  ErrorKind = "permission"
	ErrorTransient   ErrorKind = "transient"
	ErrorUnknownTool ErrorKind = "unknown_tool"
	ErrorOther       ErrorKind = "other"
)

// Context is the input to a recovery attempt, built from the failed call
// plus enough conversation history for an LLM round-trip to have context.
type Context struct {
	ToolName     string
	Args         json.RawMessage
	ErrorKind    ErrorKind
	ErrorMessage string
	RecentTurns  []provider.Message
}

// Diagnosis is the Recovery Engine's verdict: either corrected arguments to
// retry with, a different tool name to try (name repair or fallback chain),
// or an instruction to give up and surface the failure upward.
type Diagnosis struct {
	GiveUp        bool
	Reasoning     string
	CorrectedTool string          // "" means keep ToolName
	CorrectedArgs json.RawMessage // nil means keep Args
	RetryDelay    time.Duration   // non-zero for ErrorTransient: wait before retry, no LLM round-trip
}

// CategorizeError maps a raw tool error message to an ErrorKind, ported
// from tool_repair.go's isUnknownToolError/isParamError and retry.go's
// isRetryableError string-sniffing idiom.
func CategorizeError(msg string) ErrorKind {
	low := strings.ToLower(msg)
	switch {
	case strings.Contains(low, "unknown tool"):
		return ErrorUnknownTool
	case strings.Contains(low, "no such file"), strings.Contains(low, "not found"), strings.Contains(low, "does not exist"):
		return ErrorMissingFile
	case strings.Contains(low, "invalid params"), strings.Contains(low, "is required"), strings.Contains(low, "invalid json"):
		return ErrorParameter
	case strings.Contains(low, "permission denied"), strings.Contains(low, "not allowed"), strings.Contains(low, "denied"):
		return ErrorPermission
	case isTransientMessage(low):
		return ErrorTransient
	default:
		return ErrorOther
	}
}

// isTransientMessage mirrors agent/retry.go's isRetryableError classification.
func isTransientMessage(low string) bool {
	for _, marker := range []string{
		"429", "rate limit", "rate_limit", "529", "overloaded",
		"500", "502", "503", "504",
		"connection refused", "connection reset", "timeout", "eof", "temporary failure",
	} {
		if strings.Contains(low, marker) {
			return true
		}
	}
	return false
}

// Registry is the subset of the Tool Registry the recovery engine needs to
// look up a renamed or fallback tool by name, decoupled from the tools
// package to avoid a C9 -> C5 import cycle.
type Registry interface {
	Has(toolName string) bool
}

// Diagnose builds a Diagnosis for a failed call. ask, when non-nil, is
// invoked only when deterministic repair (name/arg tables, transient
// retry) cannot resolve the failure — it performs the LLM round-trip
// described in spec.md §4.9's RecoveryContext workflow.
func Diagnose(ctx context.Context, rc Context, registry Registry, ask func(context.Context, Context) (Diagnosis, error)) (Diagnosis, error) {
	switch rc.ErrorKind {
	case ErrorTransient:
		return Diagnosis{Reasoning: "transient error, retrying without model round-trip", RetryDelay: 2 * time.Second}, nil

	case ErrorUnknownTool:
		if repaired, ok := RepairToolName(rc.ToolName, registry); ok {
			return Diagnosis{Reasoning: fmt.Sprintf("mapped tool name %q -> %q", rc.ToolName, repaired), CorrectedTool: repaired}, nil
		}

	case ErrorParameter:
		if repairedArgs, changed := RepairArgs(rc.ToolName, rc.Args); changed {
			return Diagnosis{Reasoning: "repaired arguments via rename table", CorrectedArgs: repairedArgs}, nil
		}

	case ErrorPermission:
		return Diagnosis{GiveUp: true, Reasoning: "permission error must be resolved by the safety gate, not retried"}, nil
	}

	if ask == nil {
		return Diagnosis{GiveUp: true, Reasoning: "no deterministic repair available and no model fallback configured"}, nil
	}
	return ask(ctx, rc)
}

// Attempts runs Diagnose in a bounded loop, applying each non-give-up
// Diagnosis and invoking execute again, stopping at maxAttempts
// (default 2 per spec.md §4.9) or on GiveUp.
func Attempts(
	ctx context.Context,
	rc Context,
	registry Registry,
	ask func(context.Context, Context) (Diagnosis, error),
	execute func(ctx context.Context, toolName string, args json.RawMessage) (ok bool, errMsg string),
	maxAttempts int,
) (finalOK bool, diagnoses []Diagnosis) {
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	toolName, args := rc.ToolName, rc.Args
	for attempt := 0; attempt < maxAttempts; attempt++ {
		d, err := Diagnose(ctx, rc, registry, ask)
		if err != nil {
			d = Diagnosis{GiveUp: true, Reasoning: "recovery diagnosis failed: " + err.Error()}
		}
		diagnoses = append(diagnoses, d)
		if d.GiveUp {
			return false, diagnoses
		}
		if d.RetryDelay > 0 {
			if err := sleepWithContext(ctx, d.RetryDelay); err != nil {
				return false, diagnoses
			}
		}
		if d.CorrectedTool != "" {
			toolName = d.CorrectedTool
		}
		if d.CorrectedArgs != nil {
			args = d.CorrectedArgs
		}
		ok, errMsg := execute(ctx, toolName, args)
		if ok {
			return true, diagnoses
		}
		rc = Context{ToolName: toolName, Args: args, ErrorKind: CategorizeError(errMsg), ErrorMessage: errMsg, RecentTurns: rc.RecentTurns}
	}
	return false, diagnoses
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RepairToolName normalizes name, then consults a small alias table, then
// tries the MCP server/tool -> mcp__x__y form. It is the single source of
// truth for tool-name repair; the agent package's dispatch layer
// (tool_repair.go) calls this instead of keeping its own copy.
func RepairToolName(name string, registry Registry) (string, bool) {
	if registry.Has(name) {
		return name, false
	}
	normalized := normalizeToolName(name)
	if registry.Has(normalized) {
		return normalized, true
	}
	if mapped, ok := toolNameAliases()[normalized]; ok && registry.Has(mapped) {
		return mapped, true
	}
	if strings.Count(normalized, "/") == 1 {
		candidate := "mcp__" + strings.ReplaceAll(normalized, "/", "__")
		if registry.Has(candidate) {
			return candidate, true
		}
	}
	return name, false
}

func normalizeToolName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, ".", "_")
	return strings.Trim(s, "_")
}

func toolNameAliases() map[string]string {
	return map[string]string{
		"read": "read_file", "view": "read_file", "cat": "read_file",
		"write": "write_file", "create_file": "write_file",
		"edit": "edit_file", "patch": "edit_file",
		"ls": "list_dir", "list": "list_dir",
		"search": "grep", "grep_files": "grep",
		"find_files": "glob",
		"fetch":      "web_fetch", "webfetch": "web_fetch",
		"websearch": "web_search", "search_web": "web_search",
		"repomap": "repo_map", "repo_map_tool": "repo_map",
		"symbol": "symbol_nav", "symbol_search": "symbol_nav", "symbol_lookup": "symbol_nav",
		"docs": "doc_context", "doc_search": "doc_context", "documentation": "doc_context",
		"gitstatus": "git_status", "gitdiff": "git_diff", "gitlog": "git_log",
		"gitbranch": "git_branch", "gitcommit": "git_commit", "gitpush": "git_push",
	}
}

// RepairArgs applies a small rename table per tool, mirroring
// tool_repair.go's repairToolArgs — it only ever renames or fills a
// missing field, never reorders or deletes unrelated ones.
func RepairArgs(toolName string, raw json.RawMessage) (json.RawMessage, bool) {
	if len(raw) == 0 {
		return raw, false
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw, false
	}
	if m == nil {
		m = map[string]any{}
	}
	changed := false
	rename := func(from, to string) {
		if from == to {
			return
		}
		v, ok := m[from]
		if !ok {
			return
		}
		if _, exists := m[to]; !exists {
			m[to] = v
			changed = true
		}
		delete(m, from)
		changed = true
	}

	switch toolName {
	case "read_file", "write_file", "edit_file":
		rename("path", "file_path")
		rename("file", "file_path")
	case "glob":
		rename("file_pattern", "pattern")
		rename("dir", "path")
	case "grep":
		rename("query", "pattern")
		rename("q", "pattern")
		rename("dir", "path")
		rename("file_pattern", "glob")
		rename("ignore_case", "case_insensitive")
	case "list_dir":
		rename("dir", "path")
		rename("directory", "path")
	case "bash":
		rename("cmd", "command")
		rename("shell", "command")
	case "web_search":
		rename("q", "query")
		rename("query_text", "query")
		rename("num_results", "max_results")
		rename("results", "max_results")
	case "web_fetch":
		rename("link", "url")
		rename("uri", "url")
		rename("query", "prompt")
		rename("instruction", "prompt")
		if _, ok := m["prompt"]; !ok {
			m["prompt"] = "Extract the key information relevant to the user request."
			changed = true
		}
	case "repo_map":
		rename("dir", "path")
		rename("root", "path")
		rename("tokens", "max_tokens")
	case "symbol_nav":
		rename("name", "symbol")
		rename("query", "symbol")
		rename("dir", "path")
		if v, ok := m["references_only"].(bool); ok && v {
			if _, exists := m["mode"]; !exists {
				m["mode"] = "references"
				changed = true
			}
		}
	case "doc_context":
		rename("query", "topic")
		rename("q", "topic")
		rename("framework", "library")
		rename("package", "library")
		rename("pkg", "library")
		rename("ver", "version")
		rename("results", "max_results")
		rename("top_k", "fetch_top")
	}

	if !changed {
		return raw, false
	}
	fixed, err := json.Marshal(m)
	if err != nil {
		return raw, false
	}
	return fixed, true
}

// LoopDetector tracks repeated all-failed batches of tool calls within one
// task run, generalizing failureloop.go's warn/stop streak thresholds from
// a whole interactive session to a single bounded task.
type LoopDetector struct {
	WarnThreshold int // default 2
	StopThreshold int // default 4

	lastSig string
	streak  int
}

func NewLoopDetector() *LoopDetector {
	return &LoopDetector{WarnThreshold: 2, StopThreshold: 4}
}

// Action is the escalation verdict from one batch check.
type Action int

const (
	ActionNone Action = iota
	ActionWarn
	ActionStop
)

// Check records one failed-call signature (built from the tool name and
// arguments of every call in a batch) and returns whether the repeated
// pattern warrants a warning or an outright stop.
func (d *LoopDetector) Check(calls []Context) Action {
	sig := batchSignature(calls)
	if sig == "" {
		d.lastSig = ""
		d.streak = 0
		return ActionNone
	}
	if sig == d.lastSig {
		d.streak++
	} else {
		d.lastSig = sig
		d.streak = 1
	}

	warn := d.WarnThreshold
	stop := d.StopThreshold
	if warn <= 0 {
		warn = 2
	}
	if stop <= 0 {
		stop = 4
	}
	switch {
	case d.streak >= stop:
		return ActionStop
	case d.streak >= warn:
		return ActionWarn
	default:
		return ActionNone
	}
}

func batchSignature(calls []Context) string {
	if len(calls) == 0 {
		return ""
	}
	parts := make([]string, len(calls))
	for i, c := range calls {
		parts[i] = c.ToolName + ":" + string(c.Args)
	}
	sort.Strings(parts)
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", h)
}
