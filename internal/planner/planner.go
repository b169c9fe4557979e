// Package planner decomposes a classified request into a Plan: either a
// single pass-through task, or a DAG of subtasks with dependencies and a
// topology hint for the executor. It generalizes agent/architect.go's
// dual-model (big-model-plans, small-model-executes) JSON workflow:
// ArchitectStep becomes Task, ArchitectPlan.Steps ordering becomes a Task
// DAG, and the step Action (create/modify/delete/run) feeds agent_kind
// selection instead of being executed directly.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apexion-ai/orchestrator-kernel/internal/intent"
)

// AgentKind is the closed set of execution personas a Task can be routed
// to, generalized from architect.go's runSubAgent mode switch
// ("explore"/"plan"/"code").
type AgentKind string

const (
	AgentExplore AgentKind = "explore"
	AgentPlan    AgentKind = "plan"
	AgentCode    AgentKind = "code"
	AgentReview  AgentKind = "review"
	AgentTest    AgentKind = "test"
)

// Topology names the concurrency shape the Topology Executor (C12) should
// run a Plan's tasks under.
type Topology string

const (
	TopologySequential  Topology = "sequential"
	TopologyParallel    Topology = "parallel"
	TopologyHybrid      Topology = "hybrid"
	TopologyCentralized Topology = "centralized"
)

// Task is one node in the plan DAG.
type Task struct {
	ID           string    `json:"id"`
	Description  string    `json:"description"`
	AgentKind    AgentKind `json:"agent_kind"`
	Files        []string  `json:"files,omitempty"`
	Details      string    `json:"details,omitempty"`
	DependsOn    []string  `json:"depends_on,omitempty"`
	Critical     bool      `json:"critical,omitempty"`
}

// Plan is the Task Decomposer's output.
type Plan struct {
	Summary      string     `json:"summary"`
	Tasks        []Task     `json:"tasks"`
	Topology     Topology   `json:"topology"`
	GatingReason string     `json:"-"` // not serialized; nothing in this package sets it
}

// DefaultGatingThreshold is the plan_gating_threshold default from spec.md §4.11.
const DefaultGatingThreshold = 2

// NeedsApproval reports whether the Orchestrator must obtain an
// accept/reject/edit Approval before running this plan: either the plan
// has at least threshold tasks, or any task is critical.
func NeedsApproval(p Plan, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultGatingThreshold
	}
	if len(p.Tasks) >= threshold {
		return true
	}
	for _, t := range p.Tasks {
		if t.Critical {
			return true
		}
	}
	return false
}

// planningSystemPrompt forces the same JSON-plan shape architectSystemPrompt
// uses, retargeted from file-edit steps to AgentKind-routed tasks.
const planningSystemPrompt = `You are a task planner. Break the user's request into an ordered set of tasks.

Your plan MUST be valid JSON with this exact format:
{
  "summary": "Brief description of the overall goal",
  "tasks": [
    {
      "id": "t1",
      "description": "What this task accomplishes",
      "agent_kind": "explore",
      "files": ["path/to/file.go"],
      "details": "Specific instructions for the executing agent",
      "depends_on": [],
      "critical": false
    }
  ]
}

agent_kind must be one of: explore, plan, code, review, test.
depends_on lists the ids of tasks that must complete first; leave empty for an independent task.
Mark a task critical only if its failure should block the rest of the plan.
Output ONLY the JSON plan, no other text.`

// verbSplitters are composite-request markers signaling a request names
// more than one independent goal, per spec.md §4.11's "verbs compose" rule.
var verbSplitters = []string{" and then ", " and also ", ", then ", " and ", "; "}

// isAtomic reports whether a request looks like a single task: none of
// the verbSplitters markers occurs in it.
func isAtomic(request string) bool {
	low := strings.ToLower(request)
	for _, marker := range verbSplitters {
		if strings.Contains(low, marker) {
			return false
		}
	}
	return true
}

// PassThrough builds the single-task Plan for an atomic request, mirroring
// ArchitectMode.Run's empty-plan/single-step short circuit.
func PassThrough(request string, k intent.Kind) Plan {
	return Plan{
		Summary:  request,
		Tasks:    []Task{{ID: "t1", Description: request, AgentKind: agentKindForIntent(k)}},
		Topology: TopologySequential,
	}
}

func agentKindForIntent(k intent.Kind) AgentKind {
	switch k {
	case intent.Explore, intent.Explain, intent.Docs, intent.Data:
		return AgentExplore
	case intent.Planning:
		return AgentPlan
	case intent.Review, intent.Security:
		return AgentReview
	case intent.Test:
		return AgentTest
	default:
		return AgentCode
	}
}

// Decompose splits a composite request into a multi-task Plan by its verb
// markers, assigning a naive dependency chain (each task depends on the
// previous one) as a conservative default — callers needing a true DAG
// should build one from a model-backed Plan instead (see ModelDecomposer).
func Decompose(request string, k intent.Kind) Plan {
	parts := splitOnVerbs(request)
	tasks := make([]Task, 0, len(parts))
	for i, part := range parts {
		t := Task{
			ID:          fmt.Sprintf("t%d", i+1),
			Description: strings.TrimSpace(part),
			AgentKind:   agentKindForIntent(k),
		}
		if i > 0 {
			t.DependsOn = []string{tasks[i-1].ID}
		}
		tasks = append(tasks, t)
	}
	return Plan{
		Summary:  request,
		Tasks:    tasks,
		Topology: TopologyForTasks(tasks),
	}
}

func splitOnVerbs(request string) []string {
	s := request
	for _, marker := range verbSplitters {
		s = strings.ReplaceAll(s, marker, "|")
	}
	raw := strings.Split(s, "|")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if t := strings.TrimSpace(r); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return []string{request}
	}
	return out
}

// TopologyForTasks chooses a topology hint by the shape of the dependency
// DAG: no dependencies anywhere -> parallel; every task depends on exactly
// the one before it -> sequential; anything else -> hybrid.
func TopologyForTasks(tasks []Task) Topology {
	if len(tasks) <= 1 {
		return TopologySequential
	}
	anyDeps := false
	strictChain := true
	for i, t := range tasks {
		if len(t.DependsOn) > 0 {
			anyDeps = true
		}
		if i == 0 {
			if len(t.DependsOn) != 0 {
				strictChain = false
			}
			continue
		}
		if len(t.DependsOn) != 1 || t.DependsOn[0] != tasks[i-1].ID {
			strictChain = false
		}
	}
	switch {
	case !anyDeps:
		return TopologyParallel
	case strictChain:
		return TopologySequential
	default:
		return TopologyHybrid
	}
}

// Decomposer produces a Plan for a classified request.
type Decomposer interface {
	Decompose(ctx context.Context, request string, k intent.Kind) (Plan, error)
}

// HeuristicDecomposer is the zero-dependency Decomposer: atomic requests
// pass through as a single task, composite ones split on verb markers with
// a conservative sequential dependency chain.
type HeuristicDecomposer struct{}

func (HeuristicDecomposer) Decompose(_ context.Context, request string, k intent.Kind) (Plan, error) {
	if isAtomic(request) {
		return PassThrough(request, k), nil
	}
	return Decompose(request, k), nil
}

// ModelDecomposer asks a model to produce the Plan JSON directly, letting
// it declare a real dependency DAG instead of HeuristicDecomposer's
// conservative chain. Grounded on architect.go's getPlan: forced-JSON
// system prompt, fenced/raw extraction, json.Unmarshal, with a fallback
// to HeuristicDecomposer on any failure.
type ModelDecomposer struct {
	Ask      func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Fallback HeuristicDecomposer
}

func (m ModelDecomposer) Decompose(ctx context.Context, request string, k intent.Kind) (Plan, error) {
	if m.Ask == nil {
		return m.Fallback.Decompose(ctx, request, k)
	}
	output, err := m.Ask(ctx, planningSystemPrompt, request)
	if err != nil {
		return m.Fallback.Decompose(ctx, request, k)
	}
	jsonStr := extractJSON(output)
	if jsonStr == "" {
		return m.Fallback.Decompose(ctx, request, k)
	}
	var plan Plan
	if err := json.Unmarshal([]byte(jsonStr), &plan); err != nil || len(plan.Tasks) == 0 {
		return m.Fallback.Decompose(ctx, request, k)
	}
	if plan.Topology == "" {
		plan.Topology = TopologyForTasks(plan.Tasks)
	}
	return plan, nil
}

// extractJSON mirrors agent/architect.go's extractJSON fenced/raw
// extraction (duplicated locally rather than imported: planner and intent
// both need it and neither should import the other for one helper).
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
