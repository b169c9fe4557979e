// Package providerrouter selects, per task, an ordered fallback list of
// provider candidates. It keeps the shape of the teacher's tool router
// (internal/router: candidate list, hard gate, scored sort, strategy hook)
// but retargets the scored entity from a tool to a provider, and the
// output from a tool ordering to a provider fallback chain.
package providerrouter

import (
	"sort"
	"strings"

	"github.com/apexion-ai/orchestrator-kernel/internal/resilience"
)

// Complexity is the task complexity tier the tier table is keyed on.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityStandard Complexity = "standard"
	ComplexityCritical Complexity = "critical"
)

// Task is the minimal view of a task the router needs: its complexity
// tier and the capability requirements it imposes on a candidate provider.
type Task struct {
	Complexity        Complexity
	RequiresTools     bool
	RequiresImages    bool
	MinContextTokens  int
	EstimatedPromptSz int
}

// ProviderCandidate is one provider the router can route to, along with
// the capability/health facts needed to filter and score it. Capability
// fields are static per provider; BreakerState/LatencyEMA are live and
// supplied by the caller each routing call (the router itself holds no
// provider state).
type ProviderCandidate struct {
	Name            string
	Tier            string // e.g. "fast", "cheap", "most_capable" — matched against the tier table
	SupportsTools   bool
	SupportsImages  bool
	ContextWindow   int
	BreakerState    resilience.BreakerState
	LatencyEMAMillis float64
}

// tierTable maps task complexity to an ordered preference list of provider
// tiers, generalizing the teacher's Intent-keyed preferredTools table
// (internal/router/router.go) to a complexity-keyed provider table.
var tierTable = map[Complexity][]string{
	ComplexitySimple:   {"cheap", "fast", "most_capable"},
	ComplexityStandard: {"fast", "most_capable", "cheap"},
	ComplexityCritical: {"most_capable", "fast", "cheap"},
}

// tierRank returns the preference index of a candidate's tier for the
// given complexity; unknown tiers sort last but are never excluded.
func tierRank(complexity Complexity, tier string) int {
	order, ok := tierTable[complexity]
	if !ok {
		order = tierTable[ComplexityStandard]
	}
	for i, t := range order {
		if strings.EqualFold(t, tier) {
			return i
		}
	}
	return len(order)
}

// Route returns candidates ordered as a fallback chain: try index 0 first,
// then 1, and so on, per spec.md §4.3's four-step selection:
//  1. filter by capability
//  2. filter by breaker state (drop open, prefer closed over half_open)
//  3. sort by policy tier table keyed on task.complexity
//  4. tie-break by observed latency EMA
//
// Route is a pure function: it takes the live BreakerState/LatencyEMA as
// part of each candidate rather than querying breakers itself, mirroring
// the teacher's hardGate/scoreTool split between filtering and scoring.
func Route(task Task, candidates []ProviderCandidate) []ProviderCandidate {
	gated := make([]ProviderCandidate, 0, len(candidates))
	for _, c := range candidates {
		if reason, blocked := hardGate(task, c); blocked {
			_ = reason // recorded by the caller's event log, not here
			continue
		}
		gated = append(gated, c)
	}

	sort.SliceStable(gated, func(i, j int) bool {
		a, b := gated[i], gated[j]
		if ra, rb := breakerRank(a.BreakerState), breakerRank(b.BreakerState); ra != rb {
			return ra < rb
		}
		if ta, tb := tierRank(task.Complexity, a.Tier), tierRank(task.Complexity, b.Tier); ta != tb {
			return ta < tb
		}
		return a.LatencyEMAMillis < b.LatencyEMAMillis
	})
	return gated
}

// hardGate filters out candidates that cannot serve the task at all,
// mirroring internal/router/router.go's hardGate: capability mismatches
// are an exclusion, not a scoring penalty.
func hardGate(task Task, c ProviderCandidate) (string, bool) {
	if task.RequiresTools && !c.SupportsTools {
		return "lacks tool-calling support", true
	}
	if task.RequiresImages && !c.SupportsImages {
		return "lacks image input support", true
	}
	if task.MinContextTokens > 0 && c.ContextWindow < task.MinContextTokens {
		return "context window too small", true
	}
	if c.BreakerState == resilience.Open {
		return "circuit breaker open", true
	}
	return "", false
}

// breakerRank prefers closed over half_open; open is already excluded by
// hardGate but ranked last defensively.
func breakerRank(s resilience.BreakerState) int {
	switch s {
	case resilience.Closed:
		return 0
	case resilience.HalfOpen:
		return 1
	default:
		return 2
	}
}
