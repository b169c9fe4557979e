package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/apexion-ai/orchestrator-kernel/internal/provider"
	"github.com/apexion-ai/orchestrator-kernel/internal/recovery"
	"github.com/apexion-ai/orchestrator-kernel/internal/router"
	"github.com/apexion-ai/orchestrator-kernel/internal/tools"
)

// registryAdapter satisfies recovery.Registry over the real tool registry,
// avoiding a recovery -> tools import cycle.
type registryAdapter struct{ reg *tools.Registry }

func (r registryAdapter) Has(toolName string) bool {
	_, ok := r.reg.Get(toolName)
	return ok
}

// executeToolWithRepair executes a tool call with optional name/arg repair and fallback chain.
func (a *Agent) executeToolWithRepair(ctx context.Context, call *provider.ToolCallRequest) (tools.ToolResult, string, []string) {
	executedName := call.Name
	input := call.Input
	notes := make([]string, 0, 3)

	enabled := a.config.ToolRouting.Enabled
	enableRepair := a.config.ToolRouting.EnableRepair
	enableFallback := a.config.ToolRouting.EnableFallback
	if !enabled {
		enableRepair = false
		enableFallback = false
	}

	executeWithHealth := func(toolName string, args json.RawMessage) (tools.ToolResult, bool) {
		now := time.Now()
		if ok, reason := a.canExecuteTool(toolName, now); !ok {
			return tools.ToolResult{
				Content: reason,
				IsError: true,
			}, true
		}
		out := a.executor.Execute(ctx, toolName, args)
		a.recordToolOutcome(toolName, out.IsError, out.Content, now)
		return out, false
	}

	res, _ := executeWithHealth(executedName, input)
	if !enableRepair && !enableFallback {
		return res, executedName, notes
	}

	// Name repair for unknown-tool errors.
	if res.IsError && isUnknownToolError(res.Content) && enableRepair {
		if repaired, ok := recovery.RepairToolName(executedName, registryAdapter{a.executor.Registry()}); ok && repaired != executedName {
			repairedInput, changed := recovery.RepairArgs(repaired, input)
			if changed {
				notes = append(notes, fmt.Sprintf("mapped tool name `%s` -> `%s` and adjusted args", executedName, repaired))
			} else {
				notes = append(notes, fmt.Sprintf("mapped tool name `%s` -> `%s`", executedName, repaired))
			}
			executedName = repaired
			input = repairedInput
			res, _ = executeWithHealth(executedName, input)
		}
	}

	// Arg repair for schema-style errors.
	if res.IsError && enableRepair && isParamError(res.Content) {
		repairedInput, changed := recovery.RepairArgs(executedName, input)
		if changed {
			notes = append(notes, fmt.Sprintf("repaired arguments for `%s`", executedName))
			input = repairedInput
			res, _ = executeWithHealth(executedName, input)
		}
	}

	// Fallback chain.
	if res.IsError && enableFallback {
		for _, fb := range fallbackTools(executedName) {
			if _, ok := a.executor.Registry().Get(fb); !ok {
				continue
			}
			fbInput, _ := recovery.RepairArgs(fb, input)
			next, blocked := executeWithHealth(fb, fbInput)
			notes = append(notes, fmt.Sprintf("fallback `%s` -> `%s`", executedName, fb))
			if blocked {
				notes = append(notes, fmt.Sprintf("fallback `%s` blocked by circuit breaker", fb))
			}
			if !next.IsError {
				executedName = fb
				res = next
				break
			}
		}
	}

	if len(notes) > 0 {
		prefix := "[Tool repair]\n- " + strings.Join(notes, "\n- ") + "\n\n"
		res.Content = prefix + res.Content
		if a.eventLogger != nil {
			health := a.toolHealthSnapshot(executedName, time.Now())
			a.eventLogger.Log(EventToolRepair, map[string]any{
				"tool_name":              call.Name,
				"executed_tool":          executedName,
				"repair_actions":         notes,
				"is_error":               res.IsError,
				"tool_health_score":      health.Score,
				"tool_circuit_open":      health.CircuitOpen,
				"tool_cooldown_sec":      health.CooldownRemainingSec,
				"tool_successes_total":   health.Successes,
				"tool_failures_total":    health.Failures,
				"tool_consecutive_fails": health.ConsecutiveFails,
			})
		}
	}

	return res, executedName, notes
}

func fallbackTools(toolName string) []string {
	return router.DegradePolicyForTool(toolName)
}

func isUnknownToolError(s string) bool {
	return strings.Contains(strings.ToLower(s), "unknown tool")
}

func isParamError(s string) bool {
	low := strings.ToLower(s)
	return strings.Contains(low, "invalid params") ||
		strings.Contains(low, "is required") ||
		strings.Contains(low, "invalid json")
}
