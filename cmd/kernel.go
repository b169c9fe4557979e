package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/apexion-ai/orchestrator-kernel/internal/agent"
	"github.com/apexion-ai/orchestrator-kernel/internal/config"
	"github.com/apexion-ai/orchestrator-kernel/internal/intent"
	"github.com/apexion-ai/orchestrator-kernel/internal/mcp"
	"github.com/apexion-ai/orchestrator-kernel/internal/orchestrator"
	"github.com/apexion-ai/orchestrator-kernel/internal/permission"
	"github.com/apexion-ai/orchestrator-kernel/internal/planner"
	"github.com/apexion-ai/orchestrator-kernel/internal/provider"
	"github.com/apexion-ai/orchestrator-kernel/internal/providerrouter"
	"github.com/apexion-ai/orchestrator-kernel/internal/resilience"
	"github.com/apexion-ai/orchestrator-kernel/internal/session"
	"github.com/apexion-ai/orchestrator-kernel/internal/tools"
	"github.com/apexion-ai/orchestrator-kernel/internal/topology"
	"github.com/apexion-ai/orchestrator-kernel/internal/tui"
	"github.com/spf13/cobra"
)

// newClassifyCmd exposes the Request Classifier (C10) standalone, for
// inspecting how a request would be routed without running it.
func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [request text]",
		Short: "Classify a request into an intent, without planning or running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			got := intent.NewHeuristicClassifier().Classify(cmd.Context(), args[0])
			fmt.Printf("intent=%s confidence=%.2f reason=%q\n", got.Kind, got.Confidence, got.Reasoning)
			return nil
		},
	}
}

// newPlanCmd exposes the Task Decomposer (C11) standalone.
func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [request text]",
		Short: "Decompose a request into a task plan, without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := intent.NewHeuristicClassifier()
			got := c.Classify(cmd.Context(), args[0])
			plan, err := planner.HeuristicDecomposer{}.Decompose(cmd.Context(), args[0], got.Kind)
			if err != nil {
				return err
			}
			fmt.Printf("summary=%q topology=%s tasks=%d\n", plan.Summary, plan.Topology, len(plan.Tasks))
			for _, task := range plan.Tasks {
				fmt.Printf("  - %s [%s] depends_on=%v %s\n", task.ID, task.AgentKind, task.DependsOn, task.Description)
			}
			if planner.NeedsApproval(plan, planner.DefaultGatingThreshold) {
				fmt.Println("approval required before this plan may run")
			}
			return nil
		},
	}
}

// guardedCandidate pairs a resilience-wrapped provider with the routing
// tier providerrouter.Route ranks it under.
type guardedCandidate struct {
	name    string
	tier    string
	guarded *resilience.GuardedProvider
}

// buildGuardedProviders stands up one GuardedProvider (C2+C1) per
// configured provider with an API key, so providerrouter (C3) has more
// than one candidate to choose among. The config-file default provider
// (cfg.Provider) is ranked "most_capable"; every other configured
// provider is ranked "cheap", a conservative default in the absence of
// a cost table.
func buildGuardedProviders(cfg *config.Config) ([]guardedCandidate, error) {
	names := map[string]bool{cfg.Provider: true}
	for name, pc := range cfg.Providers {
		if pc != nil && pc.APIKey != "" {
			names[name] = true
		}
	}

	candidates := make([]guardedCandidate, 0, len(names))
	var firstErr error
	for name := range names {
		p, err := buildProviderNamed(cfg, name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		tier := "cheap"
		if name == cfg.Provider {
			tier = "most_capable"
		}
		candidates = append(candidates, guardedCandidate{
			name: name,
			tier: tier,
			guarded: resilience.NewGuardedProvider(
				p,
				resilience.DefaultBreakerConfig(),
				resilience.RateLimiterConfig{},
			),
		})
	}
	if len(candidates) == 0 {
		return nil, firstErr
	}
	return candidates, nil
}

// taskPrompt renders a planner.Task into the prompt text handed to the
// agent loop, folding in the file list and the architect-style detail
// blob the decomposer attaches for non-trivial tasks.
func taskPrompt(t planner.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", t.AgentKind, t.Description)
	if len(t.Files) > 0 {
		fmt.Fprintf(&b, "\nRelevant files: %s", strings.Join(t.Files, ", "))
	}
	if t.Details != "" {
		fmt.Fprintf(&b, "\n\n%s", t.Details)
	}
	return b.String()
}

// runOrchestrate drives the full C14 -> C12 -> C13 -> C3 -> C2 -> C1 ->
// C4 -> C5 data flow for one request: classify it, decompose it into a
// plan, gate on approval, then run every task through a real Agent
// Kernel instance selected by providerrouter and protected by a
// GuardedProvider, aggregating results under the planned topology.
func runOrchestrate(request string) error {
	cfg := initConfig()

	candidates, err := buildGuardedProviders(cfg)
	if err != nil {
		return fmt.Errorf("no provider configured for orchestrated run: %w", err)
	}
	byName := make(map[string]*guardedCandidate, len(candidates))
	for i := range candidates {
		byName[candidates[i].name] = &candidates[i]
	}

	registry := tools.DefaultRegistry(&tools.WebToolsConfig{
		SearchProvider: cfg.Web.SearchProvider,
		SearchAPIKey:   cfg.Web.SearchAPIKey,
	}, &tools.BashToolConfig{
		WorkDir:  cfg.Sandbox.WorkDir,
		AuditLog: cfg.Sandbox.AuditLog,
	})
	policy := permission.NewDefaultPolicy(&cfg.Permissions)
	executor := tools.NewExecutor(registry, policy)

	cwd, _ := os.Getwd()
	if hm := tools.LoadHooks(cwd); hm.HasHooks() {
		executor.SetHooks(hm)
	}
	if linter := tools.NewLinter(cfg.Lint); linter != nil {
		executor.SetLinter(linter)
	}
	if tr := tools.NewTestRunner(cfg.Test); tr != nil {
		executor.SetTestRunner(tr)
	}

	mcpCfg, _ := mcp.LoadMCPConfig(cwd)
	var mcpMgr *mcp.Manager
	if mcpCfg != nil && len(mcpCfg.MCPServers) > 0 {
		mcpMgr = mcp.NewManager(mcpCfg)
		defer mcpMgr.Close()
		n := mcp.RegisterTools(mcpMgr, registry)
		if n > 0 {
			fmt.Fprintf(os.Stderr, "[mcp] registered %d tool(s)\n", n)
		}
	}

	store := session.NullStore{}

	run := func(ctx context.Context, t planner.Task) (string, error) {
		complexity := providerrouter.ComplexityStandard
		if t.Critical {
			complexity = providerrouter.ComplexityCritical
		}
		routingTask := providerrouter.Task{
			Complexity:    complexity,
			RequiresTools: true,
		}

		ranked := providerrouter.Route(routingTask, candidateSnapshots(candidates))
		if len(ranked) == 0 {
			return "", fmt.Errorf("providerrouter: no provider candidate available for task %s", t.ID)
		}
		chosen := byName[ranked[0].Name]

		ui := tui.NewBufferIO()
		a := agent.New(chosen.guarded, executor, cfg, ui, store)
		if mcpMgr != nil {
			a.SetMCPManager(mcpMgr)
		}

		err := a.RunOnce(ctx, taskPrompt(t))
		return ui.Output(), err
	}

	o := &orchestrator.Orchestrator{
		Classify: func(ctx context.Context, request string) intent.Intent {
			return intent.NewHeuristicClassifier().Classify(ctx, request)
		},
		Decompose:        planner.HeuristicDecomposer{},
		Run:              run,
		Options:          topology.Options{MaxParallelTasks: 4},
		ApprovalCallback: approvalCallback,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	result := o.Handle(ctx, request)
	fmt.Printf("state=%s summary=%q\n", result.State, result.Summary)
	for _, r := range result.TaskResults {
		fmt.Printf("--- %s (%s) ---\n%s\n", r.TaskID, r.Status, r.Output)
	}
	return result.Err
}

// candidateSnapshots reads each guarded provider's live breaker state and
// latency EMA into the value type providerrouter.Route consumes.
func candidateSnapshots(candidates []guardedCandidate) []providerrouter.ProviderCandidate {
	out := make([]providerrouter.ProviderCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, providerrouter.ProviderCandidate{
			Name:             c.name,
			Tier:             c.tier,
			SupportsTools:    true,
			SupportsImages:   provider.DetectImageSupport(c.guarded.Name(), c.guarded.DefaultModel()).Supported,
			ContextWindow:    c.guarded.ContextWindow(),
			BreakerState:     c.guarded.BreakerState(),
			LatencyEMAMillis: c.guarded.LatencyEMAMillis(),
		})
	}
	return out
}

// approvalCallback implements orchestrator.ApprovalCallback for the CLI:
// auto-accept when --auto-approve is set, otherwise prompt on stdin.
func approvalCallback(ctx context.Context, p planner.Plan) (orchestrator.Approval, error) {
	fmt.Printf("plan %q requires approval: %d tasks under %s topology\n", p.Summary, len(p.Tasks), p.Topology)
	for _, t := range p.Tasks {
		fmt.Printf("  - %s [%s] %s\n", t.ID, t.AgentKind, t.Description)
	}
	if autoApprove {
		fmt.Println("--auto-approve set, accepting")
		return orchestrator.Approval{Decision: orchestrator.DecisionAccept}, nil
	}
	fmt.Print("approve? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	if strings.EqualFold(strings.TrimSpace(line), "y") {
		return orchestrator.Approval{Decision: orchestrator.DecisionAccept}, nil
	}
	return orchestrator.Approval{Decision: orchestrator.DecisionReject}, nil
}
