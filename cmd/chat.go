package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apexion-ai/orchestrator-kernel/internal/agent"
	"github.com/apexion-ai/orchestrator-kernel/internal/config"
	"github.com/apexion-ai/orchestrator-kernel/internal/mcp"
	"github.com/apexion-ai/orchestrator-kernel/internal/permission"
	"github.com/apexion-ai/orchestrator-kernel/internal/provider"
	"github.com/apexion-ai/orchestrator-kernel/internal/session"
	"github.com/apexion-ai/orchestrator-kernel/internal/tools"
	"github.com/apexion-ai/orchestrator-kernel/internal/tui"
	"github.com/spf13/cobra"
)

// newChatCmd exposes the interactive assistant as an explicit subcommand.
// The root command runs the kernel pipeline when given a request argument;
// `orchkernel chat`, or the bare binary with no arguments, starts
// interactive use.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
	}
}

// runChat starts the interactive chat (REPL) mode.
func runChat() error {
	cfg := initConfig()

	p, err := buildProvider(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.Model == "" {
		cfg.Model = p.DefaultModel()
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

	// Load hooks from .orchkernel/hooks.yaml and ~/.config/orchkernel/hooks.yaml
	cwd, _ := os.Getwd()
	if hm := tools.LoadHooks(cwd); hm.HasHooks() {
		executor.SetHooks(hm)
	}

	// Linter
	if linter := tools.NewLinter(cfg.Lint); linter != nil {
		executor.SetLinter(linter)
	}

	// Test runner
	if tr := tools.NewTestRunner(cfg.Test); tr != nil {
		executor.SetTestRunner(tr)
	}

	// MCP: load config, connect all servers, register tools
	mcpCfg, _ := mcp.LoadMCPConfig(cwd)
	var mcpMgr *mcp.Manager
	if mcpCfg != nil && len(mcpCfg.MCPServers) > 0 {
		mcpMgr = mcp.NewManager(mcpCfg)
		defer mcpMgr.Close()
		initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
		errs := mcpMgr.ConnectAll(initCtx)
		initCancel()
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "[mcp] warning: %v\n", e)
		}
		n := mcp.RegisterTools(mcpMgr, registry)
		if n > 0 {
			fmt.Fprintf(os.Stderr, "[mcp] registered %d tool(s)\n", n)
		}
	}

	dbPath, err := session.DefaultDBPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, "session db path:", err)
		os.Exit(1)
	}
	store, err := session.NewSQLiteStore(dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open session store:", err)
		os.Exit(1)
	}
	defer store.Close()

	memStore, err := session.NewSQLiteMemoryStore(store.DB())
	if err != nil {
		fmt.Fprintln(os.Stderr, "open memory store:", err)
		os.Exit(1)
	}

	// Provider factory for /provider hot-swap.
	factory := agent.ProviderFactory(func(c *config.Config) (provider.Provider, error) {
		return buildProvider(c)
	})

	ui := tui.NewPlainIO()
	executor.SetConfirmer(ui)

	a := agent.New(p, executor, cfg, ui, store)
	a.SetProviderFactory(factory)
	a.SetMemoryStore(memStore)
	if mcpMgr != nil {
		a.SetMCPManager(mcpMgr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return a.Run(ctx)
}
