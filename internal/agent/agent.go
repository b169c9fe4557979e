package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apexion-ai/orchestrator-kernel/internal/config"
	"github.com/apexion-ai/orchestrator-kernel/internal/mcp"
	"github.com/apexion-ai/orchestrator-kernel/internal/permission"
	"github.com/apexion-ai/orchestrator-kernel/internal/provider"
	"github.com/apexion-ai/orchestrator-kernel/internal/repomap"
	"github.com/apexion-ai/orchestrator-kernel/internal/session"
	"github.com/apexion-ai/orchestrator-kernel/internal/tools"
	"github.com/apexion-ai/orchestrator-kernel/internal/tui"
)

// defaultSystemPrompt is loaded from embedded prompts/*.md files at runtime
// via loadSystemPrompt(). Users can override individual sections by placing
// files in ~/.config/orchkernel/prompts/ or {project}/.orchkernel/prompts/.

const subAgentSystemPrompt = `You are a research sub-agent. Your job is to explore and gather information, then return a clear summary.

You have read-only tools: read_file, glob, grep, list_dir, web_fetch, todo_read.
You CANNOT modify files, run commands, or make git changes.

Rules:
- Focus on the specific task given to you.
- Use tools to gather evidence. Do not guess.
- Return a concise, well-organized summary of your findings.
- If you cannot find what was asked, say so clearly.`

const planSubAgentSystemPrompt = `You are a planning sub-agent. Your job is to analyze the codebase and produce a detailed implementation plan.

You have read-only tools: read_file, glob, grep, list_dir, web_fetch, todo_read.
You CANNOT modify files, run commands, or make git changes.

Rules:
- Thoroughly explore the codebase to understand the current architecture.
- Use tools to gather evidence about existing patterns and conventions.
- Structure your plan as:
  1. Files to modify (with full paths)
  2. Specific changes for each file (describe what to add/change)
  3. Verification steps (how to test the changes)
- Be specific and actionable. Include code snippets where helpful.`

const codeSubAgentSystemPrompt = `You are a coding sub-agent. You can read, write, and edit files, and run commands.

Your job is to complete the specific coding task given to you.

Rules:
- Focus exclusively on the task described in the prompt.
- Make minimal, targeted changes. Do not refactor or modify unrelated code.
- Use edit_file for modifying existing files. Use write_file only for new files.
- Run bash commands when needed (e.g. to build, test, or verify changes).
- When finished, provide a clear summary of all changes you made.
- Do NOT create unnecessary files or add features beyond what was asked.`

// ProviderFactory creates a Provider from a config. Used for /provider hot-swap.
type ProviderFactory func(cfg *config.Config) (provider.Provider, error)

// Agent orchestrates the interactive loop between user, LLM, and tools.
type Agent struct {
	provider        provider.Provider
	executor        *tools.Executor
	config          *config.Config
	session         *session.Session
	store           session.Store
	memoryStore     session.MemoryStore
	mcpManager      *mcp.Manager
	basePrompt      string // system prompt without identity suffix
	systemPrompt    string
	io              tui.IO
	summarizer      session.Summarizer
	providerFactory ProviderFactory
	customCommands  map[string]*CustomCommand
	planMode        bool
	rules           []Rule
	skills          []SkillInfo
	hookManager     *tools.HookManager
	eventLogger     *EventLogger
	checkpointMgr   *CheckpointManager
	costTracker     *CostTracker
	repoMap         *repomap.RepoMap
	bgManager       *BackgroundManager
	architectNext   bool // next prompt uses architect mode
	architectAuto   bool // architect auto-execute
}

// New creates a new Agent with the given IO implementation.
// Pass tui.NewPlainIO() for plain terminal mode.
func New(p provider.Provider, exec *tools.Executor, cfg *config.Config, ui tui.IO, store session.Store) *Agent {
	return NewWithSession(p, exec, cfg, ui, store, session.New())
}

// NewWithSession creates a new Agent with an existing session.
func NewWithSession(p provider.Provider, exec *tools.Executor, cfg *config.Config, ui tui.IO, store session.Store, sess *session.Session) *Agent {
	cwd, _ := os.Getwd()

	// Load modular system prompt from embedded defaults + user overrides.
	base := loadSystemPrompt(cwd)
	if cfg.SystemPrompt != "" {
		base = cfg.SystemPrompt // full override from config
	}

	// Append project context from ORCHKERNEL.md / .orchkernel/context.md
	if ctx := loadProjectContext(cwd); ctx != "" {
		base += ctx
	}

	// Initialize cost tracker with optional user pricing overrides.
	var costOverrides map[string]ModelPricing
	if len(cfg.CostPricing) > 0 {
		costOverrides = make(map[string]ModelPricing, len(cfg.CostPricing))
		for model, entry := range cfg.CostPricing {
			costOverrides[model] = ModelPricing{
				InputPerMillion:  entry.InputPerMillion,
				OutputPerMillion: entry.OutputPerMillion,
			}
		}
	}

	a := &Agent{
		provider:       p,
		executor:       exec,
		config:         cfg,
		session:        sess,
		store:          store,
		basePrompt:     base,
		io:             ui,
		summarizer:     &session.LLMSummarizer{Provider: p},
		customCommands: loadCustomCommands(cwd),
		rules:          loadRules(cwd),
		skills:         loadSkills(cwd),
		costTracker:    NewCostTracker(costOverrides),
	}

	// Initialize repo map (async build in background).
	if !cfg.RepoMap.Disabled {
		maxTokens := cfg.RepoMap.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 4096
		}
		a.repoMap = repomap.New(cwd, maxTokens, cfg.RepoMap.Exclude)
		go a.repoMap.Build()
	}

	a.rebuildSystemPrompt()
	a.wireTaskTool()
	return a
}

// SetProviderFactory sets the factory function for /provider hot-swap.
func (a *Agent) SetProviderFactory(f ProviderFactory) {
	a.providerFactory = f
}

// SetMemoryStore injects the cross-session memory store and rebuilds the system prompt
// to include relevant memories.
func (a *Agent) SetMemoryStore(ms session.MemoryStore) {
	a.memoryStore = ms
	a.rebuildSystemPrompt()
}

// SetMCPManager injects the MCP manager for /mcp command and status display.
func (a *Agent) SetMCPManager(m *mcp.Manager) {
	a.mcpManager = m
}

// SetHookManager injects the hook manager for lifecycle hooks and /hooks command.
func (a *Agent) SetHookManager(hm *tools.HookManager) {
	a.hookManager = hm
}

// rebuildSystemPrompt appends a dynamic identity suffix and persistent memories to basePrompt.
// Call after changing provider, model, or memory store.
func (a *Agent) rebuildSystemPrompt() {
	model := a.config.Model
	if model == "" {
		model = a.provider.DefaultModel()
	}
	a.systemPrompt = a.basePrompt + fmt.Sprintf(
		"\n\nYou are powered by %s (provider: %s, model: %s). "+
			"When asked about your identity, state these facts. Never claim to be a different model.",
		a.config.Provider, a.config.Provider, model)

	// Inject persistent memories if available.
	if a.memoryStore != nil {
		cwd, _ := os.Getwd()
		projectTag := "project:" + filepath.Base(cwd)
		if mem := a.memoryStore.LoadForPrompt(projectTag, 2048); mem != "" {
			a.systemPrompt += "\n\n" + mem
		}
	}

	// Inject always-active rules.
	for _, r := range a.rules {
		if len(r.PathPatterns) == 0 {
			a.systemPrompt += "\n\n<rule name=\"" + r.Name + "\">\n" + r.Content + "\n</rule>"
		}
	}

	// Inject repo map if available and built.
	if a.repoMap != nil && a.repoMap.IsBuilt() {
		if mapContent := a.repoMap.Render(0); mapContent != "" {
			a.systemPrompt += "\n\n<repo_map>\n" + mapContent + "</repo_map>"
		}
	}

	// List available skills so the LLM knows what it can load.
	if len(a.skills) > 0 {
		a.systemPrompt += "\n\nAvailable project skills (load with read_file tool when you need detailed knowledge):"
		for _, s := range a.skills {
			desc := s.Desc
			if desc == "" {
				desc = s.Name
			}
			a.systemPrompt += "\n- " + s.Path + " — " + desc
		}
	}
}

// Run starts the interactive REPL loop.
func (a *Agent) Run(ctx context.Context) error {
	// Initialize event logger.
	if el, err := NewEventLogger(a.session.ID); err == nil {
		a.eventLogger = el
		defer a.eventLogger.Close()
		a.eventLogger.Log(EventSessionStart, map[string]string{
			"session_id": a.session.ID,
		})
	}

	// Initialize checkpoint manager.
	a.checkpointMgr = NewCheckpointManager(10)

	// Initialize background agent manager.
	a.bgManager = NewBackgroundManager(4, a.io)
	a.wireBGLauncher()

	// Fire session_start hooks.
	if a.hookManager != nil {
		a.hookManager.RunLifecycleHooks(ctx, tools.HookSessionStart, map[string]string{
			"session_id": a.session.ID,
		})
	}

	for {
		input, err := a.io.ReadInput()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if input == "" {
			continue
		}

		// Slash commands are intercepted before sending to LLM.
		if strings.HasPrefix(input, "/") {
			handled, shouldQuit := a.handleSlashCommand(ctx, input)
			if shouldQuit {
				return nil
			}
			if handled {
				continue
			}
		}

		// Check if architect mode is pending for this prompt.
		if a.architectNext {
			a.architectNext = false
			a.io.UserMessage(input)
			am := NewArchitectMode(a, a.config.Architect.ArchitectModel, a.config.Architect.CoderModel, a.architectAuto)
			if err := am.Run(ctx, input); err != nil {
				a.io.Error(err.Error())
			}
			a.architectAuto = false
			continue
		}

		a.io.UserMessage(input)
		a.session.AddMessage(provider.Message{
			Role: provider.RoleUser,
			Content: []provider.Content{{
				Type: provider.ContentTypeText,
				Text: input,
			}},
		})

		if a.eventLogger != nil {
			a.eventLogger.Log(EventUserMessage, map[string]string{"text": input})
		}

		if err := a.runAgentLoop(ctx); err != nil {
			if ctx.Err() != nil {
				a.io.SystemMessage("\nInterrupted.")
				_ = a.store.Save(a.session)
				return ctx.Err()
			}
			a.io.Error(err.Error())
		}

		// Fire notification hooks after each agent turn completes.
		if a.hookManager != nil {
			a.hookManager.RunLifecycleHooks(ctx, tools.HookNotification, map[string]string{
				"session_id": a.session.ID,
			})
		}
	}

	// Wait for background agents before exiting.
	if a.bgManager != nil && a.bgManager.RunningCount() > 0 {
		a.io.SystemMessage("Waiting for background agents to complete...")
		a.bgManager.WaitAll(ctx)
	}

	// Show file change summary on exit if any files were modified.
	if changes := a.executor.FileTracker().Summary(); changes != "" {
		a.io.SystemMessage("\n--- Session file changes ---\n" + changes)
	}

	// Fire session_stop hooks.
	if a.hookManager != nil {
		a.hookManager.RunLifecycleHooks(ctx, tools.HookSessionStop, map[string]string{
			"session_id": a.session.ID,
		})
	}

	// Auto-extract memories from the conversation.
	if a.memoryStore != nil && len(a.session.Messages) > 5 {
		extractor := NewAutoMemoryExtractor(a.provider, a.memoryStore, a.config.SubAgentModel)
		if n, err := extractor.Extract(ctx, a.session.Messages, a.session.ID); err == nil && n > 0 {
			a.io.SystemMessage(fmt.Sprintf("Auto-extracted %d memories from this session.", n))
		}
	}

	// Log session end.
	if a.eventLogger != nil {
		a.eventLogger.Log(EventSessionEnd, map[string]string{
			"session_id":  a.session.ID,
			"tokens_used": fmt.Sprintf("%d", a.session.TokensUsed),
		})
	}

	_ = a.store.Save(a.session)
	return nil
}

// RunOnce executes a single prompt and exits (non-interactive mode).
func (a *Agent) RunOnce(ctx context.Context, prompt string) error {
	a.io.UserMessage(prompt)
	a.session.AddMessage(provider.Message{
		Role: provider.RoleUser,
		Content: []provider.Content{{
			Type: provider.ContentTypeText,
			Text: prompt,
		}},
	})
	return a.runAgentLoop(ctx)
}

// wireBGLauncher wires the background manager to the task tool.
func (a *Agent) wireBGLauncher() {
	if a.bgManager == nil {
		return
	}
	t, ok := a.executor.Registry().Get("task")
	if !ok {
		return
	}
	tt, ok := t.(*tools.TaskTool)
	if !ok {
		return
	}
	tt.SetBGLauncher(a.bgManager)
}

// wireTaskTool finds the TaskTool in the registry and injects the sub-agent runner
// and confirmer (for code mode).
func (a *Agent) wireTaskTool() {
	t, ok := a.executor.Registry().Get("task")
	if !ok {
		return
	}
	tt, ok := t.(*tools.TaskTool)
	if !ok {
		return
	}
	tt.SetRunner(a.runSubAgent)
	// Wire confirmer for code mode confirmation (if available).
	if c, ok := a.io.(tools.Confirmer); ok {
		tt.SetConfirmer(c)
	}
}

// subAgentReporter is an optional interface for sending sub-agent progress to the TUI.
type subAgentReporter interface {
	ReportSubAgentProgress(tui.SubAgentProgress)
}

// runSubAgent creates and runs an ephemeral sub-agent.
// mode is "explore" (default), "plan", or "code".
func (a *Agent) runSubAgent(ctx context.Context, prompt string, mode string) (string, error) {
	// If the main IO supports progress reporting, wire it up.
	var buf *tui.BufferIO
	if pr, ok := a.io.(subAgentReporter); ok {
		buf = tui.NewBufferIOWithProgress("", func(p tui.SubAgentProgress) {
			pr.ReportSubAgentProgress(p)
		})
	} else {
		buf = tui.NewBufferIO()
	}

	var executor *tools.Executor
	var sysPrompt string

	switch mode {
	case "code":
		// Code sub-agent gets write permissions with AllowAll policy
		// (user already confirmed via the confirmer at task call time).
		codeRegistry := tools.CodeRegistry()
		executor = tools.NewExecutor(codeRegistry, permission.AllowAllPolicy{})
		sysPrompt = codeSubAgentSystemPrompt
	case "plan":
		roRegistry := tools.ReadOnlyRegistry()
		executor = tools.NewExecutor(roRegistry, permission.AllowAllPolicy{})
		sysPrompt = planSubAgentSystemPrompt
	default: // "explore"
		roRegistry := tools.ReadOnlyRegistry()
		executor = tools.NewExecutor(roRegistry, permission.AllowAllPolicy{})
		sysPrompt = subAgentSystemPrompt
	}

	subCfg := *a.config
	subCfg.MaxIterations = 0
	subCfg.SystemPrompt = sysPrompt
	// Use dedicated sub-agent model if configured.
	if a.config.SubAgentModel != "" {
		subCfg.Model = a.config.SubAgentModel
	}

	sub := &Agent{
		provider:   a.provider,
		executor:   executor,
		config:     &subCfg,
		session:    session.New(),
		store:      session.NullStore{},
		basePrompt: sysPrompt,
		io:         buf,
	}
	sub.rebuildSystemPrompt()

	err := sub.RunOnce(ctx, prompt)
	return buf.Output(), err
}
