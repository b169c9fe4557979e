package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/apexion-ai/orchestrator-kernel/internal/config"
	"github.com/apexion-ai/orchestrator-kernel/internal/provider"
	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	autoApprove  bool
	modelFlag    string
	providerFlag string
	maxTurnsFlag int
	pipeMode     bool
	outputFormat string
	printLast    bool

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "orchkernel [request text]",
		Short: "Agent orchestration kernel",
		Long: "orchkernel classifies a request, decomposes it into a task plan, gates it on\n" +
			"approval when warranted, and runs the plan's tasks through the agent kernel\n" +
			"under the chosen concurrency topology. Invoked with a request argument it\n" +
			"runs that pipeline directly; invoked bare it falls back to the interactive\n" +
			"chat assistant (see the `chat` subcommand).",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runChat()
			}
			return runOrchestrate(strings.Join(args, " "))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/orchkernel/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&autoApprove, "auto-approve", false, "use auto-approve permission mode and accept plans without prompting (bash commands outside allowed_commands and dangerous calls still ask)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override model")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override provider")
	rootCmd.PersistentFlags().IntVar(&maxTurnsFlag, "max-turns", 0, "max agent loop iterations (0=unlimited)")

	// Subcommands
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))
	rootCmd.AddCommand(newInitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// displayVersion returns a formatted version string, e.g. "v0.3.1 (abc1234)".
func displayVersion() string {
	v := "v" + appVersion
	if appCommit != "" && appCommit != "none" {
		v += " (" + appCommit + ")"
	}
	return v
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override config values
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if autoApprove {
		cfg.Permissions.Mode = "auto-approve"
	}
	if maxTurnsFlag > 0 {
		cfg.MaxIterations = maxTurnsFlag
	}

	return cfg
}

// providerBaseURLs references the canonical map in the config package.
var providerBaseURLs = config.KnownProviderBaseURLs

// buildProvider creates a Provider instance for cfg's configured default provider.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	return buildProviderNamed(cfg, cfg.Provider)
}

// buildProviderNamed creates a Provider instance for an explicit provider
// name, independent of cfg.Provider. The kernel's orchestrated run path
// uses this to stand up one guarded provider per configured candidate
// (internal/resilience.GuardedProvider) for internal/providerrouter to
// choose among, rather than being pinned to a single provider.
func buildProviderNamed(cfg *config.Config, name string) (provider.Provider, error) {
	pc := cfg.GetProviderConfig(name)

	apiKey := pc.APIKey
	if apiKey == "" {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY\n"+
				"  - run: orchkernel init",
			name, name,
		)
	}

	// Determine model: CLI flag > config file > provider defaults YAML
	model := cfg.Model
	if pc.Model != "" && model == "" {
		model = pc.Model
	}
	if model == "" {
		if m, ok := config.KnownProviderModels[name]; ok {
			model = m
		}
	}

	switch name {
	case "anthropic":
		p := provider.NewAnthropicProvider(apiKey, model)
		return p, nil
	default:
		// All other providers use OpenAI-compatible API
		baseURL := pc.BaseURL
		if baseURL == "" {
			if u, ok := providerBaseURLs[name]; ok {
				baseURL = u
			} else {
				return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
			}
		}
		p := provider.NewOpenAIProvider(apiKey, baseURL, model)
		return p, nil
	}
}
