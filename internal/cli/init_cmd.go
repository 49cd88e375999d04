package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ferretbot/ferretbot/internal/config"
)

// init subcommand flag values.
var (
	initFlagProvider  string
	initFlagModel     string
	initFlagBaseURL   string
	initFlagWorkspace string
	initFlagForce     bool
	initFlagNoInput   bool
)

// ErrInitCancelled is returned when the user aborts the setup wizard.
var ErrInitCancelled = errors.New("init cancelled by user")

// initWizardWidth is the fixed form width used by the setup wizard.
const initWizardWidth = 72

// defaultModels maps each provider to the model pre-filled in the wizard.
var defaultModels = map[string]string{
	"ollama":    "qwen2.5-coder",
	"openai":    "gpt-4.1-mini",
	"anthropic": "claude-sonnet-4-5",
}

// initCmd implements "ferretbot init".
// It scaffolds ferretbot.toml plus a starter workflow without requiring an
// existing config, so it is safe to run in a fresh directory.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up FerretBot in the current directory",
	Long: `Write a starter ferretbot.toml plus an example workflow into the
current directory. Without flags an interactive wizard asks for the provider,
model, and workspace; flags answer those questions up front. Existing files
are preserved unless --force is supplied.

Examples:
  ferretbot init                                  # interactive setup
  ferretbot init --provider ollama --model llama3.2
  ferretbot init --no-input                       # accept every default`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initFlagProvider, "provider", "", "Model provider: openai, ollama, or anthropic")
	initCmd.Flags().StringVar(&initFlagModel, "model", "", "Default model name")
	initCmd.Flags().StringVar(&initFlagBaseURL, "base-url", "", "Provider endpoint override")
	initCmd.Flags().StringVar(&initFlagWorkspace, "workspace", "", "Agent workspace directory")
	initCmd.Flags().BoolVar(&initFlagForce, "force", false, "Overwrite existing files")
	initCmd.Flags().BoolVar(&initFlagNoInput, "no-input", false, "Skip the wizard and accept defaults for unset flags")
	rootCmd.AddCommand(initCmd)
}

// runInit is the RunE handler for the init command.
func runInit(cmd *cobra.Command, _ []string) error {
	destDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	// Guard against silently clobbering an existing config.
	configPath := filepath.Join(destDir, config.ConfigFileName)
	if _, statErr := os.Stat(configPath); statErr == nil && !initFlagForce {
		return fmt.Errorf("%s already exists in %s; use --force to overwrite", config.ConfigFileName, destDir)
	}

	vars := config.ScaffoldVars{
		Provider:  initFlagProvider,
		Model:     initFlagModel,
		BaseURL:   initFlagBaseURL,
		Workspace: initFlagWorkspace,
	}
	applyInitDefaults(&vars)

	// The wizard runs only when nothing pinned the answers.
	interactive := !initFlagNoInput &&
		initFlagProvider == "" && initFlagModel == "" && initFlagWorkspace == ""
	if interactive {
		if err := runInitWizard(&vars); err != nil {
			return err
		}
	}

	created, err := config.Scaffold(destDir, vars, initFlagForce)
	if err != nil {
		return fmt.Errorf("writing project files: %w", err)
	}

	// --- Success output (all to stderr) ---
	stderr := os.Stderr

	fmt.Fprintf(stderr, "Initialized FerretBot with provider %q, model %q\n\n", vars.Provider, vars.Model)

	if len(created) > 0 {
		fmt.Fprintln(stderr, "Created files:")
		for _, f := range created {
			rel, relErr := filepath.Rel(destDir, f)
			if relErr != nil {
				rel = f
			}
			fmt.Fprintf(stderr, "  %s\n", rel)
		}
		fmt.Fprintln(stderr)
	}

	fmt.Fprintln(stderr, "Next steps:")
	fmt.Fprintf(stderr, "  1. Review %s\n", configPath)
	fmt.Fprintln(stderr, "  2. Start the daemon: ferretbot serve")
	fmt.Fprintln(stderr, "  3. Say hello: ferretbot chat")

	return nil
}

// applyInitDefaults fills unset scaffold values, deriving the model from
// the chosen provider.
func applyInitDefaults(vars *config.ScaffoldVars) {
	if vars.Provider == "" {
		vars.Provider = "ollama"
	}
	if vars.Model == "" {
		vars.Model = defaultModels[vars.Provider]
	}
	if vars.Workspace == "" {
		vars.Workspace = "workspace"
	}
}

// runInitWizard collects provider, model, endpoint, and workspace
// interactively. vars arrives pre-filled with defaults and leaves with
// the user's answers.
func runInitWizard(vars *config.ScaffoldVars) error {
	providerSelect := huh.NewSelect[string]().
		Title("Which model provider?").
		Description("FerretBot sends agent requests to this backend.").
		Options(
			huh.NewOption("Ollama (local)", "ollama"),
			huh.NewOption("OpenAI", "openai"),
			huh.NewOption("Anthropic", "anthropic"),
		).
		Value(&vars.Provider)

	if err := runWizardGroup(huh.NewGroup(providerSelect)); err != nil {
		return err
	}

	// Re-derive the suggested model now that the provider is known.
	vars.Model = defaultModels[vars.Provider]

	details := huh.NewGroup(
		huh.NewInput().
			Title("Model:").
			Description("Default model for chat and workflow steps.").
			Validate(requireNonEmpty("model")).
			Value(&vars.Model),
		huh.NewInput().
			Title("Endpoint override (optional):").
			Description("Leave empty for the provider's default endpoint.").
			Value(&vars.BaseURL),
		huh.NewInput().
			Title("Workspace directory:").
			Description("Agent file tools are confined to this directory.").
			Validate(requireNonEmpty("workspace")).
			Value(&vars.Workspace),
	)
	return runWizardGroup(details)
}

func runWizardGroup(group *huh.Group) error {
	err := huh.NewForm(group).
		WithTheme(huh.ThemeCharm()).
		WithWidth(initWizardWidth).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrInitCancelled
	}
	if err != nil {
		return fmt.Errorf("wizard: %w", err)
	}
	return nil
}

func requireNonEmpty(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s must not be empty", field)
		}
		return nil
	}
}
