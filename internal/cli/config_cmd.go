package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ferretbot/ferretbot/internal/config"
)

// configCmd is the parent "config" namespace command. It has no action of its
// own -- it groups debug and validate subcommands.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  "Inspect, validate, and debug FerretBot configuration.",
	// RunE shows help when invoked with no subcommand.
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// configDebugCmd implements "ferretbot config debug".
// It prints the fully-resolved configuration with source annotations.
var configDebugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Show resolved configuration with source annotations",
	Long: `Display the fully-resolved configuration showing each value and
the source where it came from (cli flag, environment variable, config file, or default).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resolved, _, err := loadResolvedConfig()
		if err != nil {
			return err
		}
		printResolvedConfig(cmd, resolved)
		return nil
	},
}

// configValidateCmd implements "ferretbot config validate".
// It validates the resolved configuration and reports all errors and warnings.
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and report issues",
	Long:  "Check the configuration for errors and warnings.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resolved, meta, err := loadResolvedConfig()
		if err != nil {
			return err
		}
		result := config.Validate(resolved.Config, meta)
		printValidationResult(cmd, result)
		if result.HasErrors() {
			return fmt.Errorf("configuration has %d error(s)", len(result.Errors()))
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configDebugCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

// ---- Lipgloss styles --------------------------------------------------------

// sourceStyle returns a lipgloss style for a given ConfigSource.
// When --no-color is active, lipgloss automatically strips ANSI because
// the root PersistentPreRunE sets the color profile to Ascii.
func sourceStyle(src config.ConfigSource) lipgloss.Style {
	switch src {
	case config.SourceFile:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // bright blue
	case config.SourceEnv:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // bright yellow
	case config.SourceCLI:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")) // bright red
	default: // SourceDefault
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // bright green
	}
}

var (
	styleHeader    = lipgloss.NewStyle().Bold(true)
	styleSeparator = lipgloss.NewStyle()
	styleSection   = lipgloss.NewStyle().Bold(true)
	styleErrorLbl  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)  // red
	styleWarnLbl   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true) // yellow
	styleSuccess   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))            // green
)

// ---- printResolvedConfig ----------------------------------------------------

const fieldWidth = 24 // column width for field names

// printResolvedConfig writes the formatted resolved configuration to cmd's
// output writer (stdout by default).
func printResolvedConfig(cmd *cobra.Command, rc *config.ResolvedConfig) {
	out := cmd.OutOrStdout()

	header := styleHeader.Render("Configuration Debug")
	sep := styleSeparator.Render(strings.Repeat("=", len("Configuration Debug")))
	fmt.Fprintln(out, header)
	fmt.Fprintln(out, sep)
	fmt.Fprintln(out)

	if rc.Path != "" {
		fmt.Fprintf(out, "Config file: %s\n", rc.Path)
	} else {
		fmt.Fprintln(out, "Config file: none found")
	}
	fmt.Fprintln(out)

	// --- [daemon] ---
	fmt.Fprintln(out, styleSection.Render("[daemon]"))
	d := rc.Config.Daemon
	printField(out, "socket", fmtStr(d.Socket), rc.Sources["daemon.socket"])
	printField(out, "host", fmtStr(d.Host), rc.Sources["daemon.host"])
	printField(out, "port", fmtInt(d.Port), rc.Sources["daemon.port"])
	printField(out, "watch", fmtBool(d.Watch), rc.Sources["daemon.watch"])
	printField(out, "bootstrap_workflow", fmtStr(d.BootstrapWorkflow), rc.Sources["daemon.bootstrap_workflow"])
	fmt.Fprintln(out)

	// --- [paths] ---
	fmt.Fprintln(out, styleSection.Render("[paths]"))
	p := rc.Config.Paths
	printField(out, "workspace", fmtStr(p.Workspace), rc.Sources["paths.workspace"])
	printField(out, "storage", fmtStr(p.Storage), rc.Sources["paths.storage"])
	printField(out, "workflows", fmtStr(p.Workflows), rc.Sources["paths.workflows"])
	fmt.Fprintln(out)

	// --- [provider] ---
	fmt.Fprintln(out, styleSection.Render("[provider]"))
	pr := rc.Config.Provider
	printField(out, "name", fmtStr(pr.Name), rc.Sources["provider.name"])
	printField(out, "base_url", fmtStr(pr.BaseURL), rc.Sources["provider.base_url"])
	printField(out, "model", fmtStr(pr.Model), rc.Sources["provider.model"])
	printField(out, "api_key", fmtSecret(pr.APIKey), rc.Sources["provider.api_key"])
	printField(out, "timeout_seconds", fmtInt(pr.TimeoutSeconds), rc.Sources["provider.timeout_seconds"])
	printField(out, "max_attempts", fmtInt(pr.MaxAttempts), rc.Sources["provider.max_attempts"])
	fmt.Fprintln(out)

	// --- [context] ---
	fmt.Fprintln(out, styleSection.Render("[context]"))
	c := rc.Config.Context
	printField(out, "limit", fmtInt(c.Limit), rc.Sources["context.limit"])
	printField(out, "output_reserve", fmtInt(c.OutputReserve), rc.Sources["context.output_reserve"])
	printField(out, "chars_per_token", fmtFloat(c.CharsPerToken), rc.Sources["context.chars_per_token"])
	printField(out, "safety_margin", fmtFloat(c.SafetyMargin), rc.Sources["context.safety_margin"])
	fmt.Fprintln(out)

	// --- [agent] ---
	fmt.Fprintln(out, styleSection.Render("[agent]"))
	a := rc.Config.Agent
	printField(out, "system_prompt", fmtStr(truncate(a.SystemPrompt, 36)), rc.Sources["agent.system_prompt"])
	printField(out, "max_tool_rounds", fmtInt(a.MaxToolRounds), rc.Sources["agent.max_tool_rounds"])
	printField(out, "max_continuations", fmtInt(a.MaxContinuations), rc.Sources["agent.max_continuations"])
	printField(out, "max_skill_chars", fmtInt(a.MaxSkillChars), rc.Sources["agent.max_skill_chars"])
	printField(out, "max_tool_result_chars", fmtInt(a.MaxToolResultChars), rc.Sources["agent.max_tool_result_chars"])
	printField(out, "chat_tools", fmtSlice(a.ChatTools), rc.Sources["agent.chat_tools"])
	fmt.Fprintln(out)
}

// printField writes a single key = value (source: ...) line.
func printField(out io.Writer, name, value string, src config.ConfigSource) {
	// Left-pad the field name to fieldWidth.
	padded := fmt.Sprintf("  %-*s", fieldWidth, name)
	srcLabel := sourceStyle(src).Render(fmt.Sprintf("(source: %s)", src))
	line := fmt.Sprintf("%s = %-40s %s\n", padded, value, srcLabel)
	fmt.Fprint(out, line)
}

// fmtStr formats a string value for display (quoted).
func fmtStr(s string) string {
	return fmt.Sprintf("%q", s)
}

func fmtInt(n int) string {
	return fmt.Sprintf("%d", n)
}

func fmtBool(b bool) string {
	return fmt.Sprintf("%t", b)
}

func fmtFloat(f float64) string {
	if f == 0 {
		return "0"
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", f), "0"), ".")
}

// fmtSecret masks all but a short prefix so the debug output can be
// shared without leaking credentials.
func fmtSecret(s string) string {
	if s == "" {
		return `""`
	}
	if len(s) <= 4 {
		return `"****"`
	}
	return fmt.Sprintf("%q", s[:4]+strings.Repeat("*", 4))
}

// fmtSlice formats a string slice for display.
func fmtSlice(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// ---- printValidationResult --------------------------------------------------

// printValidationResult writes the formatted validation report to cmd's
// output writer.
func printValidationResult(cmd *cobra.Command, result *config.ValidationResult) {
	out := cmd.OutOrStdout()

	header := styleHeader.Render("Configuration Validation")
	sep := styleSeparator.Render(strings.Repeat("=", len("Configuration Validation")))
	fmt.Fprintln(out, header)
	fmt.Fprintln(out, sep)
	fmt.Fprintln(out)

	errs := result.Errors()
	warns := result.Warnings()

	if len(errs) == 0 && len(warns) == 0 {
		fmt.Fprintln(out, styleSuccess.Render("No issues found."))
		return
	}

	if len(errs) > 0 {
		fmt.Fprintln(out, styleErrorLbl.Render("Errors:"))
		for _, issue := range errs {
			fmt.Fprintf(out, "  [%s] %s\n", issue.Field, issue.Message)
		}
		fmt.Fprintln(out)
	}

	if len(warns) > 0 {
		fmt.Fprintln(out, styleWarnLbl.Render("Warnings:"))
		for _, issue := range warns {
			fmt.Fprintf(out, "  [%s] %s\n", issue.Field, issue.Message)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "%d error(s), %d warning(s)\n", len(errs), len(warns))
}
