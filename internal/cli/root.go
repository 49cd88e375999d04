// Package cli implements the ferretbot command-line interface. It wires the
// cobra command tree: serving the daemon, sending one-shot messages, driving
// workflow runs, managing configuration, and opening the interactive chat TUI.
package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/ferretbot/ferretbot/internal/logging"
)

// Global flag values accessible to all subcommands.
var (
	flagVerbose bool
	flagQuiet   bool
	flagConfig  string
	flagDir     string
	flagNoColor bool
	flagMessage string

	// Daemon endpoint overrides. Only values the user actually set are
	// layered over the config file; see cliOverrides.
	flagSocket string
	flagHost   string
	flagPort   int
	flagWatch  bool
)

// rootCmd is the base command for FerretBot.
var rootCmd = &cobra.Command{
	Use:   "ferretbot",
	Short: "Local-first workflow agent",
	Long: `FerretBot is a local-first agent runtime. A daemon runs workflows and
answers chat through a configured model provider; this CLI starts the daemon,
sends it messages and workflow commands, and opens the interactive chat TUI.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Check env vars for flags not explicitly set on command line.
		if !cmd.Flags().Changed("verbose") && os.Getenv("FERRETBOT_VERBOSE") != "" {
			flagVerbose = true
		}
		if !cmd.Flags().Changed("quiet") && os.Getenv("FERRETBOT_QUIET") != "" {
			flagQuiet = true
		}
		if !cmd.Flags().Changed("no-color") && (os.Getenv("NO_COLOR") != "" || os.Getenv("FERRETBOT_NO_COLOR") != "") {
			flagNoColor = true
		}

		// Initialize logging.
		jsonFormat := os.Getenv("FERRETBOT_LOG_FORMAT") == "json"
		logging.Setup(flagVerbose, flagQuiet, jsonFormat)

		// Handle --no-color: disable colored output.
		if flagNoColor {
			lipgloss.SetColorProfile(termenv.Ascii)
		}

		// Handle --dir (change working directory).
		if flagDir != "" {
			if err := os.Chdir(flagDir); err != nil {
				return fmt.Errorf("changing directory to %s: %w", flagDir, err)
			}
		}

		return nil
	},
}

func init() {
	// Assigned here rather than in the composite literal to avoid an
	// initialization cycle (runChat -> dialDaemon -> cliOverrides -> rootCmd).
	// With no subcommand: -m sends a one-shot message, otherwise the
	// chat TUI opens. Help is still available via --help / -h.
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if flagMessage != "" {
			return sendMessage(cmd, flagMessage)
		}
		return runChat(cmd, args)
	}
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose (debug) output (env: FERRETBOT_VERBOSE)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress all output except errors (env: FERRETBOT_QUIET)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to ferretbot.toml config file")
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "Override working directory")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output (env: FERRETBOT_NO_COLOR, NO_COLOR)")
	rootCmd.PersistentFlags().StringVar(&flagSocket, "socket", "", "Daemon unix socket path (empty string with --host selects TCP)")
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "Daemon TCP host (used when no socket is configured)")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "Daemon TCP port (used when no socket is configured)")
	rootCmd.PersistentFlags().BoolVar(&flagWatch, "watch", false, "Reload workflow definitions when their files change (serve only)")
	rootCmd.Flags().StringVarP(&flagMessage, "message", "m", "", "Send one message to the daemon and print the reply")
}

// Execute runs the root command and returns the exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// NewRootCmd returns a new instance of the root command for use in external
// tools such as the shell completion generator and man page generator. It
// initialises a fresh cobra command tree with the same persistent flags and
// PersistentPreRunE as the global rootCmd so that generated docs and
// completions include all flags.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               rootCmd.Use,
		Short:             rootCmd.Short,
		Long:              rootCmd.Long,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: rootCmd.PersistentPreRunE,
	}

	// Register the same persistent flags that the global rootCmd carries.
	// These use local variables (not the package-level flags) so the
	// exported command is safe for concurrent use by generators.
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose (debug) output (env: FERRETBOT_VERBOSE)")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress all output except errors (env: FERRETBOT_QUIET)")
	cmd.PersistentFlags().String("config", "", "Path to ferretbot.toml config file")
	cmd.PersistentFlags().String("dir", "", "Override working directory")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output (env: FERRETBOT_NO_COLOR, NO_COLOR)")
	cmd.PersistentFlags().String("socket", "", "Daemon unix socket path (empty string with --host selects TCP)")
	cmd.PersistentFlags().String("host", "", "Daemon TCP host (used when no socket is configured)")
	cmd.PersistentFlags().Int("port", 0, "Daemon TCP port (used when no socket is configured)")
	cmd.PersistentFlags().Bool("watch", false, "Reload workflow definitions when their files change (serve only)")

	// Attach all registered subcommands from the global tree.
	for _, child := range rootCmd.Commands() {
		cmd.AddCommand(child)
	}
	return cmd
}
