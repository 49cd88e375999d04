package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ferretbot/ferretbot/internal/config"
	"github.com/ferretbot/ferretbot/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the FerretBot daemon",
	Long: `Run the FerretBot daemon in the foreground. The daemon owns the event
bus, workflow engine, and model provider; clients connect over the configured
unix socket or TCP endpoint. Stop it with Ctrl+C or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe resolves and validates configuration, then runs the daemon
// until interrupted. Validation warnings print but do not block startup;
// errors do.
func runServe(cmd *cobra.Command, _ []string) error {
	resolved, meta, err := loadResolvedConfig()
	if err != nil {
		return err
	}

	result := config.Validate(resolved.Config, meta)
	for _, issue := range result.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: [%s] %s\n", issue.Field, issue.Message)
	}
	if result.HasErrors() {
		printValidationResult(cmd, result)
		return fmt.Errorf("configuration has %d error(s)", len(result.Errors()))
	}

	d, err := daemon.New(resolved.Config)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return d.Run(ctx)
}
