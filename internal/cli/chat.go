package cli

import (
	"github.com/spf13/cobra"

	"github.com/ferretbot/ferretbot/internal/buildinfo"
	"github.com/ferretbot/ferretbot/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat TUI",
	Long: `Open the interactive chat client. Messages go to the agent; replies,
workflow prompts, and run updates stream back into the transcript. Running
'ferretbot' with no subcommand opens the same screen.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// runChat connects to the daemon and hands the connection to the TUI.
func runChat(cmd *cobra.Command, _ []string) error {
	c, cfg, err := dialDaemon(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	return tui.Run(tui.Config{
		Client:   c,
		Endpoint: endpointLabel(cfg),
		Version:  buildinfo.GetInfo().Version,
	})
}
