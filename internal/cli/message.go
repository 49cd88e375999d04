package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ferretbot/ferretbot/internal/bus"
	"github.com/ferretbot/ferretbot/internal/ipc"
)

var messageCmd = &cobra.Command{
	Use:   "message <text>",
	Short: "Send one message to the agent and print the reply",
	Long: `Send a single message to the running daemon and print the agent's
reply to stdout. If a workflow run is waiting for input, the message answers
it; otherwise the agent treats it as chat.

The same one-shot send is available as 'ferretbot -m <text>'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendMessage(cmd, strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(messageCmd)
}

// sendMessage delivers text as user input and waits for the next agent
// response on this client's session. Ctrl+C abandons the wait.
func sendMessage(cmd *cobra.Command, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("message text must not be empty")
	}

	c, _, err := dialDaemon(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Send(ipc.UserInput(text)); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c.Events():
			if !ok {
				return fmt.Errorf("connection closed before a reply arrived")
			}
			switch {
			case ev.Type == bus.EventAgentResponse && ev.SessionID == c.SessionID():
				if reply, _ := ev.Content["text"].(string); reply != "" {
					fmt.Fprintln(cmd.OutOrStdout(), reply)
				}
				return nil
			case ev.Type == bus.EventRunComplete:
				// The message answered a waiting run and the run finished
				// without asking anything else.
				runID, _ := contentInt(ev.Content, "runId")
				state, _ := ev.Content["state"].(string)
				fmt.Fprintf(cmd.OutOrStdout(), "run %d %s\n", runID, state)
				return nil
			}
		}
	}
}
