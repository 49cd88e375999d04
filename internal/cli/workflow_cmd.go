package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ferretbot/ferretbot/internal/bus"
	"github.com/ferretbot/ferretbot/internal/ipc"
)

// commandTimeout bounds waiting for a workflow command's reply. Commands
// only mutate run state; they never wait for agent work.
const commandTimeout = 10 * time.Second

var (
	workflowRunVersion string
	workflowRunArgs    []string
)

// workflowCmd is the parent "workflow" namespace command. It has no
// action of its own.
var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Start, inspect, and control workflow runs",
	Long:  "Send workflow commands to the running daemon.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var workflowRunCmd = &cobra.Command{
	Use:   "run <workflow-id>",
	Short: "Start a workflow run",
	Long: `Start a run of a registered workflow. Without --version the highest
registered version is used. Arguments are passed as repeated --arg key=value
flags and become the run's template scope.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runArgs, err := parseRunArgs(workflowRunArgs)
		if err != nil {
			return err
		}
		requestID := uuid.NewString()
		res, err := workflowRoundTrip(cmd, ipc.RunStart(args[0], workflowRunVersion, runArgs, requestID), requestID)
		if err != nil {
			return err
		}
		if runID, ok := contentInt(res.Data, "runId"); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "run %d queued (%s)\n", runID, args[0])
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		return nil
	},
}

var workflowCancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Cancel a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		requestID := uuid.NewString()
		res, err := workflowRoundTrip(cmd, ipc.RunCancel(runID, requestID), requestID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		return nil
	},
}

var workflowResumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a run waiting for approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		requestID := uuid.NewString()
		res, err := workflowRoundTrip(cmd, ipc.RunResume(runID, requestID), requestID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		return nil
	},
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs and their states",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		requestID := uuid.NewString()
		res, err := workflowRoundTrip(cmd, ipc.RunList(requestID), requestID)
		if err != nil {
			return err
		}
		printRunList(cmd, res)
		return nil
	},
}

func init() {
	workflowRunCmd.Flags().StringVar(&workflowRunVersion, "version", "", "Workflow version (default: highest registered)")
	workflowRunCmd.Flags().StringArrayVar(&workflowRunArgs, "arg", nil, "Run argument as key=value (repeatable)")
	workflowCmd.AddCommand(workflowRunCmd)
	workflowCmd.AddCommand(workflowCancelCmd)
	workflowCmd.AddCommand(workflowResumeCmd)
	workflowCmd.AddCommand(workflowListCmd)
	rootCmd.AddCommand(workflowCmd)
}

// workflowRoundTrip dials the daemon, sends one command, and waits for
// the reply correlated by requestID. A reply with ok=false becomes an
// error so the process exits nonzero.
func workflowRoundTrip(cmd *cobra.Command, ev bus.Event, requestID string) (*ipc.CommandResult, error) {
	c, _, err := dialDaemon(cmd)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if err := c.Send(ev); err != nil {
		return nil, fmt.Errorf("sending command: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	res, err := c.WaitForResult(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("waiting for reply: %w", err)
	}
	if !res.OK {
		if res.Code != "" {
			return nil, fmt.Errorf("%s: %s", res.Code, res.Message)
		}
		return nil, fmt.Errorf("%s", res.Message)
	}
	return res, nil
}

func parseRunID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid run id %q: expected a positive integer", s)
	}
	return id, nil
}

// parseRunArgs turns repeated key=value flags into a run argument map.
func parseRunArgs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --arg %q: expected key=value", pair)
		}
		args[key] = value
	}
	return args, nil
}

var (
	runStateDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	runStateActive  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	runStateFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	runStateNeutral = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // dark gray
)

func styleRunState(state string) string {
	switch state {
	case "completed":
		return runStateDone.Render(state)
	case "queued", "running", "waiting_input", "waiting_approval":
		return runStateActive.Render(state)
	case "failed", "blocked":
		return runStateFailed.Render(state)
	default: // cancelled and anything newer
		return runStateNeutral.Render(state)
	}
}

// printRunList renders the run summaries from a list reply, newest last.
func printRunList(cmd *cobra.Command, res *ipc.CommandResult) {
	out := cmd.OutOrStdout()
	raw, _ := res.Data["runs"].([]any)
	if len(raw) == 0 {
		fmt.Fprintln(out, "no runs")
		return
	}

	type row struct {
		id       int
		workflow string
		version  string
		state    string
		failure  string
	}
	rows := make([]row, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		r := row{}
		r.id, _ = contentInt(m, "runId")
		r.workflow, _ = m["workflowId"].(string)
		r.version, _ = m["version"].(string)
		r.state, _ = m["state"].(string)
		if f, ok := m["failure"].(map[string]any); ok {
			code, _ := f["code"].(string)
			msg, _ := f["message"].(string)
			r.failure = code
			if msg != "" {
				r.failure = fmt.Sprintf("%s: %s", code, msg)
			}
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	for _, r := range rows {
		line := fmt.Sprintf("  %-4d  %-24s  %-10s  %s", r.id, r.workflow, r.version, styleRunState(r.state))
		if r.failure != "" {
			line += fmt.Sprintf("  [%s]", r.failure)
		}
		fmt.Fprintln(out, line)
	}
}
