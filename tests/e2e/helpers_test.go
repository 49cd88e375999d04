package e2e_test

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testProject is an isolated project directory with its own ferretbot binary,
// config file, and workflows directory.
type testProject struct {
	Dir        string
	BinaryPath string
	t          *testing.T
}

// newTestProject builds the ferretbot binary into a fresh temp directory and
// returns a testProject ready for use. Must be called from a test function;
// uses t.Helper() to mark itself accordingly.
func newTestProject(t *testing.T) *testProject {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("E2E tests rely on unix sockets and signals; not supported on Windows")
	}

	dir := t.TempDir()

	binary := filepath.Join(dir, "ferretbot")
	build := exec.Command("go", "build", "-o", binary, "./cmd/ferretbot")
	build.Dir = projectRoot()
	out, err := build.CombinedOutput()
	require.NoError(t, err, "building ferretbot: %s", string(out))

	return &testProject{Dir: dir, BinaryPath: binary, t: t}
}

// projectRoot returns the absolute path to the root of the repository.
// It uses runtime.Caller(0) to find this source file's location and navigates
// two directories up (tests/e2e/ -> tests/ -> repo root).
func projectRoot() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..")
}

// writeConfig writes content to ferretbot.toml in tp.Dir.
func (tp *testProject) writeConfig(content string) {
	tp.t.Helper()
	err := os.WriteFile(filepath.Join(tp.Dir, "ferretbot.toml"), []byte(content), 0o644)
	require.NoError(tp.t, err)
}

// writeWorkflow writes a workflow definition to workflows/<id>/workflow.yaml.
func (tp *testProject) writeWorkflow(id, content string) {
	tp.t.Helper()
	dir := filepath.Join(tp.Dir, "workflows", id)
	require.NoError(tp.t, os.MkdirAll(dir, 0o755))
	err := os.WriteFile(filepath.Join(dir, "workflow.yaml"), []byte(content), 0o644)
	require.NoError(tp.t, err)
}

// workspacePath returns the path of a file inside the project's agent
// workspace (the default "workspace" directory).
func (tp *testProject) workspacePath(rel string) string {
	return filepath.Join(tp.Dir, "workspace", rel)
}

// run creates an exec.Cmd for ferretbot running in the project directory.
func (tp *testProject) run(args ...string) *exec.Cmd {
	cmd := exec.Command(tp.BinaryPath, args...)
	cmd.Dir = tp.Dir
	cmd.Env = append(os.Environ(),
		"NO_COLOR=1",                // disable ANSI color in output
		"FERRETBOT_LOG_FORMAT=json", // structured logs for easier parsing
	)
	return cmd
}

// runExpectSuccess runs ferretbot and asserts exit code 0.
// Returns combined stdout+stderr output.
func (tp *testProject) runExpectSuccess(args ...string) string {
	tp.t.Helper()
	cmd := tp.run(args...)
	out, err := cmd.CombinedOutput()
	require.NoError(tp.t, err, "ferretbot %v failed:\n%s", args, string(out))
	return string(out)
}

// runExpectFailure runs ferretbot and asserts a non-zero exit code.
// Returns combined output and the exit code.
func (tp *testProject) runExpectFailure(args ...string) (string, int) {
	tp.t.Helper()
	cmd := tp.run(args...)
	out, err := cmd.CombinedOutput()
	require.Error(tp.t, err, "ferretbot %v expected to fail but succeeded:\n%s", args, string(out))
	var exitErr *exec.ExitError
	require.True(tp.t, errors.As(err, &exitErr), "expected *exec.ExitError, got %T: %v", err, err)
	return string(out), exitErr.ExitCode()
}

// daemonProc wraps a running "ferretbot serve" process.
type daemonProc struct {
	cmd      *exec.Cmd
	Socket   string
	logPath  string
	stopOnce sync.Once
	waitErr  error
}

// startDaemon launches "ferretbot serve" in the project directory and waits
// until the daemon's unix socket exists. Cleanup stops the daemon if the
// test did not stop it itself and dumps the daemon log on failure.
func (tp *testProject) startDaemon() *daemonProc {
	tp.t.Helper()

	logPath := filepath.Join(tp.Dir, "daemon.log")
	logFile, err := os.Create(logPath)
	require.NoError(tp.t, err)

	cmd := tp.run("serve")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	require.NoError(tp.t, cmd.Start(), "starting daemon")
	logFile.Close() // the child process holds its own descriptor

	d := &daemonProc{
		cmd:     cmd,
		Socket:  filepath.Join(tp.Dir, ".ferretbot", "daemon.sock"),
		logPath: logPath,
	}

	tp.t.Cleanup(func() {
		_ = d.Stop()
		if tp.t.Failed() {
			if out, readErr := os.ReadFile(logPath); readErr == nil {
				tp.t.Logf("daemon log:\n%s", out)
			}
		}
	})

	require.Eventually(tp.t, func() bool {
		_, statErr := os.Stat(d.Socket)
		return statErr == nil
	}, 10*time.Second, 25*time.Millisecond, "daemon socket never appeared")

	return d
}

// Stop terminates the daemon with SIGTERM and returns the error from Wait;
// a clean shutdown returns nil. Safe to call more than once.
func (d *daemonProc) Stop() error {
	d.stopOnce.Do(func() {
		_ = d.cmd.Process.Signal(syscall.SIGTERM)
		done := make(chan error, 1)
		go func() { done <- d.cmd.Wait() }()
		select {
		case err := <-done:
			d.waitErr = err
		case <-time.After(10 * time.Second):
			_ = d.cmd.Process.Kill()
			d.waitErr = <-done
		}
	})
	return d.waitErr
}

// waitForRunState polls "ferretbot workflow list" until the run's row shows
// the wanted state. Row format: two leading spaces, then the left-aligned id.
func (tp *testProject) waitForRunState(runID int, state string) {
	tp.t.Helper()
	idCol := fmt.Sprintf("  %-4d", runID)
	require.Eventually(tp.t, func() bool {
		out, err := tp.run("workflow", "list").CombinedOutput()
		if err != nil {
			return false
		}
		for _, line := range strings.Split(string(out), "\n") {
			if strings.HasPrefix(line, idCol) && strings.Contains(line, state) {
				return true
			}
		}
		return false
	}, 15*time.Second, 100*time.Millisecond, "run %d never reached state %q", runID, state)
}

// minimalConfig returns ferretbot.toml content that pins the provider to an
// unreachable local endpoint with a single attempt: chat answers fail fast
// and deterministically, while workflow commands never touch the provider.
func minimalConfig() string {
	return `[provider]
name = "ollama"
base_url = "http://127.0.0.1:1"
model = "test-model"
max_attempts = 1

[context]
limit = 8000
`
}
