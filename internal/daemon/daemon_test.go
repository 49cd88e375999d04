package daemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferretbot/ferretbot/internal/config"
	"github.com/ferretbot/ferretbot/internal/engine"
	"github.com/ferretbot/ferretbot/internal/ipc"
	"github.com/ferretbot/ferretbot/internal/logging"
	"github.com/ferretbot/ferretbot/internal/workflow"
)

func TestMain(m *testing.M) {
	logging.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// testConfig returns defaults with every path anchored in a fresh temp
// directory, serving on a unix socket.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewDefaults()
	cfg.Daemon.Socket = filepath.Join(dir, "daemon.sock")
	cfg.Paths.Workspace = filepath.Join(dir, "workspace")
	cfg.Paths.Storage = filepath.Join(dir, "runs")
	cfg.Paths.Workflows = filepath.Join(dir, "workflows")
	return cfg
}

// writeWorkflow drops a minimal valid definition under baseDir/<id>/.
// The single wait step keeps runs parked without touching a provider.
func writeWorkflow(t *testing.T, baseDir, id string) {
	t.Helper()
	dir := filepath.Join(baseDir, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	doc := fmt.Sprintf(`id: %s
version: 1.0.0
name: Test
steps:
  - id: ask
    type: wait_for_input
    prompt: Who goes there?
    responseKey: name
`, id)
	require.NoError(t, os.WriteFile(filepath.Join(dir, workflow.FileName), []byte(doc), 0o644))
}

type runningDaemon struct {
	t      *testing.T
	d      *Daemon
	cancel context.CancelFunc
	done   chan error

	once sync.Once
	err  error
}

// stop cancels the daemon and returns Run's error. Safe to call more
// than once; the Cleanup path reuses it.
func (r *runningDaemon) stop() error {
	r.once.Do(func() {
		r.cancel()
		select {
		case r.err = <-r.done:
		case <-time.After(5 * time.Second):
			r.t.Error("daemon did not stop within 5s")
		}
	})
	return r.err
}

func startDaemon(t *testing.T, cfg *config.Config) *runningDaemon {
	t.Helper()
	d, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := &runningDaemon{t: t, d: d, cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- d.Run(ctx) }()
	require.Eventually(t, func() bool { return d.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(func() { r.stop() })
	return r
}

func dialDaemon(t *testing.T, cfg ipc.Config) *ipc.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := ipc.Dial(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewBuildsWiredGraph(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg)
	require.NoError(t, err)

	require.NotNil(t, d.bus)
	require.NotNil(t, d.registry)
	require.NotNil(t, d.engine)
	require.NotNil(t, d.runner)
	require.NotNil(t, d.gateway)
	assert.Nil(t, d.Addr(), "gateway must not bind before Run")
	assert.DirExists(t, cfg.Paths.Workspace)
}

func TestNewRegistersBuiltinWorkflows(t *testing.T) {
	d, err := New(testConfig(t))
	require.NoError(t, err)

	for _, id := range []string{workflow.WorkflowOnboarding, workflow.WorkflowWorkspaceInit} {
		def, err := d.registry.Get(id, "")
		require.NoError(t, err, "builtin %s", id)
		assert.Equal(t, id, def.ID)
	}
}

func TestNewUnknownProviderFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider.Name = "bedrock"

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bedrock")
}

func TestRunListenFailureReturnsError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.Socket = filepath.Join(t.TempDir(), "missing", "sub", "daemon.sock")
	d, err := New(cfg)
	require.NoError(t, err)

	err = d.Run(context.Background())
	require.Error(t, err)
}

func TestRunUnixSocketLifecycle(t *testing.T) {
	cfg := testConfig(t)
	rd := startDaemon(t, cfg)

	c := dialDaemon(t, ipc.Config{Socket: cfg.Daemon.Socket})
	assert.NotEmpty(t, c.ClientID())
	assert.True(t, strings.HasPrefix(c.SessionID(), "client:"), "session %q", c.SessionID())

	reqID := uuid.NewString()
	require.NoError(t, c.Send(ipc.RunList(reqID)))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	res, err := c.WaitForResult(ctx, reqID)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "workflow:run:list", res.Command)
	runs, ok := res.Data["runs"].([]any)
	require.True(t, ok, "data.runs missing: %v", res.Data)
	assert.Empty(t, runs)

	require.NoError(t, rd.stop())
	_, statErr := os.Stat(cfg.Daemon.Socket)
	assert.True(t, os.IsNotExist(statErr), "socket file should be removed on shutdown")
}

func TestRunTCPEphemeralPort(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.Socket = ""
	cfg.Daemon.Host = "127.0.0.1"
	cfg.Daemon.Port = 0
	rd := startDaemon(t, cfg)

	host, portStr, err := net.SplitHostPort(rd.d.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	require.NotZero(t, port)

	c := dialDaemon(t, ipc.Config{Host: host, Port: port})
	assert.NotEmpty(t, c.ClientID())
}

func TestRunLoadsWorkflowDirAtStart(t *testing.T) {
	cfg := testConfig(t)
	writeWorkflow(t, cfg.Paths.Workflows, "greet")
	rd := startDaemon(t, cfg)

	def, err := rd.d.registry.Get("greet", "")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", def.Version)
}

func TestRunBootstrapParksOnFirstWait(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.BootstrapWorkflow = workflow.WorkflowOnboarding
	rd := startDaemon(t, cfg)

	require.Eventually(t, func() bool {
		run, err := rd.d.engine.GetRun(1)
		return err == nil && run.State == engine.RunWaitingInput
	}, 3*time.Second, 25*time.Millisecond)

	run, err := rd.d.engine.GetRun(1)
	require.NoError(t, err)
	assert.True(t, run.Bootstrap)
	assert.Equal(t, workflow.WorkflowOnboarding, run.WorkflowID)
}

func TestRunBootstrapUnknownWorkflowIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.BootstrapWorkflow = "no-such-workflow"
	rd := startDaemon(t, cfg)

	// Daemon still serves clients.
	c := dialDaemon(t, ipc.Config{Socket: cfg.Daemon.Socket})
	assert.NotEmpty(t, c.ClientID())
	assert.Empty(t, rd.d.engine.ListRuns())
}

func TestWatchRegistersNewWorkflow(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.Watch = true
	require.NoError(t, os.MkdirAll(cfg.Paths.Workflows, 0o755))
	rd := startDaemon(t, cfg)

	writeWorkflow(t, cfg.Paths.Workflows, "greet")

	// The tick stays above the reload debounce so retouching the file
	// cannot keep pushing the reload forward.
	require.Eventually(t, func() bool {
		_, err := rd.d.registry.Get("greet", "")
		if err != nil {
			writeWorkflow(t, cfg.Paths.Workflows, "greet")
			return false
		}
		return true
	}, 10*time.Second, time.Second)
}

func TestWatchMissingDirDisablesReload(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.Watch = true
	// Workflows dir intentionally absent.
	rd := startDaemon(t, cfg)

	c := dialDaemon(t, ipc.Config{Socket: cfg.Daemon.Socket})
	assert.NotEmpty(t, c.ClientID())
	require.NoError(t, rd.stop())
}

func TestAddWatchTreeSkipsHiddenDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "greet", "skills"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755))

	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, addWatchTree(w, root))
	list := w.WatchList()
	assert.Contains(t, list, root)
	assert.Contains(t, list, filepath.Join(root, "greet"))
	assert.Contains(t, list, filepath.Join(root, "greet", "skills"))
	assert.NotContains(t, list, filepath.Join(root, ".git"))
	assert.NotContains(t, list, filepath.Join(root, ".git", "objects"))
}
