// Package daemon assembles the FerretBot runtime and supervises its
// long-lived loops. New wires every component from a resolved
// configuration; Run serves until the context is cancelled.
package daemon

import (
	"context"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/ferretbot/ferretbot/internal/bus"
	"github.com/ferretbot/ferretbot/internal/checks"
	"github.com/ferretbot/ferretbot/internal/config"
	"github.com/ferretbot/ferretbot/internal/engine"
	"github.com/ferretbot/ferretbot/internal/gateway"
	"github.com/ferretbot/ferretbot/internal/logging"
	"github.com/ferretbot/ferretbot/internal/loop"
	"github.com/ferretbot/ferretbot/internal/prompt"
	"github.com/ferretbot/ferretbot/internal/provider"
	"github.com/ferretbot/ferretbot/internal/session"
	"github.com/ferretbot/ferretbot/internal/skills"
	"github.com/ferretbot/ferretbot/internal/tools"
	"github.com/ferretbot/ferretbot/internal/workflow"
	"github.com/ferretbot/ferretbot/internal/workspace"
)

// Daemon owns one fully wired runtime: bus, registry, engine, agent
// runner, and gateway. Construct with New, then call Run.
type Daemon struct {
	cfg *config.Config
	log *log.Logger

	bus      *bus.Bus
	registry *workflow.Registry
	engine   *engine.Engine
	runner   *loop.Runner
	gateway  *gateway.Gateway
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogger overrides the default component logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Daemon) { d.log = logger }
}

// New builds the component graph from cfg and registers every bus
// handler. Nothing listens or serves until Run. cfg is expected to have
// passed config.Validate; construction still fails on unusable values
// such as an unknown provider name.
func New(cfg *config.Config, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		cfg: cfg,
		log: logging.New("daemon"),
	}
	for _, opt := range opts {
		opt(d)
	}

	ws, err := workspace.New(cfg.Paths.Workspace)
	if err != nil {
		return nil, err
	}

	checkReg := checks.Builtin()
	registry := workflow.NewRegistry(checkReg)
	if err := workflow.RegisterBuiltins(registry); err != nil {
		return nil, err
	}

	b := bus.New()
	eng, err := engine.New(b, registry, checkReg, ws, cfg.Paths.Storage)
	if err != nil {
		return nil, err
	}

	toolReg, err := tools.Builtin(ws)
	if err != nil {
		return nil, err
	}
	client, err := provider.NewClient(provider.Builtin(), provider.Config{
		Provider: cfg.Provider.Name,
		BaseURL:  cfg.Provider.BaseURL,
		Model:    cfg.Provider.Model,
		APIKey:   cfg.Provider.APIKey,
		Timeout:  time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		Retry:    provider.RetryConfig{MaxAttempts: cfg.Provider.MaxAttempts},
	})
	if err != nil {
		return nil, err
	}
	assembler := prompt.New(prompt.Config{
		ContextLimit:  cfg.Context.Limit,
		OutputReserve: cfg.Context.OutputReserve,
		CharsPerToken: cfg.Context.CharsPerToken,
		SafetyMargin:  cfg.Context.SafetyMargin,
	})
	runner := loop.New(b, eng, assembler, skills.New(nil), toolReg, client, session.NewStore(), loop.Config{
		SystemPrompt:       cfg.Agent.SystemPrompt,
		MaxToolRounds:      cfg.Agent.MaxToolRounds,
		MaxContinuations:   cfg.Agent.MaxContinuations,
		MaxSkillChars:      cfg.Agent.MaxSkillChars,
		MaxToolResultChars: cfg.Agent.MaxToolResultChars,
		ChatTools:          cfg.Agent.ChatTools,
	})
	gw := gateway.New(b, gateway.Config{
		Socket: cfg.Daemon.Socket,
		Host:   cfg.Daemon.Host,
		Port:   cfg.Daemon.Port,
	})

	// Engine before runner: run commands must be applied before the
	// runner reacts to the step events they produce. Gateway last so
	// clients only see events from a fully wired graph.
	eng.Attach()
	runner.Attach()
	gw.Attach()

	d.bus = b
	d.registry = registry
	d.engine = eng
	d.runner = runner
	d.gateway = gw
	return d, nil
}

// Addr returns the gateway's bound address, or nil before Run has bound
// it. With a TCP endpoint and port 0 this is how callers learn the
// assigned port.
func (d *Daemon) Addr() net.Addr {
	return d.gateway.Addr()
}

// Run binds the gateway, registers workflows from the configured
// directory, and serves until ctx is cancelled. It returns once every
// loop has stopped and in-flight agent work has drained.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.gateway.Listen(); err != nil {
		return err
	}

	count, err := d.registry.LoadDir(d.cfg.Paths.Workflows)
	if err != nil {
		// Partial loads keep the valid definitions, so a bad file is
		// reported but does not stop the daemon.
		d.log.Warn("workflow load reported errors", "registered", count, "error", err)
	} else {
		d.log.Info("workflows registered", "count", count, "dir", d.cfg.Paths.Workflows)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.bus.Run(gctx)
	})
	g.Go(func() error {
		return d.gateway.Serve(gctx)
	})
	if d.cfg.Daemon.Watch {
		g.Go(func() error {
			return d.watchWorkflows(gctx)
		})
	}

	d.startBootstrap()

	err = g.Wait()
	d.runner.Wait()
	d.log.Info("daemon stopped")
	return err
}

// startBootstrap launches the configured bootstrap workflow, if any.
// Failure to start it is not fatal: the daemon still serves clients,
// who can run workflows by hand.
func (d *Daemon) startBootstrap() {
	id := d.cfg.Daemon.BootstrapWorkflow
	if id == "" {
		return
	}
	run, err := d.engine.StartRun(engine.StartParams{WorkflowID: id, Bootstrap: true})
	if err != nil {
		d.log.Warn("bootstrap workflow did not start", "workflow", id, "error", err)
		return
	}
	d.log.Info("bootstrap run started", "workflow", id, "run", run.ID)
}
