package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/ferretbot/ferretbot/internal/config"
	"github.com/ferretbot/ferretbot/internal/ipc"
)

// dialTimeout bounds connecting to the daemon plus reading its hello.
const dialTimeout = 5 * time.Second

// cliOverrides collects the endpoint flags the user actually set. An
// explicitly empty --socket is a real value: it selects TCP mode. The
// flag variables are bound to rootCmd, so its flag set carries the
// Changed tracking no matter which subcommand is running.
func cliOverrides() *config.CLIOverrides {
	flags := rootCmd.PersistentFlags()
	o := &config.CLIOverrides{}
	if flags.Changed("socket") {
		o.Socket = &flagSocket
	}
	if flags.Changed("host") {
		o.Host = &flagHost
	}
	if flags.Changed("port") {
		o.Port = &flagPort
	}
	if flags.Changed("watch") {
		o.Watch = &flagWatch
	}
	return o
}

// loadResolvedConfig loads and resolves configuration from all sources.
// --config names the file directly; otherwise ferretbot.toml is found by
// walking up from the current directory, and running without one is fine.
// The metadata is nil when no file was loaded.
func loadResolvedConfig() (*config.ResolvedConfig, *toml.MetaData, error) {
	overrides := cliOverrides()
	if flagConfig != "" {
		return config.LoadAt(flagConfig, os.LookupEnv, overrides)
	}
	return config.Load(".", os.LookupEnv, overrides)
}

// endpointLabel renders the address clients will dial, for messages.
func endpointLabel(cfg *config.Config) string {
	if cfg.Daemon.Socket != "" {
		return cfg.Daemon.Socket
	}
	return fmt.Sprintf("%s:%d", cfg.Daemon.Host, cfg.Daemon.Port)
}

// dialDaemon resolves the endpoint and connects to a running daemon.
func dialDaemon(cmd *cobra.Command) (*ipc.Client, *config.Config, error) {
	resolved, _, err := loadResolvedConfig()
	if err != nil {
		return nil, nil, err
	}
	cfg := resolved.Config

	ctx, cancel := context.WithTimeout(cmd.Context(), dialTimeout)
	defer cancel()
	c, err := ipc.Dial(ctx, ipc.Config{
		Socket: cfg.Daemon.Socket,
		Host:   cfg.Daemon.Host,
		Port:   cfg.Daemon.Port,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to daemon at %s: %w (is `ferretbot serve` running?)", endpointLabel(cfg), err)
	}
	return c, cfg, nil
}

// contentInt reads a numeric content field. Events that crossed the wire
// carry JSON numbers, which decode as float64.
func contentInt(content map[string]any, key string) (int, bool) {
	switch v := content[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
