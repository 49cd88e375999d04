package config

import (
	"strconv"

	"github.com/BurntSushi/toml"
)

// ConfigSource identifies where a configuration value came from.
type ConfigSource string

const (
	// SourceDefault indicates the value came from built-in defaults.
	SourceDefault ConfigSource = "default"
	// SourceFile indicates the value came from the ferretbot.toml config file.
	SourceFile ConfigSource = "file"
	// SourceEnv indicates the value came from an environment variable.
	SourceEnv ConfigSource = "env"
	// SourceCLI indicates the value came from a CLI flag.
	SourceCLI ConfigSource = "cli"
)

// ResolvedConfig holds the fully-resolved configuration with source tracking.
// The Config field contains the merged values; Sources tracks where each came from.
type ResolvedConfig struct {
	Config  *Config
	Sources map[string]ConfigSource // key is dotted path, e.g., "daemon.socket"
	Path    string                  // path to the config file used (empty if none)
}

// CLIOverrides captures flag values that can override configuration.
// Nil values mean "not set" (do not override). A *string that is nil means
// "not overridden"; a *string pointing to "" means "override to empty string",
// which for Socket selects TCP mode.
type CLIOverrides struct {
	Socket *string
	Host   *string
	Port   *int
	Watch  *bool
}

// EnvFunc is a function that looks up environment variables.
// Default implementation is os.LookupEnv. Injected for testability.
type EnvFunc func(key string) (string, bool)

// Resolve merges configuration from all sources in priority order:
// CLI flags > environment variables > config file > defaults.
//
// Parameters:
//   - defaults: built-in default config (from NewDefaults())
//   - fileConfig: parsed config from ferretbot.toml (nil if no file found)
//   - meta: TOML metadata for fileConfig; IsDefined distinguishes keys the
//     file set from zero values (nil if no file found)
//   - envFn: function to look up environment variables
//   - overrides: CLI flag values (nil fields mean "not set")
//
// Returns the fully-resolved config with source annotations.
func Resolve(defaults *Config, fileConfig *Config, meta *toml.MetaData, envFn EnvFunc, overrides *CLIOverrides) *ResolvedConfig {
	rc := &ResolvedConfig{
		Config:  &Config{},
		Sources: make(map[string]ConfigSource),
	}

	// Ensure we have a valid defaults to start from.
	if defaults == nil {
		defaults = &Config{}
	}

	// Ensure we have a valid envFn.
	if envFn == nil {
		envFn = func(string) (string, bool) { return "", false }
	}

	// Ensure we have a valid overrides.
	if overrides == nil {
		overrides = &CLIOverrides{}
	}

	// Layer 1: Start with defaults as the base.
	resolveDaemonFromDefaults(rc, defaults)
	resolvePathsFromDefaults(rc, defaults)
	resolveProviderFromDefaults(rc, defaults)
	resolveContextFromDefaults(rc, defaults)
	resolveAgentFromDefaults(rc, defaults)

	// Layer 2: Merge file config on top (only keys the file defines override).
	if fileConfig != nil {
		resolveDaemonFromFile(rc, fileConfig, meta)
		resolvePathsFromFile(rc, fileConfig, meta)
		resolveProviderFromFile(rc, fileConfig, meta)
		resolveContextFromFile(rc, fileConfig, meta)
		resolveAgentFromFile(rc, fileConfig, meta)
	}

	// Layer 3: Merge environment variables on top.
	resolveFromEnv(rc, envFn)

	// Layer 4: Merge CLI overrides on top.
	resolveFromCLI(rc, overrides)

	return rc
}

// --- Layer 1: Defaults ---

func resolveDaemonFromDefaults(rc *ResolvedConfig, defaults *Config) {
	d := &rc.Config.Daemon
	v := &defaults.Daemon

	setString(&d.Socket, v.Socket, "daemon.socket", rc.Sources)
	setString(&d.Host, v.Host, "daemon.host", rc.Sources)
	setInt(&d.Port, v.Port, "daemon.port", rc.Sources)
	setBool(&d.Watch, v.Watch, "daemon.watch", rc.Sources)
	setString(&d.BootstrapWorkflow, v.BootstrapWorkflow, "daemon.bootstrap_workflow", rc.Sources)
}

func resolvePathsFromDefaults(rc *ResolvedConfig, defaults *Config) {
	p := &rc.Config.Paths
	v := &defaults.Paths

	setString(&p.Workspace, v.Workspace, "paths.workspace", rc.Sources)
	setString(&p.Storage, v.Storage, "paths.storage", rc.Sources)
	setString(&p.Workflows, v.Workflows, "paths.workflows", rc.Sources)
}

func resolveProviderFromDefaults(rc *ResolvedConfig, defaults *Config) {
	p := &rc.Config.Provider
	v := &defaults.Provider

	setString(&p.Name, v.Name, "provider.name", rc.Sources)
	setString(&p.BaseURL, v.BaseURL, "provider.base_url", rc.Sources)
	setString(&p.Model, v.Model, "provider.model", rc.Sources)
	setString(&p.APIKey, v.APIKey, "provider.api_key", rc.Sources)
	setInt(&p.TimeoutSeconds, v.TimeoutSeconds, "provider.timeout_seconds", rc.Sources)
	setInt(&p.MaxAttempts, v.MaxAttempts, "provider.max_attempts", rc.Sources)
}

func resolveContextFromDefaults(rc *ResolvedConfig, defaults *Config) {
	c := &rc.Config.Context
	v := &defaults.Context

	setInt(&c.Limit, v.Limit, "context.limit", rc.Sources)
	setInt(&c.OutputReserve, v.OutputReserve, "context.output_reserve", rc.Sources)
	setFloat(&c.CharsPerToken, v.CharsPerToken, "context.chars_per_token", rc.Sources)
	setFloat(&c.SafetyMargin, v.SafetyMargin, "context.safety_margin", rc.Sources)
}

func resolveAgentFromDefaults(rc *ResolvedConfig, defaults *Config) {
	a := &rc.Config.Agent
	v := &defaults.Agent

	setString(&a.SystemPrompt, v.SystemPrompt, "agent.system_prompt", rc.Sources)
	setInt(&a.MaxToolRounds, v.MaxToolRounds, "agent.max_tool_rounds", rc.Sources)
	setInt(&a.MaxContinuations, v.MaxContinuations, "agent.max_continuations", rc.Sources)
	setInt(&a.MaxSkillChars, v.MaxSkillChars, "agent.max_skill_chars", rc.Sources)
	setInt(&a.MaxToolResultChars, v.MaxToolResultChars, "agent.max_tool_result_chars", rc.Sources)

	if len(v.ChatTools) > 0 {
		a.ChatTools = make([]string, len(v.ChatTools))
		copy(a.ChatTools, v.ChatTools)
	}
	rc.Sources["agent.chat_tools"] = SourceDefault
}

// --- Layer 2: File ---

func resolveDaemonFromFile(rc *ResolvedConfig, file *Config, meta *toml.MetaData) {
	d := &rc.Config.Daemon
	v := &file.Daemon

	mergeString(&d.Socket, v.Socket, defined(meta, "daemon", "socket"), "daemon.socket", rc.Sources)
	mergeString(&d.Host, v.Host, defined(meta, "daemon", "host"), "daemon.host", rc.Sources)
	mergeInt(&d.Port, v.Port, defined(meta, "daemon", "port"), "daemon.port", rc.Sources)
	mergeBool(&d.Watch, v.Watch, defined(meta, "daemon", "watch"), "daemon.watch", rc.Sources)
	mergeString(&d.BootstrapWorkflow, v.BootstrapWorkflow, defined(meta, "daemon", "bootstrap_workflow"), "daemon.bootstrap_workflow", rc.Sources)
}

func resolvePathsFromFile(rc *ResolvedConfig, file *Config, meta *toml.MetaData) {
	p := &rc.Config.Paths
	v := &file.Paths

	mergeString(&p.Workspace, v.Workspace, defined(meta, "paths", "workspace"), "paths.workspace", rc.Sources)
	mergeString(&p.Storage, v.Storage, defined(meta, "paths", "storage"), "paths.storage", rc.Sources)
	mergeString(&p.Workflows, v.Workflows, defined(meta, "paths", "workflows"), "paths.workflows", rc.Sources)
}

func resolveProviderFromFile(rc *ResolvedConfig, file *Config, meta *toml.MetaData) {
	p := &rc.Config.Provider
	v := &file.Provider

	mergeString(&p.Name, v.Name, defined(meta, "provider", "name"), "provider.name", rc.Sources)
	mergeString(&p.BaseURL, v.BaseURL, defined(meta, "provider", "base_url"), "provider.base_url", rc.Sources)
	mergeString(&p.Model, v.Model, defined(meta, "provider", "model"), "provider.model", rc.Sources)
	mergeString(&p.APIKey, v.APIKey, defined(meta, "provider", "api_key"), "provider.api_key", rc.Sources)
	mergeInt(&p.TimeoutSeconds, v.TimeoutSeconds, defined(meta, "provider", "timeout_seconds"), "provider.timeout_seconds", rc.Sources)
	mergeInt(&p.MaxAttempts, v.MaxAttempts, defined(meta, "provider", "max_attempts"), "provider.max_attempts", rc.Sources)
}

func resolveContextFromFile(rc *ResolvedConfig, file *Config, meta *toml.MetaData) {
	c := &rc.Config.Context
	v := &file.Context

	mergeInt(&c.Limit, v.Limit, defined(meta, "context", "limit"), "context.limit", rc.Sources)
	mergeInt(&c.OutputReserve, v.OutputReserve, defined(meta, "context", "output_reserve"), "context.output_reserve", rc.Sources)
	mergeFloat(&c.CharsPerToken, v.CharsPerToken, defined(meta, "context", "chars_per_token"), "context.chars_per_token", rc.Sources)
	mergeFloat(&c.SafetyMargin, v.SafetyMargin, defined(meta, "context", "safety_margin"), "context.safety_margin", rc.Sources)
}

func resolveAgentFromFile(rc *ResolvedConfig, file *Config, meta *toml.MetaData) {
	a := &rc.Config.Agent
	v := &file.Agent

	mergeString(&a.SystemPrompt, v.SystemPrompt, defined(meta, "agent", "system_prompt"), "agent.system_prompt", rc.Sources)
	mergeInt(&a.MaxToolRounds, v.MaxToolRounds, defined(meta, "agent", "max_tool_rounds"), "agent.max_tool_rounds", rc.Sources)
	mergeInt(&a.MaxContinuations, v.MaxContinuations, defined(meta, "agent", "max_continuations"), "agent.max_continuations", rc.Sources)
	mergeInt(&a.MaxSkillChars, v.MaxSkillChars, defined(meta, "agent", "max_skill_chars"), "agent.max_skill_chars", rc.Sources)
	mergeInt(&a.MaxToolResultChars, v.MaxToolResultChars, defined(meta, "agent", "max_tool_result_chars"), "agent.max_tool_result_chars", rc.Sources)

	if defined(meta, "agent", "chat_tools") {
		a.ChatTools = make([]string, len(v.ChatTools))
		copy(a.ChatTools, v.ChatTools)
		rc.Sources["agent.chat_tools"] = SourceFile
	}
}

// --- Layer 3: Environment ---

// Environment variable mapping:
//
//	FERRETBOT_SOCKET    -> daemon.socket
//	FERRETBOT_HOST      -> daemon.host
//	FERRETBOT_PORT      -> daemon.port
//	FERRETBOT_PROVIDER  -> provider.name
//	FERRETBOT_MODEL     -> provider.model
//	FERRETBOT_BASE_URL  -> provider.base_url
//	FERRETBOT_API_KEY   -> provider.api_key
func resolveFromEnv(rc *ResolvedConfig, envFn EnvFunc) {
	d := &rc.Config.Daemon
	p := &rc.Config.Provider

	if val, ok := envFn("FERRETBOT_SOCKET"); ok {
		d.Socket = val
		rc.Sources["daemon.socket"] = SourceEnv
	}
	if val, ok := envFn("FERRETBOT_HOST"); ok {
		d.Host = val
		rc.Sources["daemon.host"] = SourceEnv
	}
	if val, ok := envFn("FERRETBOT_PORT"); ok {
		// Unparseable values are ignored; validation reports the rest.
		if port, err := strconv.Atoi(val); err == nil {
			d.Port = port
			rc.Sources["daemon.port"] = SourceEnv
		}
	}
	if val, ok := envFn("FERRETBOT_PROVIDER"); ok {
		p.Name = val
		rc.Sources["provider.name"] = SourceEnv
	}
	if val, ok := envFn("FERRETBOT_MODEL"); ok {
		p.Model = val
		rc.Sources["provider.model"] = SourceEnv
	}
	if val, ok := envFn("FERRETBOT_BASE_URL"); ok {
		p.BaseURL = val
		rc.Sources["provider.base_url"] = SourceEnv
	}
	if val, ok := envFn("FERRETBOT_API_KEY"); ok {
		p.APIKey = val
		rc.Sources["provider.api_key"] = SourceEnv
	}
}

// --- Layer 4: CLI overrides ---

func resolveFromCLI(rc *ResolvedConfig, overrides *CLIOverrides) {
	d := &rc.Config.Daemon

	if overrides.Socket != nil {
		d.Socket = *overrides.Socket
		rc.Sources["daemon.socket"] = SourceCLI
	}
	if overrides.Host != nil {
		d.Host = *overrides.Host
		rc.Sources["daemon.host"] = SourceCLI
	}
	if overrides.Port != nil {
		d.Port = *overrides.Port
		rc.Sources["daemon.port"] = SourceCLI
	}
	if overrides.Watch != nil {
		d.Watch = *overrides.Watch
		rc.Sources["daemon.watch"] = SourceCLI
	}
}

// --- Helpers ---

// setString unconditionally sets the target to the given value and records the
// default source.
func setString(target *string, value string, path string, sources map[string]ConfigSource) {
	*target = value
	sources[path] = SourceDefault
}

func setInt(target *int, value int, path string, sources map[string]ConfigSource) {
	*target = value
	sources[path] = SourceDefault
}

func setFloat(target *float64, value float64, path string, sources map[string]ConfigSource) {
	*target = value
	sources[path] = SourceDefault
}

func setBool(target *bool, value bool, path string, sources map[string]ConfigSource) {
	*target = value
	sources[path] = SourceDefault
}

// mergeString overwrites the target only when the file defined the key.
// Zero values a file sets explicitly (socket = "", port = 0) do override,
// which is how TCP mode is selected.
func mergeString(target *string, value string, isDefined bool, path string, sources map[string]ConfigSource) {
	if isDefined {
		*target = value
		sources[path] = SourceFile
	}
}

func mergeInt(target *int, value int, isDefined bool, path string, sources map[string]ConfigSource) {
	if isDefined {
		*target = value
		sources[path] = SourceFile
	}
}

func mergeFloat(target *float64, value float64, isDefined bool, path string, sources map[string]ConfigSource) {
	if isDefined {
		*target = value
		sources[path] = SourceFile
	}
}

func mergeBool(target *bool, value bool, isDefined bool, path string, sources map[string]ConfigSource) {
	if isDefined {
		*target = value
		sources[path] = SourceFile
	}
}

// defined reports whether the file set the given key. Nil metadata means no
// file was loaded.
func defined(meta *toml.MetaData, key ...string) bool {
	return meta != nil && meta.IsDefined(key...)
}
