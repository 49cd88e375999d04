// Package config loads, resolves, and validates FerretBot configuration. A
// ferretbot.toml file found by walking up from the working directory is
// layered with defaults, environment variables, and explicit CLI overrides
// into a single resolved Config.
package config

// Config is the top-level configuration structure mapping to ferretbot.toml.
type Config struct {
	Daemon   DaemonConfig   `toml:"daemon"`
	Paths    PathsConfig    `toml:"paths"`
	Provider ProviderConfig `toml:"provider"`
	Context  ContextConfig  `toml:"context"`
	Agent    AgentConfig    `toml:"agent"`
}

// DaemonConfig maps to the [daemon] section in ferretbot.toml.
// When Socket is non-empty the daemon listens on a unix socket and Host/Port
// are ignored; set socket = "" to listen on TCP instead.
type DaemonConfig struct {
	Socket            string `toml:"socket"`
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	Watch             bool   `toml:"watch"`
	BootstrapWorkflow string `toml:"bootstrap_workflow"`
}

// PathsConfig maps to the [paths] section in ferretbot.toml.
// Relative paths are resolved against the directory containing the config
// file, or the working directory when no file was found.
type PathsConfig struct {
	Workspace string `toml:"workspace"`
	Storage   string `toml:"storage"`
	Workflows string `toml:"workflows"`
}

// ProviderConfig maps to the [provider] section in ferretbot.toml.
type ProviderConfig struct {
	Name           string `toml:"name"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxAttempts    int    `toml:"max_attempts"`
}

// ContextConfig maps to the [context] section in ferretbot.toml.
// Zero values defer to the prompt assembler's own defaults.
type ContextConfig struct {
	Limit         int     `toml:"limit"`
	OutputReserve int     `toml:"output_reserve"`
	CharsPerToken float64 `toml:"chars_per_token"`
	SafetyMargin  float64 `toml:"safety_margin"`
}

// AgentConfig maps to the [agent] section in ferretbot.toml.
// Zero values defer to the agent runner's own defaults.
type AgentConfig struct {
	SystemPrompt       string   `toml:"system_prompt"`
	MaxToolRounds      int      `toml:"max_tool_rounds"`
	MaxContinuations   int      `toml:"max_continuations"`
	MaxSkillChars      int      `toml:"max_skill_chars"`
	MaxToolResultChars int      `toml:"max_tool_result_chars"`
	ChatTools          []string `toml:"chat_tools"`
}
