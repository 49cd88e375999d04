package config

// DefaultSystemPrompt is the agent system prompt used when ferretbot.toml
// does not set one.
const DefaultSystemPrompt = "You are FerretBot, a local workflow agent. " +
	"You complete workflow steps and answer questions using the tools you are given. " +
	"Be concise; report what you did, not what you plan to do."

// NewDefaults returns a Config populated with all default values.
// These defaults describe a self-contained project directory: state under
// .ferretbot/, agent-visible files under workspace/, and a local ollama
// provider so a fresh checkout works without credentials.
func NewDefaults() *Config {
	return &Config{
		Daemon: DaemonConfig{
			Socket: ".ferretbot/daemon.sock",
			Host:   "127.0.0.1",
			Port:   7633,
		},
		Paths: PathsConfig{
			Workspace: "workspace",
			Storage:   ".ferretbot/runs",
			Workflows: "workflows",
		},
		Provider: ProviderConfig{
			Name:  "ollama",
			Model: "qwen2.5-coder",
		},
		Context: ContextConfig{
			Limit: 32000,
		},
		Agent: AgentConfig{
			SystemPrompt: DefaultSystemPrompt,
		},
	}
}
