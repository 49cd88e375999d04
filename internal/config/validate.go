package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// ValidationSeverity indicates whether a validation issue is an error or warning.
type ValidationSeverity string

const (
	// SeverityError indicates a fatal validation issue; the configuration is unusable.
	SeverityError ValidationSeverity = "error"
	// SeverityWarning indicates an informational validation issue; the configuration works
	// but may have problems.
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue represents a single validation finding.
type ValidationIssue struct {
	Severity ValidationSeverity
	Field    string // dotted path, e.g., "provider.name"
	Message  string
}

// ValidationResult holds all validation findings.
type ValidationResult struct {
	Issues []ValidationIssue
}

// HasErrors returns true if any issue has error severity.
func (vr *ValidationResult) HasErrors() bool {
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// HasWarnings returns true if any issue has warning severity.
func (vr *ValidationResult) HasWarnings() bool {
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// Errors returns only error-severity issues.
func (vr *ValidationResult) Errors() []ValidationIssue {
	var errs []ValidationIssue
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityError {
			errs = append(errs, issue)
		}
	}
	return errs
}

// Warnings returns only warning-severity issues.
func (vr *ValidationResult) Warnings() []ValidationIssue {
	var warns []ValidationIssue
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityWarning {
			warns = append(warns, issue)
		}
	}
	return warns
}

// recognizedProviders is the set of valid values for provider.name.
var recognizedProviders = map[string]bool{
	"openai":    true,
	"ollama":    true,
	"anthropic": true,
}

// Validate checks the configuration for correctness and completeness.
// It performs structural validation, semantic validation, and unknown key detection.
//
// Parameters:
//   - cfg: the configuration to validate
//   - meta: TOML metadata from BurntSushi/toml (may be nil if no file was loaded)
//
// Returns validation results. Check HasErrors() to determine if the config is usable.
func Validate(cfg *Config, meta *toml.MetaData) *ValidationResult {
	vr := &ValidationResult{}

	if cfg == nil {
		addError(vr, "", "configuration is nil")
		return vr
	}

	validateDaemon(vr, &cfg.Daemon)
	validatePaths(vr, &cfg.Paths)
	validateProvider(vr, &cfg.Provider)
	validateContext(vr, &cfg.Context)
	validateAgent(vr, &cfg.Agent)
	validateUnknownKeys(vr, meta)

	return vr
}

// validateDaemon checks the [daemon] section.
func validateDaemon(vr *ValidationResult, d *DaemonConfig) {
	// Error: port must fit in the TCP range.
	if d.Port < 0 || d.Port > 65535 {
		addError(vr, "daemon.port",
			fmt.Sprintf("port %d out of range; must be between 0 and 65535", d.Port))
	}

	// TCP mode needs a usable address.
	if d.Socket == "" {
		if d.Host == "" {
			addError(vr, "daemon.host", "must not be empty when daemon.socket is unset")
		}
		if d.Port == 0 {
			addError(vr, "daemon.port", "must be set when daemon.socket is unset")
		}
	}
}

// validatePaths checks the [paths] section.
func validatePaths(vr *ValidationResult, p *PathsConfig) {
	// Error: the daemon cannot run without these directories configured.
	if p.Workspace == "" {
		addError(vr, "paths.workspace", "must not be empty")
	}
	if p.Storage == "" {
		addError(vr, "paths.storage", "must not be empty")
	}

	// Warning: workflows dir does not exist. Workspace and storage are
	// created on startup; the workflows dir is authored by the user.
	if p.Workflows != "" {
		if _, err := os.Stat(p.Workflows); err != nil {
			addWarning(vr, "paths.workflows",
				fmt.Sprintf("directory %q does not exist; no workflows will be registered", p.Workflows))
		}
	}
}

// validateProvider checks the [provider] section.
func validateProvider(vr *ValidationResult, p *ProviderConfig) {
	// Error: provider.name must be recognized.
	if !recognizedProviders[p.Name] {
		addError(vr, "provider.name",
			fmt.Sprintf("unrecognized provider %q; must be one of: openai, ollama, anthropic", p.Name))
	}

	// Error: provider.model must not be empty.
	if p.Model == "" {
		addError(vr, "provider.model", "must not be empty")
	}

	// Error: base_url must be an http(s) URL when set.
	if p.BaseURL != "" {
		u, err := url.Parse(p.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			addError(vr, "provider.base_url",
				fmt.Sprintf("invalid URL %q; must be an http or https URL", p.BaseURL))
		}
	}

	// Error: durations and counts must not be negative.
	if p.TimeoutSeconds < 0 {
		addError(vr, "provider.timeout_seconds", "must not be negative")
	}
	if p.MaxAttempts < 0 {
		addError(vr, "provider.max_attempts", "must not be negative")
	}
}

// validateContext checks the [context] section.
func validateContext(vr *ValidationResult, c *ContextConfig) {
	if c.Limit < 0 {
		addError(vr, "context.limit", "must not be negative")
	}
	if c.OutputReserve < 0 {
		addError(vr, "context.output_reserve", "must not be negative")
	}
	if c.Limit > 0 && c.OutputReserve >= c.Limit {
		addError(vr, "context.output_reserve",
			fmt.Sprintf("reserve %d leaves no room for input within limit %d", c.OutputReserve, c.Limit))
	}
	if c.CharsPerToken < 0 {
		addError(vr, "context.chars_per_token", "must not be negative")
	}
	if c.SafetyMargin < 0 {
		addError(vr, "context.safety_margin", "must not be negative")
	}

	// Warning: margins below 1.0 under-count tokens and risk overflowing
	// the provider's window.
	if c.SafetyMargin > 0 && c.SafetyMargin < 1 {
		addWarning(vr, "context.safety_margin",
			fmt.Sprintf("margin %.2f under-counts token estimates", c.SafetyMargin))
	}
}

// validateAgent checks the [agent] section.
func validateAgent(vr *ValidationResult, a *AgentConfig) {
	if a.MaxToolRounds < 0 {
		addError(vr, "agent.max_tool_rounds", "must not be negative")
	}
	if a.MaxContinuations < 0 {
		addError(vr, "agent.max_continuations", "must not be negative")
	}
	if a.MaxSkillChars < 0 {
		addError(vr, "agent.max_skill_chars", "must not be negative")
	}
	if a.MaxToolResultChars < 0 {
		addError(vr, "agent.max_tool_result_chars", "must not be negative")
	}

	// Error: chat_tools entries must not be empty strings.
	for i, name := range a.ChatTools {
		if name == "" {
			addError(vr, fmt.Sprintf("agent.chat_tools[%d]", i),
				"must not be an empty string")
		}
	}
}

// validateUnknownKeys checks for TOML keys that did not map to any config struct field.
func validateUnknownKeys(vr *ValidationResult, meta *toml.MetaData) {
	if meta == nil {
		return
	}

	for _, key := range meta.Undecoded() {
		path := strings.Join(key, ".")
		addWarning(vr, path, "unknown configuration key")
	}
}

// addError appends an error-severity issue to the validation result.
func addError(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{
		Severity: SeverityError,
		Field:    field,
		Message:  message,
	})
}

// addWarning appends a warning-severity issue to the validation result.
func addWarning(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{
		Severity: SeverityWarning,
		Field:    field,
		Message:  message,
	})
}
