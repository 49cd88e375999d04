package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferretbot/ferretbot/internal/config"
)

// resetInitFlags resets initCmd's flag state on top of the root reset.
func resetInitFlags(t *testing.T) {
	t.Helper()
	resetRootCmd(t)
	initFlagProvider = ""
	initFlagModel = ""
	initFlagBaseURL = ""
	initFlagWorkspace = ""
	initFlagForce = false
	initFlagNoInput = false
	initCmd.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
}

// ---- registration -----------------------------------------------------------

func TestInitCmd_RegisteredInRoot(t *testing.T) {
	found := false
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == "init" {
			found = true
			break
		}
	}
	assert.True(t, found, "init command must be registered in rootCmd")
}

func TestInitCmd_Metadata(t *testing.T) {
	assert.Equal(t, "init", initCmd.Use)
	assert.Equal(t, "Set up FerretBot in the current directory", initCmd.Short)
	assert.Contains(t, initCmd.Long, "--force")
	assert.Contains(t, initCmd.Long, "wizard")
}

func TestInitCmd_Flags(t *testing.T) {
	for _, name := range []string{"provider", "model", "base-url", "workspace", "force", "no-input"} {
		assert.NotNil(t, initCmd.Flags().Lookup(name), "init should define --%s", name)
	}
	assert.Equal(t, "false", initCmd.Flags().Lookup("force").DefValue)
	assert.Equal(t, "false", initCmd.Flags().Lookup("no-input").DefValue)
}

// ---- defaults ---------------------------------------------------------------

func TestApplyInitDefaults_AllEmpty(t *testing.T) {
	vars := config.ScaffoldVars{}
	applyInitDefaults(&vars)

	assert.Equal(t, "ollama", vars.Provider)
	assert.Equal(t, "qwen2.5-coder", vars.Model)
	assert.Equal(t, "workspace", vars.Workspace)
	assert.Empty(t, vars.BaseURL, "base URL has no default")
}

func TestApplyInitDefaults_ModelFollowsProvider(t *testing.T) {
	tests := []struct {
		provider  string
		wantModel string
	}{
		{"ollama", "qwen2.5-coder"},
		{"openai", "gpt-4.1-mini"},
		{"anthropic", "claude-sonnet-4-5"},
	}
	for _, tt := range tests {
		vars := config.ScaffoldVars{Provider: tt.provider}
		applyInitDefaults(&vars)
		assert.Equal(t, tt.wantModel, vars.Model, "provider %s", tt.provider)
	}
}

func TestApplyInitDefaults_ExplicitValuesPreserved(t *testing.T) {
	vars := config.ScaffoldVars{
		Provider:  "openai",
		Model:     "o3-mini",
		Workspace: "sandbox",
	}
	applyInitDefaults(&vars)

	assert.Equal(t, "openai", vars.Provider)
	assert.Equal(t, "o3-mini", vars.Model, "explicit model must not be replaced")
	assert.Equal(t, "sandbox", vars.Workspace)
}

func TestDefaultModels_CoverRecognizedProviders(t *testing.T) {
	for _, provider := range []string{"ollama", "openai", "anthropic"} {
		assert.NotEmpty(t, defaultModels[provider], "provider %s needs a default model", provider)
	}
}

func TestRequireNonEmpty(t *testing.T) {
	validate := requireNonEmpty("model")

	assert.NoError(t, validate("llama3.2"))

	err := validate("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model")
}

// ---- scaffolding ------------------------------------------------------------

func TestInitCmd_NoInput_ScaffoldsProject(t *testing.T) {
	resetInitFlags(t)
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	_, stderr, code := captureOutput(t, "init", "--no-input")

	require.Equal(t, 0, code, "init --no-input should succeed, stderr: %s", stderr)

	require.FileExists(t, filepath.Join(tmpDir, "ferretbot.toml"))
	require.FileExists(t, filepath.Join(tmpDir, "workflows", "hello", "workflow.yaml"))
	require.FileExists(t, filepath.Join(tmpDir, "workflows", "hello", "skills", "greeting.md"))

	data, err := os.ReadFile(filepath.Join(tmpDir, "ferretbot.toml"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, `name = "ollama"`)
	assert.Contains(t, content, `model = "qwen2.5-coder"`)
	assert.Contains(t, content, `workspace = "workspace"`)
	assert.Contains(t, content, "# base_url", "unset endpoint stays a commented hint")

	assert.Contains(t, stderr, "Initialized FerretBot")
	assert.Contains(t, stderr, "Created files:")
	assert.Contains(t, stderr, "ferretbot.toml")
	assert.Contains(t, stderr, "Next steps:")
}

func TestInitCmd_FlagsSkipTheWizard(t *testing.T) {
	resetInitFlags(t)
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	// Any pinned answer disables the wizard; the model follows the provider.
	_, stderr, code := captureOutput(t, "init", "--provider", "openai")

	require.Equal(t, 0, code, "stderr: %s", stderr)

	data, err := os.ReadFile(filepath.Join(tmpDir, "ferretbot.toml"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, `name = "openai"`)
	assert.Contains(t, content, `model = "gpt-4.1-mini"`)
}

func TestInitCmd_BaseURLFlag(t *testing.T) {
	resetInitFlags(t)
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	_, stderr, code := captureOutput(t, "init", "--no-input",
		"--base-url", "http://localhost:8080/v1")

	require.Equal(t, 0, code, "stderr: %s", stderr)

	data, err := os.ReadFile(filepath.Join(tmpDir, "ferretbot.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `base_url = "http://localhost:8080/v1"`)
}

func TestInitCmd_ScaffoldedConfigValidates(t *testing.T) {
	resetInitFlags(t)
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	_, stderr, code := captureOutput(t, "init", "--no-input")
	require.Equal(t, 0, code, "stderr: %s", stderr)

	rc, meta, err := config.Load(tmpDir, func(string) (string, bool) { return "", false }, &config.CLIOverrides{})
	require.NoError(t, err)

	result := config.Validate(rc.Config, meta)
	assert.False(t, result.HasErrors(), "scaffolded config must validate cleanly: %+v", result.Issues)
	assert.False(t, result.HasWarnings(), "scaffold includes the workflows dir: %+v", result.Issues)
}

func TestInitCmd_ExistingConfigRefusesWithoutForce(t *testing.T) {
	resetInitFlags(t)
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ferretbot.toml"), []byte("# mine\n"), 0o644))

	_, stderr, code := captureOutput(t, "init", "--no-input")

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "already exists")
	assert.Contains(t, stderr, "--force")

	// The existing file is untouched.
	data, err := os.ReadFile(filepath.Join(tmpDir, "ferretbot.toml"))
	require.NoError(t, err)
	assert.Equal(t, "# mine\n", string(data))
}

func TestInitCmd_ForceOverwrites(t *testing.T) {
	resetInitFlags(t)
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ferretbot.toml"), []byte("# stale\n"), 0o644))

	_, stderr, code := captureOutput(t, "init", "--no-input", "--force")

	require.Equal(t, 0, code, "stderr: %s", stderr)

	data, err := os.ReadFile(filepath.Join(tmpDir, "ferretbot.toml"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "# stale")
	assert.Contains(t, string(data), "[provider]")
}

func TestInitCmd_RejectsArgs(t *testing.T) {
	resetInitFlags(t)

	_, _, code := captureOutput(t, "init", "extra")
	assert.Equal(t, 1, code)
}
