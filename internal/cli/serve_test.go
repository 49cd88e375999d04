package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferretbot/ferretbot/internal/config"
)

func TestServeCmd_RegisteredInRoot(t *testing.T) {
	found := false
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == "serve" {
			found = true
			break
		}
	}
	assert.True(t, found, "serve command must be registered in rootCmd")
}

func TestServeCmd_Metadata(t *testing.T) {
	assert.Equal(t, "serve", serveCmd.Use)
	assert.Contains(t, serveCmd.Long, "daemon")
	assert.Contains(t, serveCmd.Long, "SIGTERM")
}

func TestServeCmd_InvalidConfigRefusesToStart(t *testing.T) {
	resetRootCmd(t)

	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, config.ConfigFileName)
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
[provider]
name = "bedrock"
`), 0o644))

	stdout, _, code := captureOutput(t, "--config", cfgPath, "serve")

	assert.Equal(t, 1, code, "validation errors must block serve")
	assert.Contains(t, stdout, "provider.name", "the failing field should be reported")
}

func TestServeCmd_MissingExplicitConfigErrors(t *testing.T) {
	resetRootCmd(t)

	_, stderr, code := captureOutput(t, "--config", filepath.Join(t.TempDir(), "nope.toml"), "serve")

	assert.Equal(t, 1, code)
	assert.NotEmpty(t, stderr)
}

func TestServeCmd_RejectsExtraArgs(t *testing.T) {
	resetRootCmd(t)

	_, _, code := captureOutput(t, "serve", "unexpected")
	assert.Equal(t, 1, code)
}
