package e2e_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// releaseWorkflow is a three-step workflow of system steps only: it needs no
// model provider, so it exercises the full daemon round trip deterministically.
const releaseWorkflow = `id: release-note
version: 1.0.0
name: Release note
description: Draft a note, publish it, then remove the draft.

inputs:
  - name: version
    type: string
    required: true

steps:
  - id: draft
    type: system_write_file
    path: notes/draft.md
    content: "Draft for {{ args.version }}\n"

  - id: publish
    type: system_write_file
    path: notes/release.md
    content: "Release {{ args.version }} is out.\n"
    dependsOn: [draft]

  - id: cleanup
    type: system_delete_file
    path: notes/draft.md
    dependsOn: [publish]
`

func TestWorkflowRunCompletesSystemSteps(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	tp.writeConfig(minimalConfig())
	tp.writeWorkflow("release-note", releaseWorkflow)
	tp.startDaemon()

	out := tp.runExpectSuccess("workflow", "run", "release-note", "--arg", "version=1.2.3")
	assert.Contains(t, out, "run 1 queued (release-note)")

	tp.waitForRunState(1, "completed")

	// The published note exists with the rendered template...
	note, err := os.ReadFile(tp.workspacePath("notes/release.md"))
	require.NoError(t, err, "release note must exist in the workspace")
	assert.Equal(t, "Release 1.2.3 is out.\n", string(note))

	// ...the draft was deleted again...
	_, statErr := os.Stat(tp.workspacePath("notes/draft.md"))
	assert.True(t, os.IsNotExist(statErr), "draft must be deleted by the cleanup step")

	// ...and the run record was persisted.
	_, statErr = os.Stat(filepath.Join(tp.Dir, ".ferretbot", "runs", "run-1.json"))
	assert.NoError(t, statErr, "run record must be persisted")
}

func TestWorkflowRunUnknownWorkflowFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	tp.writeConfig(minimalConfig())
	tp.startDaemon()

	out, exitCode := tp.runExpectFailure("workflow", "run", "does-not-exist")
	assert.NotEqual(t, 0, exitCode)
	assert.Contains(t, out, "not_found")
}

func TestWorkflowRunMissingRequiredArgFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	tp.writeConfig(minimalConfig())
	tp.writeWorkflow("release-note", releaseWorkflow)
	tp.startDaemon()

	// "version" is required and has no default.
	out, exitCode := tp.runExpectFailure("workflow", "run", "release-note")
	assert.NotEqual(t, 0, exitCode)
	assert.Contains(t, out, "validation_error")
}

func TestWorkflowListShowsCompletedRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	tp.writeConfig(minimalConfig())
	tp.writeWorkflow("release-note", releaseWorkflow)
	tp.startDaemon()

	tp.runExpectSuccess("workflow", "run", "release-note", "--arg", "version=2.0.0")
	tp.waitForRunState(1, "completed")

	out := tp.runExpectSuccess("workflow", "list")
	assert.Contains(t, out, "release-note")
	assert.Contains(t, out, "1.0.0")
	assert.Contains(t, out, "completed")
}
