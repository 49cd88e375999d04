package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `id: release-notes
version: 1.0.0
name: Release Notes
steps:
  - id: draft
    instruction: Draft the release notes from the changelog
    tools: [fs_read, fs_write]
  - id: save
    type: system_write_file
    dependsOn: [draft]
    path: notes/release.md
    content: "released"
`

// writeWorkflow writes content as dir/workflow.yaml, creating dir first.
func writeWorkflow(t *testing.T, dir, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// ---------------------------------------------------------------------------
// Parse
// ---------------------------------------------------------------------------

func TestParse_Valid(t *testing.T) {
	t.Parallel()

	def, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, "release-notes", def.ID)
	assert.Equal(t, "1.0.0", def.Version)
	require.Len(t, def.Steps, 2)
	assert.Equal(t, []string{"draft"}, def.Steps[1].DependsOn)
	assert.Equal(t, StepWriteFile, def.Steps[1].Type)
}

func TestParse_UnknownTopLevelField(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("id: x\nversion: '1'\nstepz: []\n"))
	require.Error(t, err, "unknown keys must fail loudly instead of being dropped")
}

func TestParse_UnknownStepField(t *testing.T) {
	t.Parallel()

	src := `id: x
version: "1"
steps:
  - id: a
    instruction: work
    tools: [bash]
    retrys: 3
`
	_, err := Parse([]byte(src))
	require.Error(t, err, "a typoed step key must not silently lose the setting")
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("id: [unclosed"))
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// LoadFile
// ---------------------------------------------------------------------------

func TestLoadFile_SetsDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "release-notes")
	path := writeWorkflow(t, dir, validYAML)

	def, err := LoadFile(path)
	require.NoError(t, err)

	wantDir, err := filepath.Abs(dir)
	require.NoError(t, err)
	assert.Equal(t, wantDir, def.Dir)
}

func TestLoadFile_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join(t.TempDir(), "nope", FileName))
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// LoadDir
// ---------------------------------------------------------------------------

func TestLoadDir_DiscoversNested(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	writeWorkflow(t, filepath.Join(base, "release-notes"), validYAML)

	nested := `id: triage
version: 2.0.0
steps:
  - id: scan
    instruction: Scan open issues
    tools: [bash]
`
	writeWorkflow(t, filepath.Join(base, "team", "triage"), nested)

	r := NewRegistry(nil)
	loaded, err := r.LoadDir(base)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.True(t, r.Has("release-notes"))
	assert.True(t, r.Has("triage"))
}

func TestLoadDir_FindsFileAtRoot(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	writeWorkflow(t, base, validYAML)

	r := NewRegistry(nil)
	loaded, err := r.LoadDir(base)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
}

func TestLoadDir_BadFileDoesNotAbortSweep(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	writeWorkflow(t, filepath.Join(base, "good"), validYAML)
	writeWorkflow(t, filepath.Join(base, "broken"), "id: [unclosed")

	r := NewRegistry(nil)
	loaded, err := r.LoadDir(base)
	require.Error(t, err, "the broken file must be reported")
	assert.Equal(t, 1, loaded, "the good file must still register")
	assert.True(t, r.Has("release-notes"))
}

func TestLoadDir_DuplicateReportedOnSecondSweep(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	writeWorkflow(t, filepath.Join(base, "release-notes"), validYAML)

	r := NewRegistry(nil)
	loaded, err := r.LoadDir(base)
	require.NoError(t, err)
	require.Equal(t, 1, loaded)

	loaded, err = r.LoadDir(base)
	assert.Equal(t, 0, loaded)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestLoadDir_EmptyTree(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	loaded, err := r.LoadDir(t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, loaded)
}

func TestLoadDir_IgnoresOtherYAMLFiles(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "config.yaml"), []byte("not: a workflow"), 0o644))

	r := NewRegistry(nil)
	loaded, err := r.LoadDir(base)
	require.NoError(t, err)
	assert.Zero(t, loaded)
}
