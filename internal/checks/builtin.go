package checks

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ferretbot/ferretbot/internal/workflow"
)

// Built-in check type names. These are the strings workflow authors write
// in doneWhen lists.
const (
	// TypeContains passes when the step's result text contains Text.
	TypeContains = "contains"

	// TypeNotContains passes when the result text does not contain Text.
	TypeNotContains = "not_contains"

	// TypeRegex passes when Pattern matches the result text. An invalid
	// pattern fails the check rather than erroring.
	TypeRegex = "regex"

	// TypeExitCode passes when the last tool execution exited with the
	// Expected code (0 when unset).
	TypeExitCode = "exit_code"

	// TypeCommandExitCode is an alias of TypeExitCode kept for workflow
	// files written against the older name.
	TypeCommandExitCode = "command_exit_code"

	// TypeFileExists passes when Path exists under the workspace.
	TypeFileExists = "file_exists"

	// TypeFileNotExists passes when Path does not exist.
	TypeFileNotExists = "file_not_exists"

	// TypeFileContains passes when the file at Path contains Text.
	TypeFileContains = "file_contains"

	// TypeFileRegex passes when Pattern matches the file at Path.
	TypeFileRegex = "file_regex"

	// TypeFileHashChanged passes when the SHA-256 of the file at Path
	// differs from PreviousHash.
	TypeFileHashChanged = "file_hash_changed"

	// TypeNonEmpty passes when the result text is not blank.
	TypeNonEmpty = "non_empty"
)

// fail builds a failing Result with a formatted detail.
func fail(format string, args ...any) Result {
	return Result{Passed: false, Detail: fmt.Sprintf(format, args...)}
}

// pass builds a passing Result with a formatted detail.
func pass(format string, args ...any) Result {
	return Result{Passed: true, Detail: fmt.Sprintf(format, args...)}
}

// resolvePath joins a workspace-relative check path against the workspace
// root, rejecting paths that would escape it.
func resolvePath(in *Input, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("check has no path")
	}
	if filepath.IsAbs(path) || !filepath.IsLocal(path) {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	return filepath.Join(in.Dir, path), nil
}

func checkContains(c *workflow.Check, in *Input) Result {
	if strings.Contains(in.Text, c.Text) {
		return pass("output contains %q", c.Text)
	}
	return fail("output does not contain %q", c.Text)
}

func checkNotContains(c *workflow.Check, in *Input) Result {
	if strings.Contains(in.Text, c.Text) {
		return fail("output contains forbidden %q", c.Text)
	}
	return pass("output omits %q", c.Text)
}

func checkRegex(c *workflow.Check, in *Input) Result {
	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		return fail("invalid pattern %q: %v", c.Pattern, err)
	}
	if re.MatchString(in.Text) {
		return pass("output matches /%s/", c.Pattern)
	}
	return fail("output does not match /%s/", c.Pattern)
}

func checkExitCode(c *workflow.Check, in *Input) Result {
	want := 0
	if c.Expected != nil {
		want = *c.Expected
	}
	got, ok := in.LastExitCode()
	if !ok {
		return fail("no tool executions to inspect")
	}
	if got == want {
		return pass("last exit code is %d", got)
	}
	return fail("last exit code is %d, want %d", got, want)
}

func checkFileExists(c *workflow.Check, in *Input) Result {
	full, err := resolvePath(in, c.Path)
	if err != nil {
		return fail("%v", err)
	}
	if _, err := os.Stat(full); err != nil {
		return fail("%s does not exist", c.Path)
	}
	return pass("%s exists", c.Path)
}

func checkFileNotExists(c *workflow.Check, in *Input) Result {
	full, err := resolvePath(in, c.Path)
	if err != nil {
		return fail("%v", err)
	}
	if _, err := os.Stat(full); err == nil {
		return fail("%s still exists", c.Path)
	}
	return pass("%s is absent", c.Path)
}

func checkFileContains(c *workflow.Check, in *Input) Result {
	data, res := readCheckFile(in, c.Path)
	if data == nil {
		return res
	}
	if strings.Contains(string(data), c.Text) {
		return pass("%s contains %q", c.Path, c.Text)
	}
	return fail("%s does not contain %q", c.Path, c.Text)
}

func checkFileRegex(c *workflow.Check, in *Input) Result {
	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		return fail("invalid pattern %q: %v", c.Pattern, err)
	}
	data, res := readCheckFile(in, c.Path)
	if data == nil {
		return res
	}
	if re.Match(data) {
		return pass("%s matches /%s/", c.Path, c.Pattern)
	}
	return fail("%s does not match /%s/", c.Path, c.Pattern)
}

func checkFileHashChanged(c *workflow.Check, in *Input) Result {
	data, res := readCheckFile(in, c.Path)
	if data == nil {
		return res
	}
	sum := sha256.Sum256(data)
	current := hex.EncodeToString(sum[:])
	if strings.EqualFold(current, c.PreviousHash) {
		return fail("%s is unchanged (sha256 %s)", c.Path, current[:12])
	}
	return pass("%s changed", c.Path)
}

func checkNonEmpty(_ *workflow.Check, in *Input) Result {
	if strings.TrimSpace(in.Text) == "" {
		return fail("output is empty")
	}
	return pass("output is non-empty")
}

// readCheckFile resolves and reads a check path. On failure the returned
// data is nil and the Result carries the failing detail.
func readCheckFile(in *Input, path string) ([]byte, Result) {
	full, err := resolvePath(in, path)
	if err != nil {
		return nil, fail("%v", err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fail("cannot read %s: %v", path, err)
	}
	return data, Result{}
}
