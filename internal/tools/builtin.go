package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ferretbot/ferretbot/internal/workspace"
)

const (
	// DefaultBashTimeout bounds run_bash when the call does not pass
	// timeout_seconds.
	DefaultBashTimeout = 60 * time.Second

	// maxBashTimeout caps caller-supplied timeouts.
	maxBashTimeout = 10 * time.Minute

	// maxToolOutput bounds captured output so one verbose command cannot
	// flood the model's context window.
	maxToolOutput = 64 * 1024
)

// Builtin returns a registry holding the standard tool set bound to ws:
// read_file, write_file, list_dir, and run_bash.
func Builtin(ws *workspace.Workspace) (*Registry, error) {
	r := NewRegistry()
	for _, t := range []Tool{
		NewReadFile(ws),
		NewWriteFile(ws),
		NewListDir(ws),
		NewRunBash(ws, 0),
	} {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ReadFile returns workspace file contents.
type ReadFile struct {
	ws *workspace.Workspace
}

// NewReadFile creates the read_file tool bound to ws.
func NewReadFile(ws *workspace.Workspace) *ReadFile {
	return &ReadFile{ws: ws}
}

func (t *ReadFile) Definition() Definition {
	return Definition{
		Name:        "read_file",
		Description: "Read a text file from the workspace and return its contents.",
		Schema: objectSchema(map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Workspace-relative file path.",
			},
		}, "path"),
	}
}

func (t *ReadFile) Execute(_ context.Context, args map[string]any) (*Execution, error) {
	data, err := t.ws.Read(stringArg(args, "path"))
	if err != nil {
		return nil, err
	}
	return &Execution{Output: clipOutput(string(data))}, nil
}

// WriteFile stores text in the workspace.
type WriteFile struct {
	ws *workspace.Workspace
}

// NewWriteFile creates the write_file tool bound to ws.
func NewWriteFile(ws *workspace.Workspace) *WriteFile {
	return &WriteFile{ws: ws}
}

func (t *WriteFile) Definition() Definition {
	return Definition{
		Name:        "write_file",
		Description: "Write a text file into the workspace, creating parent directories as needed.",
		Schema: objectSchema(map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Workspace-relative file path.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Full file contents to write.",
			},
		}, "path", "content"),
	}
}

func (t *WriteFile) Execute(_ context.Context, args map[string]any) (*Execution, error) {
	path := stringArg(args, "path")
	content := stringArg(args, "content")
	if err := t.ws.Write(path, []byte(content), 0); err != nil {
		return nil, err
	}
	return &Execution{
		Output:    fmt.Sprintf("wrote %s (%d bytes)", path, len(content)),
		Artifacts: []string{path},
	}, nil
}

// ListDir lists a workspace directory.
type ListDir struct {
	ws *workspace.Workspace
}

// NewListDir creates the list_dir tool bound to ws.
func NewListDir(ws *workspace.Workspace) *ListDir {
	return &ListDir{ws: ws}
}

func (t *ListDir) Definition() Definition {
	return Definition{
		Name:        "list_dir",
		Description: "List a workspace directory. Directories carry a trailing slash. Omit path for the workspace root.",
		Schema: objectSchema(map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Workspace-relative directory path.",
			},
		}),
	}
}

func (t *ListDir) Execute(_ context.Context, args map[string]any) (*Execution, error) {
	rel := stringArg(args, "path")
	full := t.ws.Root()
	if rel != "" && rel != "." {
		resolved, err := t.ws.Resolve(rel)
		if err != nil {
			return nil, err
		}
		full = resolved
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("listing directory: %w", err)
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Name())
		if e.IsDir() {
			b.WriteString("/")
		}
		b.WriteString("\n")
	}
	return &Execution{Output: clipOutput(b.String())}, nil
}

// RunBash executes shell commands in the workspace root. The command's
// exit code comes back as the Execution's ExitCode, so a nonzero exit is
// a result for the model and its checks to judge, not a tool fault.
type RunBash struct {
	ws      *workspace.Workspace
	timeout time.Duration
}

// NewRunBash creates the run_bash tool bound to ws. A non-positive
// timeout selects DefaultBashTimeout.
func NewRunBash(ws *workspace.Workspace, timeout time.Duration) *RunBash {
	if timeout <= 0 {
		timeout = DefaultBashTimeout
	}
	return &RunBash{ws: ws, timeout: timeout}
}

func (t *RunBash) Definition() Definition {
	return Definition{
		Name:        "run_bash",
		Description: "Run a bash command in the workspace directory and return its combined output and exit code.",
		Schema: objectSchema(map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Command line passed to bash -c.",
			},
			"timeout_seconds": map[string]any{
				"type":        "number",
				"description": "Optional timeout override in seconds.",
			},
		}, "command"),
	}
}

func (t *RunBash) Execute(ctx context.Context, args map[string]any) (*Execution, error) {
	timeout := t.timeout
	if secs, ok := numberArg(args, "timeout_seconds"); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
		if timeout > maxBashTimeout {
			timeout = maxBashTimeout
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", stringArg(args, "command"))
	cmd.Dir = t.ws.Root()
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	setProcGroup(cmd)

	runErr := cmd.Run()
	output := clipOutput(buf.String())

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// The process could not be started at all.
			return nil, runErr
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			note := fmt.Sprintf("command timed out after %s", timeout)
			if output == "" {
				output = note
			} else {
				output = strings.TrimRight(output, "\n") + "\n" + note
			}
		}
		return &Execution{Output: output, ExitCode: exitErr.ExitCode()}, nil
	}
	return &Execution{Output: output, ExitCode: 0}, nil
}

// objectSchema builds the strict object schema the builtins share.
func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func numberArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// clipOutput bounds output fed back to the model.
func clipOutput(s string) string {
	if len(s) <= maxToolOutput {
		return s
	}
	return s[:maxToolOutput] + "\n[output truncated]"
}
