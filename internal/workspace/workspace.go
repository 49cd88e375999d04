// Package workspace performs file operations confined to a single root
// directory. The engine's system steps, the file tools, and the success
// checks all go through a Workspace so that a workflow can never touch
// paths outside the directory the daemon was pointed at.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultFileMode is used for files written without an explicit mode.
const DefaultFileMode fs.FileMode = 0o644

// ErrEscapesRoot is returned for paths that are absolute or would resolve
// outside the workspace root.
var ErrEscapesRoot = errors.New("workspace: path escapes root")

// Workspace is a rooted view of a directory tree. All paths passed to its
// methods are relative to the root; absolute paths and upward traversal are
// rejected. The zero value is not usable; use New.
type Workspace struct {
	root string
}

// New creates a Workspace rooted at dir, creating the directory if needed.
// The stored root is absolute so later resolution is independent of the
// process working directory.
func New(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolving root %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: creating root %q: %w", abs, err)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps a workspace-relative path to an absolute one, rejecting
// anything that would land outside the root.
func (w *Workspace) Resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrEscapesRoot)
	}
	if filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, rel)
	}
	return filepath.Join(w.root, rel), nil
}

// Exists reports whether rel resolves to an existing file or directory.
func (w *Workspace) Exists(rel string) bool {
	full, err := w.Resolve(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}

// Read returns the contents of the file at rel.
func (w *Workspace) Read(rel string) ([]byte, error) {
	full, err := w.Resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("workspace: reading %s: %w", rel, err)
	}
	return data, nil
}

// Write stores data at rel, creating parent directories as needed. The
// write goes to a temporary file in the destination directory first and is
// renamed into place, so readers never observe a half-written file. A zero
// mode means DefaultFileMode.
func (w *Workspace) Write(rel string, data []byte, mode fs.FileMode) error {
	full, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	if mode == 0 {
		mode = DefaultFileMode
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("workspace: creating directory %q: %w", dir, err)
	}

	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return fmt.Errorf("workspace: writing temp file for %s: %w", rel, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("workspace: renaming temp file to %s: %w", rel, err)
	}
	return nil
}

// Ensure writes data at rel only when the path does not exist yet. It
// reports whether a write happened.
func (w *Workspace) Ensure(rel string, data []byte, mode fs.FileMode) (bool, error) {
	full, err := w.Resolve(rel)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("workspace: checking %s: %w", rel, err)
	}
	if err := w.Write(rel, data, mode); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the file at rel. Deleting a path that is already absent
// is not an error; the boolean reports whether anything was removed.
func (w *Workspace) Delete(rel string) (bool, error) {
	full, err := w.Resolve(rel)
	if err != nil {
		return false, err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("workspace: deleting %s: %w", rel, err)
	}
	return true, nil
}
