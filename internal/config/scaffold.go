package config

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/charmbracelet/log"
)

//go:embed all:scaffold
var scaffoldFS embed.FS

// scaffoldRoot is the top-level directory in the embedded FS that holds the
// project scaffold written by "ferretbot init".
const scaffoldRoot = "scaffold"

// ScaffoldVars holds variables available for text/template substitution when
// rendering .tmpl files. Non-template files are copied as-is.
type ScaffoldVars struct {
	// Provider is the chat backend name (e.g., "ollama").
	Provider string
	// Model is the model identifier passed to the provider.
	Model string
	// BaseURL overrides the provider's default endpoint; may be empty.
	BaseURL string
	// Workspace is the directory the agent's file tools are scoped to.
	Workspace string
}

// Scaffold writes the embedded project scaffold into destDir: a ferretbot.toml
// rendered from vars plus a starter workflow. Files whose names end in ".tmpl"
// are processed with text/template; all other files are copied byte-for-byte,
// with the ".tmpl" extension stripped from the output filename. When force is
// false, existing files in destDir are silently skipped. When force is true,
// existing files are overwritten.
//
// Returns the list of file paths created.
func Scaffold(destDir string, vars ScaffoldVars, force bool) ([]string, error) {
	var created []string

	walkErr := fs.WalkDir(scaffoldFS, scaffoldRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walking scaffold %s: %w", path, err)
		}

		// Skip directories -- they are created implicitly when writing files.
		if d.IsDir() {
			return nil
		}

		// Compute the path relative to the scaffold root.
		relPath, err := filepath.Rel(scaffoldRoot, filepath.FromSlash(path))
		if err != nil {
			return fmt.Errorf("computing relative path for %s: %w", path, err)
		}

		// Determine the destination filename (strip .tmpl extension if present).
		destRel := relPath
		isTmpl := strings.HasSuffix(relPath, ".tmpl")
		if isTmpl {
			destRel = strings.TrimSuffix(relPath, ".tmpl")
		}

		destFile := filepath.Join(destDir, destRel)

		// Skip existing files unless force is set.
		if _, statErr := os.Stat(destFile); statErr == nil {
			if !force {
				log.Debug("skipping existing file", "path", destFile)
				return nil
			}
			log.Debug("overwriting existing file", "path", destFile)
		}

		// Ensure the parent directory exists.
		if mkdirErr := os.MkdirAll(filepath.Dir(destFile), 0o755); mkdirErr != nil {
			return fmt.Errorf("creating directory for %s: %w", destFile, mkdirErr)
		}

		// Read the source file from the embedded FS.
		// Use forward-slash paths for embed.FS (it always uses /).
		embedPath := filepath.ToSlash(path)
		content, readErr := scaffoldFS.ReadFile(embedPath)
		if readErr != nil {
			return fmt.Errorf("reading embedded file %s: %w", embedPath, readErr)
		}

		// Process .tmpl files with text/template; copy others as-is.
		var output []byte
		if isTmpl {
			tmpl, parseErr := template.New(d.Name()).Parse(string(content))
			if parseErr != nil {
				return fmt.Errorf("parsing template %s: %w", embedPath, parseErr)
			}
			var buf bytes.Buffer
			if execErr := tmpl.Execute(&buf, vars); execErr != nil {
				return fmt.Errorf("executing template %s: %w", embedPath, execErr)
			}
			output = buf.Bytes()
		} else {
			output = content
		}

		// Write the file.
		if writeErr := os.WriteFile(destFile, output, 0o600); writeErr != nil {
			return fmt.Errorf("writing file %s: %w", destFile, writeErr)
		}

		log.Debug("created scaffold file", "path", destFile)
		created = append(created, destFile)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return created, nil
}
