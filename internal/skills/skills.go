// Package skills loads SKILL.md guidance files referenced by workflow
// steps. A step's loadSkills list names skills under the workflow's
// skills directory; each name resolves to skills/<name>/SKILL.md or, when
// that is absent, skills/<name>.md.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/ferretbot/ferretbot/internal/logging"
)

// Entry is one loaded skill.
type Entry struct {
	Name    string
	Path    string
	Content string
}

// Result collects what a step's loadSkills list produced. Missing holds
// names that resolved to no file, in request order.
type Result struct {
	Entries []Entry
	Missing []string
	Text    string
}

// Request names the skills to load for one step.
type Request struct {
	WorkflowDir string
	Names       []string

	// MaxChars clamps each skill's content in runes. Zero or negative
	// means no clamp; the prompt assembler still applies its token
	// budget later.
	MaxChars int
}

// Loader resolves skill files for steps. logger may be nil.
type Loader struct {
	log *log.Logger
}

// New creates a Loader. logger may be nil, in which case a component
// logger is used.
func New(logger *log.Logger) *Loader {
	if logger == nil {
		logger = logging.New("skills")
	}
	return &Loader{log: logger}
}

// LoadForStep resolves every skill the request names. Duplicate names
// load once. Missing skills are reported in Result.Missing rather than
// failing the step; only I/O errors on files that exist are returned.
func (l *Loader) LoadForStep(req Request) (*Result, error) {
	res := &Result{}
	seen := make(map[string]bool, len(req.Names))
	for _, name := range req.Names {
		if seen[name] {
			continue
		}
		seen[name] = true

		if !validName(name) {
			l.log.Warn("skill name rejected", "name", name)
			res.Missing = append(res.Missing, name)
			continue
		}
		entry, ok, err := load(req.WorkflowDir, name, req.MaxChars)
		if err != nil {
			return nil, err
		}
		if !ok {
			res.Missing = append(res.Missing, name)
			continue
		}
		res.Entries = append(res.Entries, entry)
	}
	if len(res.Missing) > 0 {
		l.log.Warn("skills not found",
			"missing", strings.Join(res.Missing, ","),
			"dir", req.WorkflowDir)
	}
	res.Text = renderText(res.Entries)
	return res, nil
}

// load tries the directory form then the flat form.
func load(workflowDir, name string, maxChars int) (Entry, bool, error) {
	candidates := []string{
		filepath.Join(workflowDir, "skills", name, "SKILL.md"),
		filepath.Join(workflowDir, "skills", name+".md"),
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Entry{}, false, fmt.Errorf("skills: reading %q: %w", path, err)
		}
		content := clamp(strings.TrimSpace(string(data)), maxChars)
		return Entry{Name: name, Path: path, Content: content}, true, nil
	}
	return Entry{}, false, nil
}

// validName accepts only single path elements, so a name can never
// resolve outside the skills directory.
func validName(name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return false
	}
	return filepath.IsLocal(name)
}

// clamp clips s to max runes.
func clamp(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// renderText joins loaded skills into one prompt layer body. Each skill
// keeps a heading so the model can tell where one ends and the next
// begins.
func renderText(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("### Skill: %s\n\n%s", e.Name, e.Content))
	}
	return strings.Join(parts, "\n\n")
}
