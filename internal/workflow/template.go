package workflow

import (
	"regexp"
	"strings"

	"github.com/ferretbot/ferretbot/internal/jsonutil"
)

// rePlaceholder matches {{ path.to.value }} placeholders in step fields.
// Only dotted identifier paths are recognized; anything else is left as-is.
var rePlaceholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_][a-zA-Z0-9_.-]*)\s*\}\}`)

// RenderTemplate substitutes {{ path }} placeholders in text with values
// looked up in scope. Paths use dots to descend into nested maps, so
// {{ args.name }} resolves scope["args"]["name"]. Placeholders that
// resolve to nothing render as the empty string.
func RenderTemplate(text string, scope map[string]any) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return rePlaceholder.ReplaceAllStringFunc(text, func(m string) string {
		path := rePlaceholder.FindStringSubmatch(m)[1]
		val, ok := jsonutil.Lookup(scope, path)
		if !ok {
			return ""
		}
		return jsonutil.Stringify(val)
	})
}

// RenderStep returns a copy of step with its templated fields rendered
// against scope. Only the fields system steps consume are templated;
// agent instructions pass through the prompt assembler untouched.
func RenderStep(step *Step, scope map[string]any) *Step {
	out := *step
	out.Path = RenderTemplate(step.Path, scope)
	out.Content = RenderTemplate(step.Content, scope)
	out.Prompt = RenderTemplate(step.Prompt, scope)
	return &out
}
