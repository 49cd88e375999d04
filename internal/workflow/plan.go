package workflow

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PlanFormatter renders a human-readable execution plan for a workflow
// definition. When styled is true, lipgloss ANSI styling is applied; when
// false, plain text is emitted. Output is written to the embedded io.Writer
// via Write.
type PlanFormatter struct {
	writer io.Writer
	styled bool
}

// NewPlanFormatter creates a new PlanFormatter writing to w.
// When styled is true, lipgloss ANSI styling is applied; when false, plain
// text is emitted.
func NewPlanFormatter(w io.Writer, styled bool) *PlanFormatter {
	return &PlanFormatter{writer: w, styled: styled}
}

// Write writes the formatted string s to f.writer.
func (f *PlanFormatter) Write(s string) {
	fmt.Fprint(f.writer, s)
}

// FormatPlan formats the execution plan for a single workflow definition.
// Steps are rendered in declaration order, which is also scheduling order:
// the engine always picks the first pending step whose dependencies are
// settled. Dependencies, gates, and success checks are annotated per step.
//
// The method returns a formatted string; it does not write to f.writer.
func (f *PlanFormatter) FormatPlan(def *Definition) string {
	if def == nil || len(def.Steps) == 0 {
		return "No steps defined.\n"
	}

	// Styles.
	headerStyle := lipgloss.NewStyle()
	stepNameStyle := lipgloss.NewStyle()
	detailStyle := lipgloss.NewStyle()
	gateStyle := lipgloss.NewStyle()

	if f.styled {
		headerStyle = headerStyle.Bold(true).Foreground(lipgloss.Color("12")) // bright blue
		stepNameStyle = stepNameStyle.Bold(true)
		detailStyle = detailStyle.Faint(true)
		gateStyle = gateStyle.Foreground(lipgloss.Color("11")) // yellow
	}

	var sb strings.Builder

	// Header.
	header := fmt.Sprintf("Workflow: %s@%s", def.ID, def.Version)
	if def.Name != "" {
		header += fmt.Sprintf(" (%s)", def.Name)
	}
	underline := strings.Repeat("=", len(header))
	sb.WriteString(headerStyle.Render(header))
	sb.WriteString("\n")
	sb.WriteString(underline)
	sb.WriteString("\n")

	if def.Description != "" {
		sb.WriteString(def.Description)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	// Declared inputs.
	if len(def.Inputs) > 0 {
		sb.WriteString("Inputs:\n")
		for _, in := range def.Inputs {
			req := "optional"
			if in.Required {
				req = "required"
			}
			line := fmt.Sprintf("  %s (%s, %s)", in.Name, in.Type, req)
			if in.Description != "" {
				line += ": " + in.Description
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	// Render each step in declaration order.
	for i := range def.Steps {
		step := &def.Steps[i]
		stepNum := i + 1

		stepHeader := fmt.Sprintf("%s [%s]: %s", step.ID, step.EffectiveType(), stepSummary(step))
		sb.WriteString(fmt.Sprintf("  %d. %s\n", stepNum, stepNameStyle.Render(stepHeader)))

		if len(step.DependsOn) > 0 {
			line := fmt.Sprintf("     after: %s", strings.Join(step.DependsOn, ", "))
			sb.WriteString(detailStyle.Render(line))
			sb.WriteString("\n")
		}

		if step.Approval {
			sb.WriteString(gateStyle.Render("     [WAITS FOR APPROVAL]"))
			sb.WriteString("\n")
		}

		for _, check := range step.DoneWhen {
			line := fmt.Sprintf("     done when: %s", checkSummary(&check))
			sb.WriteString(detailStyle.Render(line))
			sb.WriteString("\n")
		}

		if len(step.Outputs) > 0 {
			line := fmt.Sprintf("     outputs: %s", strings.Join(step.Outputs, ", "))
			sb.WriteString(detailStyle.Render(line))
			sb.WriteString("\n")
		}

		if step.OnFail != "" || step.Retries > 0 {
			line := fmt.Sprintf("     on fail: %s (retries: %d)", step.EffectiveOnFail(), step.Retries)
			sb.WriteString(detailStyle.Render(line))
			sb.WriteString("\n")
		}

		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("Total steps: %d\n", len(def.Steps)))

	return sb.String()
}

// stepSummary returns a one-line description of what a step would do.
func stepSummary(step *Step) string {
	switch step.EffectiveType() {
	case StepAgent:
		return firstLine(step.Instruction, 72)
	case StepWaitForInput:
		return fmt.Sprintf("ask %q", firstLine(step.Prompt, 48))
	case StepWriteFile:
		return fmt.Sprintf("write %s", step.Path)
	case StepDeleteFile:
		return fmt.Sprintf("delete %s", step.Path)
	case StepEnsureFile:
		return fmt.Sprintf("ensure %s", step.Path)
	default:
		return step.Type
	}
}

// checkSummary returns a compact rendering of a single success check.
func checkSummary(c *Check) string {
	switch c.Type {
	case "contains", "not_contains", "non_empty":
		if c.Text == "" {
			return c.Type
		}
		return fmt.Sprintf("%s %q", c.Type, firstLine(c.Text, 40))
	case "regex":
		return fmt.Sprintf("regex /%s/", c.Pattern)
	case "exit_code", "command_exit_code":
		code := 0
		if c.Expected != nil {
			code = *c.Expected
		}
		return fmt.Sprintf("%s == %d", c.Type, code)
	case "file_contains":
		return fmt.Sprintf("%s %q in %s", c.Type, firstLine(c.Text, 40), c.Path)
	case "file_regex":
		return fmt.Sprintf("%s /%s/ in %s", c.Type, c.Pattern, c.Path)
	default:
		if c.Path != "" {
			return fmt.Sprintf("%s %s", c.Type, c.Path)
		}
		return c.Type
	}
}

// firstLine returns the first line of s truncated to max runes, with "..."
// appended when anything was cut.
func firstLine(s string, max int) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
