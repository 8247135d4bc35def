package relay

import (
	"fmt"
	"strings"

	"shellrelay/internal/executor"
)

// RenderReport produces the user-facing text for an execution report, one
// block per step.
func RenderReport(report executor.Report) string {
	var b strings.Builder
	for i, step := range report.Steps {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d/%d] $ %s\n", i+1, report.TotalSteps, step.Command)
		if step.ExitCode != nil {
			fmt.Fprintf(&b, "exit=%d\n", *step.ExitCode)
		} else {
			fmt.Fprintf(&b, "killed after %dms\n", step.DurationMs)
		}
		if step.Stdout != "" {
			fmt.Fprintf(&b, "stdout:\n%s", ensureNewline(step.Stdout))
		}
		if step.Stderr != "" {
			fmt.Fprintf(&b, "stderr:\n%s", ensureNewline(step.Stderr))
		}
		if step.Truncated {
			b.WriteString("[output truncated]\n")
		}
	}
	if report.StoppedEarly {
		fmt.Fprintf(&b, "\nStopped due to error at step %d of %d.\n",
			report.CompletedSteps, report.TotalSteps)
		if remaining := report.TotalSteps - report.CompletedSteps; remaining > 0 {
			fmt.Fprintf(&b, "%d remaining step(s) were not attempted.\n", remaining)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
