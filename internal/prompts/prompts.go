package prompts

import (
	_ "embed"
	"strconv"
	"strings"
)

//go:embed planner_prompt.txt
var plannerPrompt string

// Planner returns the system prompt for the command planner, filled in with
// the target shell description and the step ceiling.
func Planner(shellHint string, maxSteps int) string {
	p := strings.TrimSpace(plannerPrompt)
	p = strings.ReplaceAll(p, "{{SHELL}}", shellHint)
	p = strings.ReplaceAll(p, "{{MAX_STEPS}}", strconv.Itoa(maxSteps))
	return p
}

// UserTurn frames the user's instruction so the model answers with the plan
// array and nothing else.
func UserTurn(message string) string {
	return "User: " + strings.TrimSpace(message) + "\nCommands (JSON array only):"
}
