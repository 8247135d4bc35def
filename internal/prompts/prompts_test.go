package prompts

import (
	"strings"
	"testing"
)

func TestPlannerFillsPlaceholders(t *testing.T) {
	p := Planner("bash on linux", 5)
	if strings.Contains(p, "{{SHELL}}") || strings.Contains(p, "{{MAX_STEPS}}") {
		t.Fatalf("unreplaced placeholder in prompt: %q", p)
	}
	if !strings.Contains(p, "Shell: bash on linux.") {
		t.Errorf("missing shell hint: %q", p)
	}
	if !strings.Contains(p, "Limit to 5 steps.") {
		t.Errorf("missing step limit: %q", p)
	}
}

func TestUserTurn(t *testing.T) {
	got := UserTurn("  list the files  ")
	want := "User: list the files\nCommands (JSON array only):"
	if got != want {
		t.Errorf("UserTurn = %q, want %q", got, want)
	}
}
