package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"shellrelay/internal/llm"
	"shellrelay/internal/logging"
	"shellrelay/internal/osprofile"
	"shellrelay/internal/prompts"
)

var (
	// ErrTranslationFailed wraps provider failures: network, auth, rate
	// limits. The instruction may succeed on retry.
	ErrTranslationFailed = errors.New("translation failed")
	// ErrMalformedResponse means the model answered but not with a usable
	// plan. Retrying with the same instruction is unlikely to help.
	ErrMalformedResponse = errors.New("malformed planner response")
)

var arrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// Planner turns a natural-language instruction into an ordered list of shell
// commands via the configured model.
type Planner struct {
	client      llm.Client
	model       string
	temperature float64
	maxSteps    int
	systemMsg   string
}

func New(client llm.Client, model string, temperature float64, maxSteps int, profile osprofile.Profile) *Planner {
	return &Planner{
		client:      client,
		model:       model,
		temperature: temperature,
		maxSteps:    maxSteps,
		systemMsg:   prompts.Planner(profile.ShellHint(), maxSteps),
	}
}

// Translate asks the model for a plan. Plans longer than the step ceiling
// are rejected outright rather than silently shortened, so the user never
// gets a partial rendition of what the model intended.
func (p *Planner) Translate(ctx context.Context, instruction string) ([]string, error) {
	resp, err := p.client.Chat(ctx, llm.ChatRequest{
		Model: p.model,
		Messages: []llm.Message{
			{Role: "system", Content: p.systemMsg},
			{Role: "user", Content: prompts.UserTurn(instruction)},
		},
		Temperature: p.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranslationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	plan, err := parsePlan(resp.Choices[0].Message.Content, p.maxSteps)
	if err != nil {
		logging.DevLog("planner: rejected response: %v", err)
		return nil, err
	}
	return plan, nil
}

// parsePlan extracts the JSON array of commands from the raw model output,
// tolerating code fences and surrounding prose.
func parsePlan(raw string, maxSteps int) ([]string, error) {
	text := stripFences(strings.TrimSpace(raw))
	blob := arrayPattern.FindString(text)
	if blob == "" {
		return nil, fmt.Errorf("%w: no JSON array in output", ErrMalformedResponse)
	}

	var plan []string
	if err := json.Unmarshal([]byte(blob), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("%w: empty plan", ErrMalformedResponse)
	}
	if len(plan) > maxSteps {
		return nil, fmt.Errorf("%w: %d steps exceeds limit of %d", ErrMalformedResponse, len(plan), maxSteps)
	}
	for i, cmd := range plan {
		trimmed := strings.TrimSpace(cmd)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: blank command at step %d", ErrMalformedResponse, i+1)
		}
		plan[i] = trimmed
	}
	return plan, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
