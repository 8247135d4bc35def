package planner

import (
	"context"
	"errors"
	"testing"

	"shellrelay/internal/llm"
	"shellrelay/internal/osprofile"
)

type stubClient struct {
	content string
	err     error
	lastReq llm.ChatRequest
}

func (s *stubClient) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return llm.ChatResponse{}, s.err
	}
	return llm.ChatResponse{
		Choices: []llm.ChatChoice{
			{Message: llm.Message{Role: "assistant", Content: s.content}, FinishReason: "stop"},
		},
	}, nil
}

func newTestPlanner(c llm.Client) *Planner {
	return New(c, "test-model", 0.2, 5, osprofile.ResolveFor("linux"))
}

func TestTranslateParsesPlan(t *testing.T) {
	stub := &stubClient{content: `["ls -la", "cat README.md"]`}
	p := newTestPlanner(stub)

	plan, err := p.Translate(context.Background(), "show me the files then the readme")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	want := []string{"ls -la", "cat README.md"}
	if len(plan) != len(want) {
		t.Fatalf("plan = %v, want %v", plan, want)
	}
	for i := range want {
		if plan[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, plan[i], want[i])
		}
	}
	if len(stub.lastReq.Messages) != 2 || stub.lastReq.Messages[0].Role != "system" {
		t.Errorf("request messages = %+v", stub.lastReq.Messages)
	}
}

func TestTranslateToleratesFencesAndProse(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"code fence", "```json\n[\"pwd\"]\n```"},
		{"leading prose", "Here is the plan:\n[\"pwd\"]"},
		{"trailing prose", "[\"pwd\"]\nLet me know if that works."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPlanner(&stubClient{content: tc.content})
			plan, err := p.Translate(context.Background(), "where am I")
			if err != nil {
				t.Fatalf("Translate: %v", err)
			}
			if len(plan) != 1 || plan[0] != "pwd" {
				t.Errorf("plan = %v", plan)
			}
		})
	}
}

func TestTranslateRejectsMalformed(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no array", "I cannot help with that."},
		{"not strings", `[1, 2, 3]`},
		{"empty array", `[]`},
		{"blank command", `["ls", "  "]`},
		{"too many steps", `["a","b","c","d","e","f"]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPlanner(&stubClient{content: tc.content})
			_, err := p.Translate(context.Background(), "do things")
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("err = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestTranslateWrapsProviderErrors(t *testing.T) {
	provErr := llm.NewProviderError("gemini", llm.ErrorTypeRateLimit, "429", "slow down")
	p := newTestPlanner(&stubClient{err: provErr})

	_, err := p.Translate(context.Background(), "list files")
	if !errors.Is(err, ErrTranslationFailed) {
		t.Fatalf("err = %v, want ErrTranslationFailed", err)
	}
	if _, ok := llm.IsProviderError(err); !ok {
		t.Error("provider error not preserved in chain")
	}
}
