package mockclient

import (
	"context"
	"encoding/json"
	"strings"

	"shellrelay/internal/llm"
)

// Client is a deterministic llm.Client used for tests and CI. It answers
// every request with a one-step plan that echoes the last user message.
type Client struct{}

func New() *Client {
	return &Client{}
}

// Chat satisfies the llm.Client interface.
func (c *Client) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	last := ""
	if n := len(req.Messages); n > 0 {
		last = strings.TrimSpace(req.Messages[n-1].Content)
	}
	plan := []string{"echo mock plan"}
	if last != "" {
		quoted, _ := json.Marshal("mock: " + last)
		plan = []string{"echo " + string(quoted)}
	}
	content, _ := json.Marshal(plan)

	return llm.ChatResponse{
		Choices: []llm.ChatChoice{
			{
				Index:        0,
				Message:      llm.Message{Role: "assistant", Content: string(content)},
				FinishReason: "stop",
			},
		},
		Usage: &llm.Usage{
			PromptTokens:     42,
			CompletionTokens: 7,
			TotalTokens:      49,
		},
	}, nil
}
