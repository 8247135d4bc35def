package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shellrelay/internal/llm"
	"shellrelay/internal/logging"
)

// Client is a minimal HTTP wrapper around the OpenRouter chat completions API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *log.Logger
}

// NewClient wires together the dependencies for API access.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *log.Logger) *Client {
	trimmed := strings.TrimRight(baseURL, "/")
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    trimmed,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// Chat executes a single completion request.
func (c *Client) Chat(ctx context.Context, reqPayload llm.ChatRequest) (llm.ChatResponse, error) {
	var respPayload llm.ChatResponse

	payload, err := json.Marshal(reqPayload)
	if err != nil {
		return respPayload, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return respPayload, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Title", "ShellRelay")

	c.logger.Printf("sending %d messages to model %s", len(reqPayload.Messages), reqPayload.Model)
	logging.DevLog("openrouter: sending request to %s with %d messages", reqPayload.Model, len(reqPayload.Messages))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return respPayload, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return respPayload, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		logging.ErrorLog("openrouter API error: %d - %s", resp.StatusCode, string(body))
		return respPayload, classifyStatus(resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, &respPayload); err != nil {
		logging.ErrorLog("openrouter response parse error: %v", err)
		return respPayload, fmt.Errorf("parse response: %w", err)
	}
	if len(respPayload.Choices) == 0 {
		return respPayload, llm.NewProviderError("openrouter", llm.ErrorTypeUnknown, "", "no choices returned")
	}
	logging.DevLog("openrouter: received response with %d choices", len(respPayload.Choices))
	return respPayload, nil
}

func classifyStatus(status int, body string) *llm.ProviderError {
	code := strconv.Itoa(status)
	msg := strings.TrimSpace(body)
	switch status {
	case http.StatusUnauthorized:
		return llm.NewProviderError("openrouter", llm.ErrorTypeAuth, code, msg)
	case http.StatusPaymentRequired:
		return llm.NewProviderError("openrouter", llm.ErrorTypeInsufficientCredit, code, msg)
	case http.StatusForbidden:
		return llm.NewProviderError("openrouter", llm.ErrorTypeModeration, code, msg)
	case http.StatusTooManyRequests:
		pe := llm.NewProviderError("openrouter", llm.ErrorTypeRateLimit, code, msg)
		pe.Retryable = true
		return pe
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		pe := llm.NewProviderError("openrouter", llm.ErrorTypeProviderDown, code, msg)
		pe.Retryable = true
		return pe
	default:
		return llm.NewProviderError("openrouter", llm.ErrorTypeUnknown, code, msg)
	}
}
