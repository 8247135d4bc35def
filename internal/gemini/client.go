package gemini

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

// Client talks to the Gemini generateContent API and adapts it to the
// shared chat-completion types.
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

type generatePart struct {
	Text string `json:"text"`
}

type generateContent struct {
	Role  string         `json:"role,omitempty"`
	Parts []generatePart `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *generateContent  `json:"system_instruction,omitempty"`
	Contents          []generateContent `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      generateContent `json:"content"`
		FinishReason string          `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Chat executes a single completion request. System messages become the
// system_instruction block; assistant turns map to the "model" role.
func (c *Client) Chat(ctx context.Context, reqPayload llm.ChatRequest) (llm.ChatResponse, error) {
	var respPayload llm.ChatResponse

	genReq := generateRequest{}
	if reqPayload.Temperature != 0 {
		genReq.GenerationConfig = &generationConfig{Temperature: reqPayload.Temperature}
	}
	for _, msg := range reqPayload.Messages {
		switch msg.Role {
		case "system":
			genReq.SystemInstruction = &generateContent{
				Parts: []generatePart{{Text: msg.Content}},
			}
		case "assistant":
			genReq.Contents = append(genReq.Contents, generateContent{
				Role:  "model",
				Parts: []generatePart{{Text: msg.Content}},
			})
		default:
			genReq.Contents = append(genReq.Contents, generateContent{
				Role:  "user",
				Parts: []generatePart{{Text: msg.Content}},
			})
		}
	}

	payload, err := json.Marshal(genReq)
	if err != nil {
		return respPayload, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, reqPayload.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return respPayload, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-goog-api-key", c.apiKey)

	c.logger.Printf("sending %d messages to model %s", len(reqPayload.Messages), reqPayload.Model)
	logging.DevLog("gemini: sending request to %s with %d contents", reqPayload.Model, len(genReq.Contents))

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
		logging.ErrorLog("gemini API error: %d - %s", resp.StatusCode, string(body))
		return respPayload, classifyStatus(resp.StatusCode, string(body))
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		logging.ErrorLog("gemini response parse error: %v", err)
		return respPayload, fmt.Errorf("parse response: %w", err)
	}
	if len(genResp.Candidates) == 0 {
		return respPayload, llm.NewProviderError("gemini", llm.ErrorTypeUnknown, "", "no candidates returned")
	}

	for i, cand := range genResp.Candidates {
		text := ""
		for _, part := range cand.Content.Parts {
			text += part.Text
		}
		respPayload.Choices = append(respPayload.Choices, llm.ChatChoice{
			Index:        i,
			Message:      llm.Message{Role: "assistant", Content: text},
			FinishReason: strings.ToLower(cand.FinishReason),
		})
	}
	if genResp.UsageMetadata != nil {
		respPayload.Usage = &llm.Usage{
			PromptTokens:     genResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: genResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      genResp.UsageMetadata.TotalTokenCount,
		}
	}
	logging.DevLog("gemini: received response with %d candidates", len(genResp.Candidates))
	return respPayload, nil
}

func classifyStatus(status int, body string) *llm.ProviderError {
	code := strconv.Itoa(status)
	msg := strings.TrimSpace(body)
	switch status {
	case http.StatusUnauthorized:
		return llm.NewProviderError("gemini", llm.ErrorTypeAuth, code, msg)
	case http.StatusForbidden:
		return llm.NewProviderError("gemini", llm.ErrorTypeModeration, code, msg)
	case http.StatusTooManyRequests:
		pe := llm.NewProviderError("gemini", llm.ErrorTypeRateLimit, code, msg)
		pe.Retryable = true
		return pe
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		pe := llm.NewProviderError("gemini", llm.ErrorTypeProviderDown, code, msg)
		pe.Retryable = true
		return pe
	default:
		return llm.NewProviderError("gemini", llm.ErrorTypeUnknown, code, msg)
	}
}
