package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rvergara/maestro/pkg/schema"
)

// Request is a single chat completion request.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completion is the model's reply plus the usage accounting for the call.
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Tokens           int
	CostUSD          float64
	LatencyMs        int64
}

// Client performs chat completions against a language model provider.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Completion, error)
}

// HTTPClient talks to an OpenAI-compatible chat completions endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *slog.Logger
}

// HTTPClientOptions configures an HTTPClient.
type HTTPClientOptions struct {
	BaseURL string // e.g. https://api.groq.com/openai/v1
	APIKey  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewHTTPClient creates a chat completions client.
func NewHTTPClient(opts HTTPClientOptions) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends the request and returns the first choice with usage-based
// cost attached. The caller's context bounds the call; cancellation and
// deadline expiry surface unwrapped so timeouts stay detectable.
func (c *HTTPClient) Complete(ctx context.Context, req *Request) (*Completion, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInference, "marshal request: %v", err).WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInference, "create request: %v", err).WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpc.Do(httpReq)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, schema.NewErrorf(schema.ErrCodeInference, "completion request: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInference, "read response: %v", err).WithCause(err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInference, "decode response (status %d): %v", resp.StatusCode, err).WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("provider returned status %d", resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, schema.NewErrorf(schema.ErrCodeInference, "%s", msg).
			WithDetails(map[string]any{"status_code": resp.StatusCode, "model": req.Model})
	}
	if len(parsed.Choices) == 0 {
		return nil, schema.NewError(schema.ErrCodeInference, "response has no choices")
	}

	tokens := parsed.Usage.TotalTokens
	if tokens == 0 {
		tokens = parsed.Usage.PromptTokens + parsed.Usage.CompletionTokens
	}

	completion := &Completion{
		Text:             parsed.Choices[0].Message.Content,
		Model:            req.Model,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		Tokens:           tokens,
		CostUSD:          Cost(req.Model, tokens),
		LatencyMs:        latency,
	}

	c.logger.DebugContext(ctx, "completion finished",
		"model", req.Model, "tokens", tokens, "latency_ms", latency)

	return completion, nil
}
