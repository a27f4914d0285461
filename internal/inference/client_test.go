package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvergara/maestro/pkg/schema"
)

func TestCompleteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama-3.1-8b-instant", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `{"category":"order_status"}`}},
			},
			"usage": map[string]any{"prompt_tokens": 80, "completion_tokens": 20, "total_tokens": 100},
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientOptions{BaseURL: srv.URL, APIKey: "test-key"})
	got, err := client.Complete(context.Background(), &Request{
		Model:  "llama-3.1-8b-instant",
		System: "You classify support requests.",
		Prompt: "where is my order 12345?",
	})
	require.NoError(t, err)

	assert.Equal(t, `{"category":"order_status"}`, got.Text)
	assert.Equal(t, 100, got.Tokens)
	assert.Equal(t, 80, got.PromptTokens)
	assert.Equal(t, 20, got.CompletionTokens)
	assert.InDelta(t, 0.000005, got.CostUSD, 1e-12)
	assert.GreaterOrEqual(t, got.LatencyMs, int64(0))
}

func TestCompleteProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limit exceeded", "type": "rate_limit"},
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientOptions{BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), &Request{Model: "llama-3.1-8b-instant", Prompt: "hi"})
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeInference, serr.Code)
	assert.Contains(t, serr.Message, "rate limit exceeded")
	assert.Equal(t, http.StatusTooManyRequests, serr.Details["status_code"])
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientOptions{BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), &Request{Model: "m", Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestCompleteDeadlineSurfacesAsContextError(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client := NewHTTPClient(HTTPClientOptions{BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, &Request{Model: "m", Prompt: "hi"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCost(t *testing.T) {
	assert.InDelta(t, 0.05, Cost("llama-3.1-8b-instant", 1_000_000), 1e-9)
	assert.InDelta(t, 0.59, Cost("llama-3.1-70b-versatile", 1_000_000), 1e-9)
	assert.InDelta(t, 0.24, Cost("mixtral-8x7b-32768", 1_000_000), 1e-9)

	// Unknown models fall back to the default rate.
	assert.InDelta(t, 0.10, Cost("unknown-model", 1_000_000), 1e-9)
	assert.Zero(t, Cost("llama-3.1-8b-instant", 0))
}
