package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-note/backend/internal/llm"
)

func TestOpenAIProvider_Complete(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req llm.CompletionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-model", req.Model)
			require.Len(t, req.Messages, 2)
			assert.Equal(t, "user", req.Messages[1].Role)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello!"}}]}`))
		}))
		defer server.Close()

		provider := llm.NewOpenAIProvider(server.URL, "test-key")
		reply, err := provider.Complete(context.Background(), &llm.CompletionRequest{
			Model: "test-model",
			Messages: []llm.Message{
				{Role: "system", Content: "be brief"},
				{Role: "user", Content: "hi"},
			},
		})

		require.NoError(t, err)
		assert.Equal(t, "Hello!", reply)
	})

	t.Run("Failure - non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
		}))
		defer server.Close()

		provider := llm.NewOpenAIProvider(server.URL, "test-key")
		_, err := provider.Complete(context.Background(), &llm.CompletionRequest{Model: "m"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("Failure - empty choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer server.Close()

		provider := llm.NewOpenAIProvider(server.URL, "test-key")
		_, err := provider.Complete(context.Background(), &llm.CompletionRequest{Model: "m"})

		assert.Error(t, err)
	})
}
