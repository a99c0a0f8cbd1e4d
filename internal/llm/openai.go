package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Message is a single role-labeled chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest carries the parameters of one chat completion call.
// Temperature is a pointer so that an explicit 0 (maximum determinism) is
// distinguishable from "use the backend default".
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// CompletionProvider defines the interface for the chat-completion
// capability. Errors are transient from the caller's perspective; retry
// policy belongs to the caller.
type CompletionProvider interface {
	Complete(ctx context.Context, req *CompletionRequest) (string, error)
}

type openAIProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewOpenAIProvider creates a CompletionProvider speaking the
// OpenAI-compatible /chat/completions protocol (OpenRouter, DashScope,
// Moonshot and most hosted backends expose it).
func NewOpenAIProvider(baseURL, apiKey string) CompletionProvider {
	return &openAIProvider{
		client:  &http.Client{},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *openAIProvider) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("could not marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("could not create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("completions api returned non-200 status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("could not decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completions api returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
