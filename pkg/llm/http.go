package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/codeready-toolchain/triago/pkg/config"
)

// HTTPGenerator is an adapter for chat-completion style HTTP providers.
// It speaks a minimal OpenAI-compatible request shape; provider-specific
// prompt formatting stays here and out of the pipeline stages.
type HTTPGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
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
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Confidence *float64 `json:"confidence,omitempty"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewHTTPGenerator builds the adapter from collaborator config. The API
// key is read from the configured environment variable; an empty key is
// allowed for local providers.
func NewHTTPGenerator(cfg *config.LLMCollaboratorConfig) *HTTPGenerator {
	return &HTTPGenerator{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     os.Getenv(cfg.APIKeyEnv),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{},
	}
}

// Generate performs one non-streaming chat completion call.
func (g *HTTPGenerator) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	messages := make([]chatMessage, 0, 2)
	if req.SystemInstructions != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemInstructions})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.maxTokens
	}

	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, &CollaboratorError{Class: FailureTerminal, Message: "request encoding failed", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &CollaboratorError{Class: FailureTerminal, Message: "request build failed", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	if req.Nonce != "" {
		httpReq.Header.Set("Idempotency-Key", req.Nonce)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		// Network errors and deadline expiry are transient.
		return nil, &CollaboratorError{Class: FailureTransient, Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &CollaboratorError{Class: FailureTransient, Message: "response read failed", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &CollaboratorError{
			Class:   FailureTransient,
			Message: fmt.Sprintf("provider returned %d", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &CollaboratorError{
			Class:   FailureTerminal,
			Message: fmt.Sprintf("provider returned %d: %s", resp.StatusCode, truncate(string(payload), 200)),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, &CollaboratorError{Class: FailureTerminal, Message: "response decoding failed", Err: err}
	}
	if parsed.Error != nil {
		return nil, &CollaboratorError{Class: FailureTerminal, Message: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return nil, &CollaboratorError{Class: FailureTerminal, Message: "provider returned no choices"}
	}

	return &GenerateResponse{
		Text:            parsed.Choices[0].Message.Content,
		TokensUsed:      parsed.Usage.TotalTokens,
		ModelConfidence: parsed.Confidence,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
