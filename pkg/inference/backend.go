package inference

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Backend generates a completion for one prompt. Implementations must be safe
// for concurrent use; the provider server issues one call per inbound request
// with no synchronization.
type Backend interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// GroqBackend serves completions through Groq's OpenAI-compatible chat
// completions API.
type GroqBackend struct {
	client *openai.Client
}

// NewGroqBackend builds a backend against baseURL (Groq's OpenAI-compatible
// endpoint) authorized by apiKey.
func NewGroqBackend(apiKey, baseURL string) (*GroqBackend, error) {
	if apiKey == "" {
		return nil, errors.New("backend API key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &GroqBackend{client: openai.NewClientWithConfig(cfg)}, nil
}

// Complete sends prompt as a single user message and returns the first
// choice's content.
func (b *GroqBackend) Complete(ctx context.Context, prompt, model string) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   1024,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("backend completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("backend returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
