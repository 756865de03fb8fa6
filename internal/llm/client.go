package llm

import (
	"context"
	"errors"
)

// Provider represents a hosted text-generation provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderOpenAI Provider = "openai"
)

// Request represents a completion request.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Response represents a completion response.
type Response struct {
	Content string
	Model   string
}

// Client is the interface for hosted model providers.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Provider() Provider
	Model() string
}

var (
	// ErrUnavailable indicates the provider is temporarily unavailable.
	// Callers may retry on this error.
	ErrUnavailable = errors.New("service unavailable")

	// ErrRateLimit indicates rate limiting was hit.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrProviderError indicates a provider-specific error.
	ErrProviderError = errors.New("provider error")

	// ErrInvalidResponse indicates the model returned an unusable response.
	ErrInvalidResponse = errors.New("invalid model response")
)
