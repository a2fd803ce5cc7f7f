package llm

import "context"

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request contains chat-completion parameters.
type Request struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// Response contains a completion result.
type Response struct {
	Content    string
	Model      string
	TokensUsed int
	LatencyMs  int64
}

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Complete runs a chat completion
	Complete(ctx context.Context, req Request) (*Response, error)
}
