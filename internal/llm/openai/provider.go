package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wenqu/procurement-assistant/internal/llm"
)

const completionTimeout = 60 * time.Second

// Provider implements llm.Provider for any OpenAI-compatible chat-completions
// endpoint (SiliconFlow, DeepSeek, OpenAI proper).
type Provider struct {
	apiKey       string
	defaultModel string
	client       *http.Client
	baseURL      string
}

// NewProvider creates a provider against the given endpoint.
func NewProvider(apiKey, baseURL, defaultModel string) llm.Provider {
	if baseURL == "" {
		baseURL = "https://api.siliconflow.cn/v1"
	}
	if defaultModel == "" {
		defaultModel = "Qwen/Qwen2.5-72B-Instruct"
	}
	return &Provider{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: completionTimeout},
		baseURL:      baseURL,
	}
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return "openai"
}

// DefaultModel returns the default model
func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

// IsConfigured checks if provider has valid credentials
func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete runs a chat completion with at most one retry and no backoff; the
// callers carry their own deterministic fallbacks.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if !p.IsConfigured() {
		return nil, &llm.ChatError{Kind: llm.KindUnavailable, Message: "missing API key"}
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, &llm.ChatError{Kind: llm.KindMalformed, Message: "failed to marshal request", Err: err}
	}

	start := time.Now()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := p.doRequest(ctx, body)
		if err != nil {
			lastErr = err
			if errors.Is(err, context.Canceled) {
				break
			}
			continue
		}

		latencyMs := time.Since(start).Milliseconds()
		if len(resp.Choices) == 0 {
			return nil, &llm.ChatError{Kind: llm.KindMalformed, Message: "no choices in response"}
		}

		return &llm.Response{
			Content:    resp.Choices[0].Message.Content,
			Model:      model,
			TokensUsed: resp.Usage.TotalTokens,
			LatencyMs:  latencyMs,
		}, nil
	}

	var ce *llm.ChatError
	if errors.As(lastErr, &ce) {
		return nil, lastErr
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, &llm.ChatError{Kind: llm.KindTimeout, Message: "completion timed out", Err: lastErr}
	}
	return nil, &llm.ChatError{Kind: llm.KindUnavailable, Message: "request failed", Err: lastErr}
}

func (p *Provider) doRequest(ctx context.Context, body []byte) (*chatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &llm.ChatError{
			Kind:    llm.KindUpstream,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, snippet),
		}
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &llm.ChatError{Kind: llm.KindMalformed, Message: "failed to decode response", Err: err}
	}

	return &chatResp, nil
}
