package gemini

import (
	"context"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/wenqu/procurement-assistant/internal/llm"
	"google.golang.org/api/option"
)

// Provider implements llm.Provider for Google Gemini.
type Provider struct {
	apiKey string
	model  string
}

func NewProvider(apiKey, model string) *Provider {
	return &Provider{apiKey: apiKey, model: model}
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return "gemini-2.5-flash"
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

// Complete runs a chat completion. Gemini has no system role on this API
// surface, so the message sequence is flattened into a single prompt.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if !p.IsConfigured() {
		return nil, &llm.ChatError{Kind: llm.KindUnavailable, Message: "missing API key"}
	}

	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, &llm.ChatError{Kind: llm.KindUnavailable, Message: "failed to create gemini client", Err: err}
	}
	defer client.Close()

	generativeModel := client.GenerativeModel(model)
	temperature := float32(req.Temperature)
	generativeModel.Temperature = &temperature
	if req.MaxTokens > 0 {
		maxTokens := int32(req.MaxTokens)
		generativeModel.MaxOutputTokens = &maxTokens
	}

	var prompt strings.Builder
	for _, m := range req.Messages {
		prompt.WriteString(m.Role)
		prompt.WriteString(": ")
		prompt.WriteString(m.Content)
		prompt.WriteString("\n\n")
	}

	start := time.Now()
	resp, err := generativeModel.GenerateContent(ctx, genai.Text(prompt.String()))
	latency := time.Since(start).Milliseconds()

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &llm.ChatError{Kind: llm.KindTimeout, Message: "completion timed out", Err: err}
		}
		return nil, &llm.ChatError{Kind: llm.KindUpstream, Message: "gemini generation error", Err: err}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &llm.ChatError{Kind: llm.KindMalformed, Message: "empty response from gemini"}
	}

	var output string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			output += string(text)
		}
	}

	tokensUsed := 0
	if resp.UsageMetadata != nil {
		tokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}

	return &llm.Response{
		Content:    output,
		Model:      model,
		TokensUsed: tokensUsed,
		LatencyMs:  latency,
	}, nil
}
