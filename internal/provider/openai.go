package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"

	openaiInputCostPerToken  = 0.0025
	openaiOutputCostPerToken = 0.010
)

// OpenAIProvider calls the OpenAI Chat Completions API. It is typically the
// fallback behind the Anthropic provider.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI provider. The API key comes from
// OPENAI_API_KEY when apiKey is empty.
func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// ID returns the provider identifier
func (p *OpenAIProvider) ID() string {
	return "openai"
}

// Call performs one chat completion request
func (p *OpenAIProvider) Call(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	completionReq := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	if req.MaxTokens > 0 {
		completionReq.MaxCompletionTokens = req.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, completionReq)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI returned no choices")
	}

	fmt.Printf("OpenAI call for run %s: input=%d tokens, output=%d tokens, duration=%v\n",
		req.RunID, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, time.Since(startTime))

	return &Response{
		ProviderID:   p.ID(),
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		CostUnits: float64(resp.Usage.PromptTokens)*openaiInputCostPerToken +
			float64(resp.Usage.CompletionTokens)*openaiOutputCostPerToken,
	}, nil
}
