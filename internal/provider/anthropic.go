package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-20250514"

	// Cost units per token. These are abstract accounting units, not
	// dollars; the ratio mirrors typical input/output pricing.
	anthropicInputCostPerToken  = 0.003
	anthropicOutputCostPerToken = 0.015
)

// AnthropicProvider calls the Anthropic Messages API
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates an Anthropic provider. The API key comes
// from ANTHROPIC_API_KEY when apiKey is empty.
func NewAnthropicProvider(apiKey, model string) (*AnthropicProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	if model == "" {
		model = defaultAnthropicModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{client: &client, model: model}, nil
}

// ID returns the provider identifier
func (p *AnthropicProvider) ID() string {
	return "anthropic"
}

// Call performs one Messages API request
func (p *AnthropicProvider) Call(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	response, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var responseText string
	for _, block := range response.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	inputTokens := int(response.Usage.InputTokens)
	outputTokens := int(response.Usage.OutputTokens)

	fmt.Printf("Anthropic call for run %s: input=%d tokens, output=%d tokens, duration=%v\n",
		req.RunID, inputTokens, outputTokens, time.Since(startTime))

	return &Response{
		ProviderID:   p.ID(),
		Text:         responseText,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUnits:    float64(inputTokens)*anthropicInputCostPerToken + float64(outputTokens)*anthropicOutputCostPerToken,
	}, nil
}
