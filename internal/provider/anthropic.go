package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

// Anthropic wraps the official SDK client.
type Anthropic struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewAnthropic creates an Anthropic client. An empty API key falls back
// to the SDK's own ANTHROPIC_API_KEY lookup.
func NewAnthropic(cfg Config) *Anthropic {
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	client := anthropic.NewClient(opts...)
	return &Anthropic{
		api:   &client,
		model: anthropic.Model(cfg.Model),
	}
}

func (c *Anthropic) Name() string  { return "anthropic" }
func (c *Anthropic) Model() string { return string(c.model) }

// Classify sends the rendered prompt and returns the raw model text.
func (c *Anthropic) Classify(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}

	return strings.TrimSpace(text), nil
}
