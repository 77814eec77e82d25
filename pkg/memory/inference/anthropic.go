package inference

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient classifies queries through an Anthropic-compatible
// chat endpoint. Pointing BaseURL at a local/hosted inference server
// (rather than the public API) is what makes this usable as the
// "optional local inference endpoint" of spec §6 while still letting
// operators route to a hosted Anthropic deployment when they want a
// stronger classifier than the keyword fallback.
type AnthropicClient struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	health  cachedHealth
}

func NewAnthropicClient(baseURL, apiKey, model string, timeout, healthTTL time.Duration) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicClient{
		client:  anthropic.NewClient(opts...),
		model:   model,
		timeout: timeout,
		health:  cachedHealth{ttl: healthTTL},
	}
}

func (c *AnthropicClient) Classify(ctx context.Context, query string, vocabulary []string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := buildClassificationPrompt(query, vocabulary)
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		c.health.record(false)
		return nil, err
	}
	c.health.record(true)

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return parseJSONResponse([]byte(text))
}

func (c *AnthropicClient) Unavailable() bool {
	return c.health.unavailable()
}
