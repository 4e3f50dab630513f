package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
)

// AnthropicClient talks to an Anthropic-compatible Messages API, which
// recent Ollama releases serve at the server root.
type AnthropicClient struct {
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropicClient creates an Anthropic-compatible client.
func NewAnthropicClient(cfg Config) *AnthropicClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultHost
	}

	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		option.WithAPIKey(apiKeyOrPlaceholder(cfg.APIKey)),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	for k, v := range cfg.ExtraHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		maxTokens: maxTokensOrDefault(cfg.MaxTokens),
	}
}

// Provider returns "anthropic".
func (c *AnthropicClient) Provider() string {
	return ProviderAnthropic
}

// Invoke sends prompt as a single user message and joins the text blocks
// of the reply.
func (c *AnthropicClient) Invoke(ctx context.Context, modelName, prompt string) (string, error) {
	ctx, span := startSpan(ctx, ProviderAnthropic, modelName, c.maxTokens, prompt)
	defer span.End()

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(modelName),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		err = classify(ctx, modelName, fmt.Errorf("anthropic API call failed: %w", err))
		recordError(span, err)
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := sb.String()
	if text == "" {
		span.SetAttributes(attribute.String("error.type", "empty_response"))
	}

	span.SetAttributes(
		attribute.String("gen_ai.response.model", string(resp.Model)),
		attribute.String("gen_ai.response.id", resp.ID),
	)
	recordUsage(span, resp.Usage.InputTokens, resp.Usage.OutputTokens, string(resp.StopReason))
	recordMessages(span, "gen_ai.output.messages", "assistant", text)

	return text, nil
}
