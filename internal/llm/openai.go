package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
)

// OpenAIClient talks to an OpenAI-compatible Chat Completions API.
// Ollama serves one under /v1, which is the default endpoint.
type OpenAIClient struct {
	client    openai.Client
	maxTokens int64
}

// NewOpenAIClient creates an OpenAI-compatible client.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultHost + "/v1"
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

	return &OpenAIClient{
		client:    openai.NewClient(opts...),
		maxTokens: maxTokensOrDefault(cfg.MaxTokens),
	}
}

// Provider returns "openai".
func (c *OpenAIClient) Provider() string {
	return ProviderOpenAI
}

// Invoke sends prompt as a single user message.
func (c *OpenAIClient) Invoke(ctx context.Context, modelName, prompt string) (string, error) {
	ctx, span := startSpan(ctx, ProviderOpenAI, modelName, c.maxTokens, prompt)
	defer span.End()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: modelName,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(c.maxTokens),
		Temperature:         openai.Float(0),
	})
	if err != nil {
		err = classify(ctx, modelName, fmt.Errorf("openai API call failed: %w", err))
		recordError(span, err)
		return "", err
	}

	if len(resp.Choices) == 0 {
		span.SetAttributes(attribute.String("error.type", "empty_response"))
		return "", nil
	}

	text := resp.Choices[0].Message.Content
	span.SetAttributes(
		attribute.String("gen_ai.response.model", resp.Model),
		attribute.String("gen_ai.response.id", resp.ID),
	)
	recordUsage(span, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, string(resp.Choices[0].FinishReason))
	recordMessages(span, "gen_ai.output.messages", "assistant", text)

	return text, nil
}
