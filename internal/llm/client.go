// Package llm sends prompts to a locally hosted language model.
//
// Every backend makes exactly one request per Invoke and never retries;
// whether to try again (or try another model) is the caller's decision.
// Clients do not parse or log model output. They only classify transport
// failures into *model.ModelTimeoutError and *model.ModelUnavailableError.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/timvw/bias-lens/internal/model"
	blotel "github.com/timvw/bias-lens/internal/otel"
)

// Client sends a prompt to a named model and returns its raw output.
type Client interface {
	// Invoke makes a single request. ctx bounds the wait.
	Invoke(ctx context.Context, modelName, prompt string) (string, error)

	// Provider returns the backend name (e.g., "openai", "ollama").
	Provider() string
}

// Backend names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Providers lists the backends in the order they are documented.
var Providers = []string{ProviderOpenAI, ProviderAnthropic, ProviderOllama}

// DefaultHost is where a local Ollama server listens.
const DefaultHost = "http://localhost:11434"

// placeholderKey is sent when no API key is configured. Local servers ignore
// it, but the SDKs refuse to build requests without one.
const placeholderKey = "ollama"

// Config selects and configures a backend.
type Config struct {
	// Provider is one of Providers. Empty means ProviderOpenAI.
	Provider string
	// BaseURL overrides the backend's default endpoint.
	BaseURL string
	// APIKey is sent where the backend expects one.
	APIKey string
	// MaxTokens caps the completion length.
	MaxTokens int64
	// ExtraHeaders are added to every request.
	ExtraHeaders map[string]string
	// HTTPClient replaces the default transport (tests use httptest).
	HTTPClient *http.Client
}

// New builds the client for cfg.Provider.
func New(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return NewAnthropicClient(cfg), nil
	case ProviderOllama:
		return NewOllamaClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %q (use %s)", cfg.Provider, strings.Join(Providers, ", "))
	}
}

func maxTokensOrDefault(n int64) int64 {
	if n <= 0 {
		return 1024
	}
	return n
}

func apiKeyOrPlaceholder(key string) string {
	if key == "" {
		return placeholderKey
	}
	return key
}

// classify maps a failed request onto the pipeline's error taxonomy.
// Cancellation by the caller is returned unchanged.
func classify(ctx context.Context, modelName string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &model.ModelTimeoutError{Model: modelName}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &model.ModelTimeoutError{Model: modelName}
	}
	return &model.ModelUnavailableError{Model: modelName, Err: err}
}

var tracer = blotel.Tracer(blotel.TracerLLM)

// startSpan opens a GenAI generation span following the OTel GenAI
// semantic conventions. Span name: "{operation} {model}".
func startSpan(ctx context.Context, provider, modelName string, maxTokens int64, prompt string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "chat "+modelName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "chat"),
			attribute.String("gen_ai.provider.name", provider),
			attribute.String("gen_ai.request.model", modelName),
			attribute.Int64("gen_ai.request.max_tokens", maxTokens),
			attribute.Float64("gen_ai.request.temperature", 0),

			// Langfuse-specific: ensure this shows as a "generation"
			attribute.String("langfuse.observation.type", "generation"),
		),
	)
	recordMessages(span, "gen_ai.input.messages", "user", prompt)
	return ctx, span
}

func recordMessages(span trace.Span, key, role, content string) {
	msgs := []map[string]string{{"role": role, "content": content}}
	if data, err := json.Marshal(msgs); err == nil {
		span.SetAttributes(attribute.String(key, string(data)))
	}
}

func recordUsage(span trace.Span, inputTokens, outputTokens int64, finishReason string) {
	span.SetAttributes(
		attribute.Int64("gen_ai.usage.input_tokens", inputTokens),
		attribute.Int64("gen_ai.usage.output_tokens", outputTokens),
	)
	if finishReason != "" {
		span.SetAttributes(attribute.StringSlice("gen_ai.response.finish_reasons", []string{finishReason}))
	}
}

func recordError(span trace.Span, err error) {
	var timeout *model.ModelTimeoutError
	switch {
	case errors.As(err, &timeout):
		span.SetAttributes(attribute.String("error.type", "timeout"))
	case errors.Is(err, context.Canceled):
		span.SetAttributes(attribute.String("error.type", "canceled"))
	default:
		span.SetAttributes(attribute.String("error.type", "api_error"))
	}
	span.RecordError(err)
}
