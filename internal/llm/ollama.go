package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Native Ollama API types (unexported).

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int64   `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int64  `json:"prompt_eval_count"`
	EvalCount       int64  `json:"eval_count"`
}

type tagsResponse struct {
	Models []struct {
		Name    string `json:"name"`
		Size    int64  `json:"size"`
		Details struct {
			Family        string `json:"family"`
			ParameterSize string `json:"parameter_size"`
		} `json:"details"`
	} `json:"models"`
}

// InstalledModel is a model the local Ollama server has pulled.
type InstalledModel struct {
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	Family        string `json:"family,omitempty"`
	ParameterSize string `json:"parameter_size,omitempty"`
}

// OllamaClient talks to Ollama's native /api/generate endpoint.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	maxTokens  int64
	headers    map[string]string
}

// NewOllamaClient creates a native Ollama client. The request deadline comes
// from the caller's context, so the HTTP client itself has no timeout.
func NewOllamaClient(cfg Config) *OllamaClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultHost
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &OllamaClient{
		httpClient: hc,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxTokens:  maxTokensOrDefault(cfg.MaxTokens),
		headers:    cfg.ExtraHeaders,
	}
}

// Provider returns "ollama".
func (c *OllamaClient) Provider() string {
	return ProviderOllama
}

// Invoke runs a non-streaming generation.
func (c *OllamaClient) Invoke(ctx context.Context, modelName, prompt string) (string, error) {
	ctx, span := startSpan(ctx, ProviderOllama, modelName, c.maxTokens, prompt)
	defer span.End()

	out, err := c.generate(ctx, modelName, prompt)
	if err != nil {
		err = classify(ctx, modelName, err)
		recordError(span, err)
		return "", err
	}

	span.SetAttributes(attribute.String("gen_ai.response.model", out.Model))
	recordUsage(span, out.PromptEvalCount, out.EvalCount, out.DoneReason)
	recordMessages(span, "gen_ai.output.messages", "assistant", out.Response)
	return out.Response, nil
}

func (c *OllamaClient) generate(ctx context.Context, modelName, prompt string) (*generateResponse, error) {
	body, err := json.Marshal(generateRequest{
		Model:   modelName,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{Temperature: 0, NumPredict: c.maxTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := extractOllamaError(respBody)
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, msg)
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parse ollama response: %w", err)
	}
	return &out, nil
}

// ListInstalled asks the Ollama server at baseURL which models it has.
func ListInstalled(ctx context.Context, baseURL string, hc *http.Client) ([]InstalledModel, error) {
	if baseURL == "" {
		baseURL = DefaultHost
	}
	// The OpenAI-compatible endpoint lives under /v1; tags are at the root.
	baseURL = strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/v1")
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to Ollama at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	models := make([]InstalledModel, len(tags.Models))
	for i, m := range tags.Models {
		models[i] = InstalledModel{
			// ":latest" is the default tag and only adds noise.
			Name:          strings.TrimSuffix(m.Name, ":latest"),
			Size:          m.Size,
			Family:        m.Details.Family,
			ParameterSize: m.Details.ParameterSize,
		}
	}
	return models, nil
}

// extractOllamaError pulls the message out of Ollama's JSON error bodies,
// either {"error":"message"} or {"error":{"message":"text"}}.
func extractOllamaError(body []byte) string {
	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &flat) == nil && flat.Error != "" {
		return flat.Error
	}
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}
	return ""
}
