package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/timvw/bias-lens/internal/model"
)

func TestNew(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"", ProviderOpenAI},
		{"openai", ProviderOpenAI},
		{"OpenAI", ProviderOpenAI},
		{"anthropic", ProviderAnthropic},
		{"ollama", ProviderOllama},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c, err := New(Config{Provider: tt.provider})
			if err != nil {
				t.Fatalf("New(%q) error: %v", tt.provider, err)
			}
			if got := c.Provider(); got != tt.want {
				t.Errorf("Provider() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := New(Config{Provider: "gemini"}); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

// slowHandler blocks until the client gives up.
func slowHandler(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(5 * time.Second):
	}
}

func closedServerURL() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

// backend builds each client against a test server URL.
type backend struct {
	name     string
	path     string
	base     func(url string) string
	make     func(cfg Config) Client
	okBody   string
	wantText string
}

var backends = []backend{
	{
		name:     "openai",
		path:     "/v1/chat/completions",
		base:     func(url string) string { return url + "/v1" },
		make:     func(cfg Config) Client { return NewOpenAIClient(cfg) },
		okBody:   `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"mistral","choices":[{"index":0,"message":{"role":"assistant","content":"{\"label\":\"left\"}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}`,
		wantText: `{"label":"left"}`,
	},
	{
		name:     "anthropic",
		path:     "/v1/messages",
		base:     func(url string) string { return url },
		make:     func(cfg Config) Client { return NewAnthropicClient(cfg) },
		okBody:   `{"id":"msg_1","type":"message","role":"assistant","model":"mistral","content":[{"type":"text","text":"part one, "},{"type":"text","text":"part two"}],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":5}}`,
		wantText: "part one, part two",
	},
	{
		name:     "ollama",
		path:     "/api/generate",
		base:     func(url string) string { return url },
		make:     func(cfg Config) Client { return NewOllamaClient(cfg) },
		okBody:   `{"model":"mistral","created_at":"2024-01-01T00:00:00Z","response":"{\"label\":\"right\"}","done":true,"done_reason":"stop","prompt_eval_count":12,"eval_count":5}`,
		wantText: `{"label":"right"}`,
	},
}

func TestInvoke_ReturnsRawText(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			var gotBody map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != b.path {
					t.Errorf("path = %q, want %q", r.URL.Path, b.path)
				}
				data, _ := io.ReadAll(r.Body)
				if err := json.Unmarshal(data, &gotBody); err != nil {
					t.Errorf("request body is not JSON: %v", err)
				}
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, b.okBody)
			}))
			defer srv.Close()

			c := b.make(Config{BaseURL: b.base(srv.URL)})
			got, err := c.Invoke(context.Background(), "mistral", "Classify this.")
			if err != nil {
				t.Fatalf("Invoke() error: %v", err)
			}
			if got != b.wantText {
				t.Errorf("Invoke() = %q, want %q", got, b.wantText)
			}
			if gotBody["model"] != "mistral" {
				t.Errorf("request model = %v, want mistral", gotBody["model"])
			}
			if !strings.Contains(mustJSON(t, gotBody), "Classify this.") {
				t.Errorf("request does not carry the prompt: %v", gotBody)
			}
		})
	}
}

func TestInvoke_NoRetryOnServerError(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				io.WriteString(w, `{"error":"model runner crashed"}`)
			}))
			defer srv.Close()

			_, err := b.make(Config{BaseURL: b.base(srv.URL)}).Invoke(context.Background(), "mistral", "p")
			var unavailable *model.ModelUnavailableError
			if !errors.As(err, &unavailable) {
				t.Fatalf("error = %v, want ModelUnavailableError", err)
			}
			if unavailable.Model != "mistral" {
				t.Errorf("Model = %q, want mistral", unavailable.Model)
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("server saw %d requests, want exactly 1", n)
			}
		})
	}
}

func TestInvoke_UnknownModel(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, `{"error":{"message":"model \"nope\" not found, try pulling it first","type":"api_error"}}`)
			}))
			defer srv.Close()

			_, err := b.make(Config{BaseURL: b.base(srv.URL)}).Invoke(context.Background(), "nope", "p")
			var unavailable *model.ModelUnavailableError
			if !errors.As(err, &unavailable) {
				t.Fatalf("error = %v, want ModelUnavailableError", err)
			}
		})
	}
}

func TestInvoke_Unreachable(t *testing.T) {
	url := closedServerURL()
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			_, err := b.make(Config{BaseURL: b.base(url)}).Invoke(context.Background(), "mistral", "p")
			var unavailable *model.ModelUnavailableError
			if !errors.As(err, &unavailable) {
				t.Fatalf("error = %v, want ModelUnavailableError", err)
			}
		})
	}
}

func TestInvoke_Timeout(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(slowHandler))
			defer srv.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			start := time.Now()
			_, err := b.make(Config{BaseURL: b.base(srv.URL)}).Invoke(ctx, "mistral", "p")
			var timeout *model.ModelTimeoutError
			if !errors.As(err, &timeout) {
				t.Fatalf("error = %v, want ModelTimeoutError", err)
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Error("timeout should match context.DeadlineExceeded")
			}
			if elapsed := time.Since(start); elapsed > 2*time.Second {
				t.Errorf("Invoke returned after %s, should abandon the request at the deadline", elapsed)
			}
		})
	}
}

func TestInvoke_CallerCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(slowHandler))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := NewOllamaClient(Config{BaseURL: srv.URL}).Invoke(ctx, "mistral", "p")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestOllama_RequestOptions(t *testing.T) {
	var req generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Trace"); got != "abc" {
			t.Errorf("X-Trace header = %q, want abc", got)
		}
		json.NewDecoder(r.Body).Decode(&req)
		io.WriteString(w, `{"model":"phi3.5","response":"ok","done":true}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(Config{BaseURL: srv.URL + "/", MaxTokens: 256, ExtraHeaders: map[string]string{"X-Trace": "abc"}})
	if _, err := c.Invoke(context.Background(), "phi3.5", "p"); err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if req.Stream {
		t.Error("request should not stream")
	}
	if req.Options.Temperature != 0 || req.Options.NumPredict != 256 {
		t.Errorf("options = %+v, want temperature 0 and num_predict 256", req.Options)
	}
}

func TestListInstalled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"models":[{"name":"mistral:latest","size":4100000000,"details":{"family":"llama","parameter_size":"7.2B"}},{"name":"qwen2.5:3b","size":1900000000,"details":{"family":"qwen2","parameter_size":"3.1B"}}]}`)
	}))
	defer srv.Close()

	// A /v1 base URL (as used by the OpenAI backend) is accepted too.
	got, err := ListInstalled(context.Background(), srv.URL+"/v1", nil)
	if err != nil {
		t.Fatalf("ListInstalled() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d models, want 2", len(got))
	}
	if got[0].Name != "mistral" || got[0].ParameterSize != "7.2B" {
		t.Errorf("first model = %+v, want mistral with 7.2B", got[0])
	}
	if got[1].Name != "qwen2.5:3b" {
		t.Errorf("second model = %q, want tag kept", got[1].Name)
	}
}

func TestExtractOllamaError(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error":"model 'x' not found"}`, "model 'x' not found"},
		{`{"error":{"message":"bad request","type":"invalid"}}`, "bad request"},
		{`not json`, ""},
		{`{}`, ""},
	}
	for _, tt := range tests {
		if got := extractOllamaError([]byte(tt.body)); got != tt.want {
			t.Errorf("extractOllamaError(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}
