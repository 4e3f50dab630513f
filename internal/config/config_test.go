package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"BIAS_LENS_PROVIDER", "BIAS_LENS_MODEL", "BIAS_LENS_BASE_URL", "BIAS_LENS_API_KEY",
	"BIAS_LENS_MAX_TOKENS", "BIAS_LENS_WORD_LIMIT", "BIAS_LENS_TIMEOUT", "BIAS_LENS_FETCH_TIMEOUT",
	"BIAS_LOG_PATH", "BIAS_LENS_LOG_LEVEL", "BIAS_LENS_LOG_FORMAT", "BIAS_LENS_PARALLEL",
	"BIAS_LENS_THEME", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_HEADERS", "OLLAMA_HOST",
}

// isolate clears env vars and moves into an empty directory with an empty
// HOME so no real config file is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(dir)
	return dir
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Provider != "openai" {
		t.Errorf("Provider: got %q, want %q", cfg.Provider, "openai")
	}
	if cfg.Model != "mistral" {
		t.Errorf("Model: got %q, want %q", cfg.Model, "mistral")
	}
	if cfg.WordLimit != 200 {
		t.Errorf("WordLimit: got %d, want %d", cfg.WordLimit, 200)
	}
	if cfg.Timeout != "240s" {
		t.Errorf("Timeout: got %q, want %q", cfg.Timeout, "240s")
	}
	if cfg.Parallel != 1 {
		t.Errorf("Parallel: got %d, want %d", cfg.Parallel, 1)
	}
	if len(cfg.Models) != 5 || cfg.Models[0].Name != "mistral" {
		t.Errorf("Models: got %v", cfg.Models)
	}
}

func TestLoad_NoFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ConfigFile != "" {
		t.Errorf("ConfigFile: got %q, want empty", cfg.ConfigFile)
	}
	if cfg.TimeoutDuration != 240*time.Second {
		t.Errorf("TimeoutDuration: got %v, want 240s", cfg.TimeoutDuration)
	}
	if cfg.FetchTimeoutDuration != 10*time.Second {
		t.Errorf("FetchTimeoutDuration: got %v, want 10s", cfg.FetchTimeoutDuration)
	}
	if len(cfg.Fields.Label) == 0 {
		t.Error("Fields.Label: want defaults")
	}
}

func TestParseDurationOrDisable(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMs  int64
		wantErr bool
	}{
		{"empty returns fallback", "", 5000, false},
		{"zero disables", "0", 0, false},
		{"off disables", "off", 0, false},
		{"disable disables", "disable", 0, false},
		{"valid duration", "30s", 30000, false},
		{"valid short duration", "500ms", 500, false},
		{"invalid", "not-a-duration", 0, true},
		{"negative", "-5s", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDurationOrDisable(tt.input, 5*time.Second)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDurationOrDisable(%q): error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got.Milliseconds() != tt.wantMs {
				t.Errorf("parseDurationOrDisable(%q) = %v, want %dms", tt.input, got, tt.wantMs)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := isolate(t)
	content := `provider: ollama
model: qwen2.5:3b
base_url: http://gpu-box:11434
word_limit: 120
timeout: "90s"
parallel: 4
log_path: logs/
fields:
  label: [leaning]
models:
  - name: llama3.2
    display: Llama 3.2
`
	if err := os.WriteFile(filepath.Join(dir, ".bias-lens.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ConfigFile != ".bias-lens.yaml" {
		t.Errorf("ConfigFile: got %q", cfg.ConfigFile)
	}
	if cfg.Provider != "ollama" {
		t.Errorf("Provider: got %q, want %q", cfg.Provider, "ollama")
	}
	if cfg.Model != "qwen2.5:3b" {
		t.Errorf("Model: got %q, want %q", cfg.Model, "qwen2.5:3b")
	}
	if cfg.WordLimit != 120 {
		t.Errorf("WordLimit: got %d, want %d", cfg.WordLimit, 120)
	}
	if cfg.TimeoutDuration != 90*time.Second {
		t.Errorf("TimeoutDuration: got %v, want 90s", cfg.TimeoutDuration)
	}
	if cfg.Parallel != 4 {
		t.Errorf("Parallel: got %d, want %d", cfg.Parallel, 4)
	}
	if cfg.LogPath != "logs/" {
		t.Errorf("LogPath: got %q, want %q", cfg.LogPath, "logs/")
	}
	if len(cfg.Fields.Label) != 1 || cfg.Fields.Label[0] != "leaning" {
		t.Errorf("Fields.Label: got %v", cfg.Fields.Label)
	}
	if len(cfg.Fields.Rationale) == 0 {
		t.Error("Fields.Rationale: unset keys should keep their defaults")
	}
	if len(cfg.Models) != 1 || cfg.Models[0].Title() != "Llama 3.2" {
		t.Errorf("Models: got %v", cfg.Models)
	}
	if cc := cfg.ClientConfig(); cc.Provider != "ollama" || cc.BaseURL != "http://gpu-box:11434" {
		t.Errorf("ClientConfig: got %+v", cc)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	content := `model: tinyllama
word_limit: 120
log_path: from-file.log
`
	if err := os.WriteFile(filepath.Join(dir, ".bias-lens.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BIAS_LENS_MODEL", "phi3.5")
	t.Setenv("BIAS_LENS_WORD_LIMIT", "300")
	t.Setenv("BIAS_LOG_PATH", "/tmp/bias/{model}.log")
	t.Setenv("BIAS_LENS_TIMEOUT", "off")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Model != "phi3.5" {
		t.Errorf("Model: got %q, want %q (env should override file)", cfg.Model, "phi3.5")
	}
	if cfg.WordLimit != 300 {
		t.Errorf("WordLimit: got %d, want %d (env should override file)", cfg.WordLimit, 300)
	}
	if cfg.LogPath != "/tmp/bias/{model}.log" {
		t.Errorf("LogPath: got %q (env should override file)", cfg.LogPath)
	}
	if cfg.TimeoutDuration != 0 {
		t.Errorf("TimeoutDuration: got %v, want disabled", cfg.TimeoutDuration)
	}
}

func TestLoad_ExplicitPath(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(filepath.Join(dir, "prompt.md"), []byte("Custom header."), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("instructions_file: prompt.md\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}
	if cfg.Instructions != "Custom header." {
		t.Errorf("Instructions: got %q, want file contents resolved next to the config", cfg.Instructions)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load(missing): want error for an explicit path that does not exist")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown provider", map[string]string{"BIAS_LENS_PROVIDER": "gemini"}, "unsupported provider"},
		{"bad timeout", map[string]string{"BIAS_LENS_TIMEOUT": "soon"}, "invalid timeout"},
		{"bad word limit", map[string]string{"BIAS_LENS_WORD_LIMIT": "many"}, "BIAS_LENS_WORD_LIMIT"},
		{"zero parallel", map[string]string{"BIAS_LENS_PARALLEL": "0"}, "BIAS_LENS_PARALLEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestOllamaHost(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		provider string
		want     string
	}{
		{"bare host for openai", "127.0.0.1:11434", "openai", "http://127.0.0.1:11434/v1"},
		{"url for anthropic", "http://box:11434/", "anthropic", "http://box:11434"},
		{"url for native", "https://box", "ollama", "https://box"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv("OLLAMA_HOST", tt.host)
			t.Setenv("BIAS_LENS_PROVIDER", tt.provider)
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if got := cfg.ClientConfig().BaseURL; got != tt.want {
				t.Errorf("ClientConfig().BaseURL: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOllamaHost_FollowsLaterProvider(t *testing.T) {
	isolate(t)
	t.Setenv("OLLAMA_HOST", "127.0.0.1:11434")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.BaseURL != "" {
		t.Errorf("BaseURL should stay unset, got %q", cfg.BaseURL)
	}

	cfg.Provider = "ollama"
	if got, want := cfg.ClientConfig().BaseURL, "http://127.0.0.1:11434"; got != want {
		t.Errorf("ClientConfig().BaseURL after provider change: got %q, want %q", got, want)
	}

	cfg.BaseURL = "http://other:8080/v1"
	if got := cfg.ClientConfig().BaseURL; got != cfg.BaseURL {
		t.Errorf("explicit base URL should win over OLLAMA_HOST, got %q", got)
	}
}
