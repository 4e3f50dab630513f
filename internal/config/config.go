// Package config loads bias-lens configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Command-line flags (applied by cmd)
//  2. Environment variables (BIAS_LENS_*, BIAS_LOG_PATH, OTEL_*)
//  3. Config file
//  4. Built-in defaults
//
// Config file search order:
//  1. the --config path, when given
//  2. .bias-lens.yaml in current directory
//  3. ~/.config/bias-lens/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/timvw/bias-lens/internal/llm"
	"github.com/timvw/bias-lens/internal/model"
	"github.com/timvw/bias-lens/internal/parser"
	"github.com/timvw/bias-lens/internal/runlog"
)

// Config holds all bias-lens configuration.
type Config struct {
	// Model client
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	MaxTokens int64  `yaml:"max_tokens"`

	// Pipeline
	WordLimit    int    `yaml:"word_limit"`
	Timeout      string `yaml:"timeout"`       // Go duration string, e.g. "240s"; "0"/"off" disables
	FetchTimeout string `yaml:"fetch_timeout"` // Go duration string, e.g. "10s"

	// Prompt and parsing
	Instructions     string          `yaml:"instructions"`      // replaces the embedded instruction header
	InstructionsFile string          `yaml:"instructions_file"` // read into Instructions when set
	Fields           parser.FieldMap `yaml:"fields"`

	// Known models, in display order. The pipeline accepts any name.
	Models []model.ModelOption `yaml:"models"`

	// Run log override: file, directory, or path containing {model}.
	LogPath string `yaml:"log_path"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "console" (default) or "json"

	// Batch
	Parallel int `yaml:"parallel"`

	// UI
	Theme string `yaml:"theme"` // "dark" (default) or "light"

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs, e.g. "Authorization=Basic abc123"

	// Parsed durations (not from YAML, set after loading)
	TimeoutDuration      time.Duration `yaml:"-"`
	FetchTimeoutDuration time.Duration `yaml:"-"`

	// OllamaHost is OLLAMA_HOST as read from the environment. The base URL
	// derived from it depends on the final provider, so it is resolved in
	// ClientConfig rather than at load time.
	OllamaHost string `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// DefaultModels are the local models offered out of the box.
func DefaultModels() []model.ModelOption {
	return []model.ModelOption{
		{Name: "mistral", Display: "Mistral 7B"},
		{Name: "tinyllama", Display: "TinyLlama 1.1B"},
		{Name: "deepseek-r1:1.5b", Display: "DeepSeek-R1 1.5B"},
		{Name: "qwen2.5:3b", Display: "Qwen2.5 3B"},
		{Name: "phi3.5", Display: "Phi-3.5 Mini"},
	}
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Provider:     llm.ProviderOpenAI,
		Model:        "mistral",
		MaxTokens:    1024,
		WordLimit:    200,
		Timeout:      "240s",
		FetchTimeout: "10s",
		Fields:       parser.DefaultFields(),
		Models:       DefaultModels(),
		LogLevel:     "warn",
		LogFormat:    "console",
		Parallel:     1,
		Theme:        "dark",
	}
}

// Load reads configuration from file and environment variables.
// explicitPath, when non-empty, must exist. Environment variables always
// override file values.
func Load(explicitPath string) (*Config, error) {
	cfg := Defaults()

	path, data, err := findConfigFile(explicitPath)
	if err != nil && explicitPath != "" {
		return nil, err
	}
	if err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	if err := mergeEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish parses durations, loads the instructions file, and validates.
func (cfg *Config) finish() error {
	var err error
	cfg.TimeoutDuration, err = parseDurationOrDisable(cfg.Timeout, 240*time.Second)
	if err != nil {
		return fmt.Errorf("invalid timeout %q: %w", cfg.Timeout, err)
	}
	cfg.FetchTimeoutDuration, err = parseDurationOrDisable(cfg.FetchTimeout, 10*time.Second)
	if err != nil {
		return fmt.Errorf("invalid fetch timeout %q: %w", cfg.FetchTimeout, err)
	}

	if cfg.InstructionsFile != "" && cfg.Instructions == "" {
		path := expandHome(cfg.InstructionsFile)
		if !filepath.IsAbs(path) && cfg.ConfigFile != "" {
			path = filepath.Join(filepath.Dir(cfg.ConfigFile), path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading instructions file: %w", err)
		}
		cfg.Instructions = string(data)
	}

	cfg.Fields = cfg.Fields.WithDefaults()
	return cfg.Validate()
}

// Validate reports settings that cannot work.
func (cfg *Config) Validate() error {
	switch strings.ToLower(cfg.Provider) {
	case llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderOllama:
	default:
		return fmt.Errorf("unsupported provider: %q (use %s)", cfg.Provider, strings.Join(llm.Providers, ", "))
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return fmt.Errorf("model must not be empty")
	}
	if cfg.WordLimit < 0 {
		return fmt.Errorf("word_limit must be positive, got %d", cfg.WordLimit)
	}
	if cfg.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", cfg.Parallel)
	}
	for _, m := range cfg.Models {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("models: every entry needs a name")
		}
	}
	return nil
}

// ClientConfig returns the model client settings.
// An explicit base URL wins over OLLAMA_HOST.
func (cfg *Config) ClientConfig() llm.Config {
	baseURL := cfg.BaseURL
	if baseURL == "" && cfg.OllamaHost != "" {
		baseURL = ollamaBaseURL(cfg.OllamaHost, cfg.Provider)
	}
	return llm.Config{
		Provider:  strings.ToLower(cfg.Provider),
		BaseURL:   baseURL,
		APIKey:    cfg.APIKey,
		MaxTokens: cfg.MaxTokens,
	}
}

// findConfigFile searches for a config file and returns its path and contents.
func findConfigFile(explicitPath string) (string, []byte, error) {
	if explicitPath != "" {
		path := expandHome(explicitPath)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", nil, fmt.Errorf("reading config file: %w", err)
		}
		return path, data, nil
	}

	// 1. Current directory
	if data, err := os.ReadFile(".bias-lens.yaml"); err == nil {
		return ".bias-lens.yaml", data, nil
	}

	// 2. XDG config dir / ~/.config
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "bias-lens", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("no config file found")
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.Provider != "" {
		cfg.Provider = file.Provider
	}
	if file.Model != "" {
		cfg.Model = file.Model
	}
	if file.BaseURL != "" {
		cfg.BaseURL = file.BaseURL
	}
	if file.APIKey != "" {
		cfg.APIKey = file.APIKey
	}
	if file.MaxTokens > 0 {
		cfg.MaxTokens = file.MaxTokens
	}
	if file.WordLimit > 0 {
		cfg.WordLimit = file.WordLimit
	}
	if file.Timeout != "" {
		cfg.Timeout = file.Timeout
	}
	if file.FetchTimeout != "" {
		cfg.FetchTimeout = file.FetchTimeout
	}
	if file.Instructions != "" {
		cfg.Instructions = file.Instructions
	}
	if file.InstructionsFile != "" {
		cfg.InstructionsFile = file.InstructionsFile
	}
	if len(file.Fields.Label) > 0 {
		cfg.Fields.Label = file.Fields.Label
	}
	if len(file.Fields.Confidence) > 0 {
		cfg.Fields.Confidence = file.Fields.Confidence
	}
	if len(file.Fields.Rationale) > 0 {
		cfg.Fields.Rationale = file.Fields.Rationale
	}
	if len(file.Models) > 0 {
		cfg.Models = file.Models
	}
	if file.LogPath != "" {
		cfg.LogPath = file.LogPath
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if file.LogFormat != "" {
		cfg.LogFormat = file.LogFormat
	}
	if file.Parallel > 0 {
		cfg.Parallel = file.Parallel
	}
	if file.Theme != "" {
		cfg.Theme = file.Theme
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) error {
	if v := os.Getenv("BIAS_LENS_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("BIAS_LENS_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("BIAS_LENS_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("BIAS_LENS_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("BIAS_LENS_MAX_TOKENS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid BIAS_LENS_MAX_TOKENS %q", v)
		}
		cfg.MaxTokens = n
	}
	if v := os.Getenv("BIAS_LENS_WORD_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid BIAS_LENS_WORD_LIMIT %q", v)
		}
		cfg.WordLimit = n
	}
	if v := os.Getenv("BIAS_LENS_TIMEOUT"); v != "" {
		cfg.Timeout = v
	}
	if v := os.Getenv("BIAS_LENS_FETCH_TIMEOUT"); v != "" {
		cfg.FetchTimeout = v
	}
	if v := os.Getenv(runlog.EnvPath); v != "" {
		cfg.LogPath = v
	}
	if v := os.Getenv("BIAS_LENS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BIAS_LENS_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("BIAS_LENS_PARALLEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid BIAS_LENS_PARALLEL %q", v)
		}
		cfg.Parallel = n
	}
	if v := os.Getenv("BIAS_LENS_THEME"); v != "" {
		cfg.Theme = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}

	// Ollama's own variable, honored when nothing more specific is set.
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.OllamaHost = v
	}
	return nil
}

// ollamaBaseURL turns an OLLAMA_HOST value ("127.0.0.1:11434" or a URL)
// into the base URL the provider expects.
func ollamaBaseURL(host, provider string) string {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	host = strings.TrimRight(host, "/")
	if strings.EqualFold(provider, llm.ProviderOpenAI) || provider == "" {
		return host + "/v1"
	}
	return host
}

// parseDurationOrDisable parses a duration string. "0", "off", "disable" return 0.
// Empty string returns the fallback value.
func parseDurationOrDisable(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "0" || s == "off" || s == "disable" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
