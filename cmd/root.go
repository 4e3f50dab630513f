package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/timvw/bias-lens/internal/analyzer"
	"github.com/timvw/bias-lens/internal/config"
	"github.com/timvw/bias-lens/internal/llm"
	"github.com/timvw/bias-lens/internal/logging"
	telem "github.com/timvw/bias-lens/internal/otel"
	"github.com/timvw/bias-lens/internal/parser"
	"github.com/timvw/bias-lens/internal/prompt"
	"github.com/timvw/bias-lens/internal/runlog"
)

// Version is the build version, set by main from linker flags.
var Version = "dev"

var (
	// Global flags. Empty values leave the config file and environment in charge.
	flagConfig    string
	flagProvider  string
	flagModel     string
	flagBaseURL   string
	flagAPIKey    string
	flagMaxTokens int64
	flagLogLevel  string
	flagLogPath   string
	flagPrompt    string
)

var rootCmd = &cobra.Command{
	Use:   "bias-lens",
	Short: "Political bias classification of news text with a local LLM",
	Long: `bias-lens classifies a news article as left, right, or neutral leaning.

The article (plain text, HTML, or a URL) is reduced to its visible text,
truncated to a word limit, and sent once to a locally served language model
(Ollama by default). The model's answer is validated into a label, a
confidence between 0 and 1, and a short rationale. Every run is written to a
per-model debug log.

Configuration is loaded from .bias-lens.yaml, ~/.config/bias-lens/config.yaml,
or BIAS_LENS_* environment variables; flags override both.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	rootCmd.Version = Version
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", envOrDefault("BIAS_LENS_CONFIG", ""), "config file (default: .bias-lens.yaml, then ~/.config/bias-lens/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "model client: openai, anthropic, ollama (default: openai, Ollama's OpenAI-compatible API)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "model name as the runtime knows it (default: mistral)")
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "override the model server URL (default: http://localhost:11434)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "API key for servers that check it (Ollama does not)")
	rootCmd.PersistentFlags().Int64Var(&flagMaxTokens, "max-tokens", 0, "max completion tokens (default: 1024; increase for reasoning models)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error (default: warn)")
	rootCmd.PersistentFlags().StringVar(&flagPrompt, "instructions", "", "file with a custom instruction header; {text} marks where the article goes")
	rootCmd.PersistentFlags().StringVar(&flagLogPath, "log-path", "", "run log file, directory, or path with {model} (default: <model>_run.log)")
}

// loadConfig loads configuration and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if flagProvider != "" {
		cfg.Provider = flagProvider
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}
	if flagAPIKey != "" {
		cfg.APIKey = flagAPIKey
	}
	if flagMaxTokens > 0 {
		cfg.MaxTokens = flagMaxTokens
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogPath != "" {
		cfg.LogPath = flagLogPath
	}
	if flagPrompt != "" {
		data, err := os.ReadFile(flagPrompt)
		if err != nil {
			return nil, fmt.Errorf("reading instructions: %w", err)
		}
		cfg.Instructions = string(data)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// app is everything a pipeline command needs, built once per invocation.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	tel      *telem.Telemetry
	runLog   *runlog.Logger
	analyzer *analyzer.Analyzer
}

// newApp wires config, logging, telemetry, the model client, and the run log.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	if cfg.ConfigFile != "" {
		log.Debug("config loaded", zap.String("path", cfg.ConfigFile))
	}

	// Wire build version into OTEL service metadata
	telem.Version = Version

	// Initialize OTEL (no-op if no endpoint configured)
	tel, err := telem.Init(ctx, telem.Config{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: otel init failed: %v\n", err)
	} else if tel.Enabled() {
		log.Debug("otel export enabled", zap.String("endpoint", cfg.OTELEndpoint))
	}
	var metrics *telem.Metrics
	if tel != nil {
		metrics = tel.Metrics
	}

	client, err := llm.New(cfg.ClientConfig())
	if err != nil {
		return nil, err
	}

	fields := cfg.Fields.WithDefaults()
	runLog := runlog.New(cfg.LogPath, log, metrics)

	// Generate a session ID to group all runs from this invocation
	sessionID := fmt.Sprintf("bl-%d-%d", os.Getpid(), time.Now().Unix())

	return &app{
		cfg:    cfg,
		log:    log,
		tel:    tel,
		runLog: runLog,
		analyzer: &analyzer.Analyzer{
			Client:    client,
			Prompts:   prompt.NewBuilder(cfg.Instructions, fields),
			Parser:    parser.New(fields),
			RunLog:    runLog,
			Metrics:   metrics,
			Logger:    log,
			SessionID: sessionID,
		},
	}, nil
}

// close waits for pending run log writes and flushes telemetry.
func (a *app) close() {
	a.runLog.Flush()
	if a.tel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tel.Shutdown(ctx); err != nil {
			a.log.Debug("otel shutdown", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
