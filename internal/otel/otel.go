// Package otel wires OpenTelemetry for bias-lens.
//
// Two tracers exist: TracerAnalyzer opens one span per analysis and
// TracerLLM one GenAI span per model call beneath it. Spans and metrics go
// to an OTLP/HTTP endpoint taken from the config file or
// OTEL_EXPORTER_OTLP_ENDPOINT. Without an endpoint every instrument is a
// no-op, so callers never need to check whether telemetry is enabled.
// OTEL_EXPORTER_OTLP_HEADERS carries auth headers (e.g. Langfuse).
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "bias-lens"

// Instrumentation scope names.
const (
	TracerAnalyzer = serviceName + "/analyzer"
	TracerLLM      = serviceName + "/llm"
)

const defaultMetricInterval = 15 * time.Second

// Version is the service.version resource attribute; cmd sets it from the
// linker-injected build version.
var Version = "dev"

// Tracer returns the named tracer from the global provider. Tracers taken
// before Init still report to the provider Init installs.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Config selects the OTLP endpoint.
type Config struct {
	Endpoint string // OTLP base URL, e.g. "http://localhost:4318"
	Headers  string // Comma-separated key=value pairs, e.g. "Authorization=Basic abc123"
	// MetricInterval is the export period; zero means 15s.
	MetricInterval time.Duration
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

// Telemetry owns the SDK providers installed by Init.
type Telemetry struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	Metrics *Metrics
}

// Enabled reports whether spans and metrics are exported.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.tp != nil
}

// collector is a parsed OTLP endpoint. The SDK appends the per-signal
// suffixes (/v1/traces, /v1/metrics) to basePath.
type collector struct {
	host     string // host:port
	basePath string
	insecure bool
	headers  map[string]string
}

func parseCollector(cfg Config) (collector, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" {
		return collector{}, fmt.Errorf("otel: invalid endpoint URL %q", cfg.Endpoint)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return collector{}, fmt.Errorf("otel: endpoint %q must use http or https", cfg.Endpoint)
	}
	return collector{
		host:     u.Host,
		basePath: strings.TrimRight(u.Path, "/"),
		insecure: u.Scheme == "http",
		headers:  parseHeaders(cfg.Headers),
	}, nil
}

// parseHeaders parses the OTEL_EXPORTER_OTLP_HEADERS format:
// comma-separated key=value pairs whose values may be percent-encoded.
func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		val = strings.TrimSpace(val)
		if unescaped, err := url.PathUnescape(val); err == nil {
			val = unescaped
		}
		headers[key] = val
	}
	return headers
}

func newTracerProvider(ctx context.Context, c collector, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(c.host),
		otlptracehttp.WithURLPath(c.basePath + "/v1/traces"),
	}
	if c.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(c.headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(c.headers))
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otel trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

func newMeterProvider(ctx context.Context, c collector, res *resource.Resource, interval time.Duration) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(c.host),
		otlpmetrichttp.WithURLPath(c.basePath + "/v1/metrics"),
	}
	if c.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(c.headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(c.headers))
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otel metric exporter: %w", err)
	}
	if interval <= 0 {
		interval = defaultMetricInterval
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	), nil
}

// Init installs OTLP/HTTP trace and metric providers globally when an
// endpoint is configured. Otherwise the global no-op providers stay in
// place and only the metric instruments are created.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	t := &Telemetry{}

	if cfg.Enabled() {
		c, err := parseCollector(cfg)
		if err != nil {
			return nil, err
		}
		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion(Version),
			),
			resource.WithHost(),
		)
		if err != nil {
			return nil, fmt.Errorf("otel resource: %w", err)
		}
		if t.tp, err = newTracerProvider(ctx, c, res); err != nil {
			return nil, err
		}
		if t.mp, err = newMeterProvider(ctx, c, res, cfg.MetricInterval); err != nil {
			_ = t.tp.Shutdown(ctx)
			return nil, err
		}
		otel.SetTracerProvider(t.tp)
		otel.SetMeterProvider(t.mp)
	}

	metrics, err := NewMetrics()
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("otel metrics: %w", err)
	}
	t.Metrics = metrics
	return t, nil
}

// Shutdown flushes pending spans and metrics. Errors from both providers
// are joined. It is safe on a nil or no-op Telemetry.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.tp != nil {
		errs = append(errs, t.tp.Shutdown(ctx))
	}
	if t.mp != nil {
		errs = append(errs, t.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
