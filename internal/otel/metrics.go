package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "bias-lens"

// Analysis outcomes recorded on analyses.total.
const (
	OutcomeVerdict      = "verdict"
	OutcomeParseFailure = "parse_failure"
	OutcomeEmptyInput   = "empty_input"
	OutcomeUnavailable  = "unavailable"
	OutcomeTimeout      = "timeout"
	OutcomeCanceled     = "canceled"
)

// Metrics holds the metric instruments for bias-lens.
// All methods are safe on a nil receiver and for concurrent use.
type Metrics struct {
	// Analyses counts pipeline runs by outcome and model.
	Analyses metric.Int64Counter
	// ParseFailures counts unusable model output by failing stage.
	ParseFailures metric.Int64Counter
	// RunLogWriteFailures counts run log writes that did not land.
	RunLogWriteFailures metric.Int64Counter
	// WordsCut counts article words dropped by prompt truncation.
	WordsCut metric.Int64Counter
	// ModelCallDuration is the wall time of a single model call, in seconds.
	ModelCallDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Analyses, err = meter.Int64Counter("analyses.total",
		metric.WithDescription("Total analyses partitioned by outcome (verdict, parse_failure, empty_input, unavailable, timeout, canceled)"))
	if err != nil {
		return nil, err
	}

	m.ParseFailures, err = meter.Int64Counter("parse_failures.total",
		metric.WithDescription("Model outputs that could not be turned into a verdict, by parse stage"))
	if err != nil {
		return nil, err
	}

	m.RunLogWriteFailures, err = meter.Int64Counter("runlog.write_failures.total",
		metric.WithDescription("Run log writes that failed (permissions, disk full)"))
	if err != nil {
		return nil, err
	}

	m.WordsCut, err = meter.Int64Counter("prompt.words_cut",
		metric.WithDescription("Article words dropped by the prompt word limit"),
		metric.WithUnit("{word}"))
	if err != nil {
		return nil, err
	}

	m.ModelCallDuration, err = meter.Float64Histogram("model.call.duration",
		metric.WithDescription("Duration of a single model call"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordAnalysis records one finished pipeline run.
func (m *Metrics) RecordAnalysis(ctx context.Context, outcome, model string) {
	if m == nil {
		return
	}
	m.Analyses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("analysis.outcome", outcome),
		attribute.String("llm.model", model),
	))
}

// RecordParseFailure records model output rejected at stage.
func (m *Metrics) RecordParseFailure(ctx context.Context, stage, model string) {
	if m == nil {
		return
	}
	m.ParseFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("parse.stage", stage),
		attribute.String("llm.model", model),
	))
}

// RecordRunLogFailure records a failed run log write.
func (m *Metrics) RecordRunLogFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.RunLogWriteFailures.Add(ctx, 1)
}

// RecordWordsCut records truncated words; zero is ignored.
func (m *Metrics) RecordWordsCut(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.WordsCut.Add(ctx, int64(n))
}

// RecordModelCall records how long a model call took.
func (m *Metrics) RecordModelCall(ctx context.Context, provider, model string, d time.Duration) {
	if m == nil {
		return
	}
	m.ModelCallDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	))
}
