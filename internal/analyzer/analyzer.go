// Package analyzer runs the bias analysis pipeline: normalize the input,
// build the prompt, call the model once, and parse its answer.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/timvw/bias-lens/internal/llm"
	"github.com/timvw/bias-lens/internal/logging"
	"github.com/timvw/bias-lens/internal/model"
	"github.com/timvw/bias-lens/internal/normalize"
	blotel "github.com/timvw/bias-lens/internal/otel"
	"github.com/timvw/bias-lens/internal/parser"
	"github.com/timvw/bias-lens/internal/prompt"
	"github.com/timvw/bias-lens/internal/runlog"
)

var tracer = blotel.Tracer(blotel.TracerAnalyzer)

// Analyzer wires the pipeline stages together. Client is required; every
// other field has a usable zero value.
type Analyzer struct {
	Client  llm.Client
	Prompts *prompt.Builder // nil uses the embedded instructions
	Parser  *parser.Parser  // nil uses the default field mapping
	RunLog  *runlog.Logger  // nil disables run logs
	Metrics *blotel.Metrics // OTEL metric counters; nil-safe
	Logger  *zap.Logger     // nil discards logs
	// SessionID groups runs of one CLI invocation in traces (langfuse.session.id).
	SessionID string
}

// Request is one analysis.
type Request struct {
	Input  model.RawInput
	Source model.SourceInfo
	Model  string
	// WordLimit caps the article words in the prompt; <= 0 means the default.
	WordLimit int
	// Timeout bounds the model call; <= 0 waits as long as ctx allows.
	Timeout time.Duration
}

// Analyze classifies input with the named model.
//
// Parse failures are not errors: they come back in Analysis.Outcome along
// with the raw output. The error is *model.EmptyInputError,
// *model.ModelUnavailableError, *model.ModelTimeoutError, or ctx's error
// when the caller cancels.
func (a *Analyzer) Analyze(ctx context.Context, input model.RawInput, modelName string, wordLimit int, timeout time.Duration) (*model.Analysis, error) {
	return a.Run(ctx, Request{
		Input:     input,
		Source:    model.SourceInfo{Source: kindSource(input.Kind), Extracted: input.Kind == model.KindHTML},
		Model:     modelName,
		WordLimit: wordLimit,
		Timeout:   timeout,
	})
}

// Run is Analyze with explicit source metadata.
func (a *Analyzer) Run(ctx context.Context, req Request) (*model.Analysis, error) {
	log := logging.OrNop(a.Logger)
	start := time.Now()
	runID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "analyze",
		trace.WithAttributes(
			attribute.String("analysis.run_id", runID),
			attribute.String("analysis.source", req.Source.Source),
			attribute.String("llm.model", req.Model),
			attribute.Int("prompt.word_limit", req.WordLimit),

			// Langfuse trace-level attributes
			attribute.String("langfuse.trace.name", "bias-lens-analyze"),
			attribute.String("langfuse.session.id", a.SessionID),
			attribute.StringSlice("langfuse.trace.tags", []string{"bias-lens", "analyze"}),
		))
	defer span.End()

	fail := func(outcome string, err error) (*model.Analysis, error) {
		a.Metrics.RecordAnalysis(ctx, outcome, req.Model)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.Warn("analysis failed", zap.String("run_id", runID), zap.String("model", req.Model), zap.Error(err))
		return nil, err
	}

	if req.Input.IsBlank() {
		return fail(blotel.OutcomeEmptyInput, &model.EmptyInputError{Reason: "nothing but whitespace"})
	}

	text, err := normalize.Normalize(req.Input)
	if err != nil {
		return fail(blotel.OutcomeEmptyInput, err)
	}

	built := a.Prompts.Build(text, req.WordLimit)
	a.Metrics.RecordWordsCut(ctx, built.Words.Cut())
	span.SetAttributes(
		attribute.Int("prompt.words.original", built.Words.Original),
		attribute.Int("prompt.words.kept", built.Words.Kept),
		attribute.String("langfuse.observation.input", built.Text),
	)
	log.Debug("prompt built",
		zap.String("run_id", runID),
		zap.Int("words", built.Words.Kept),
		zap.Int("words_cut", built.Words.Cut()))

	callStart := time.Now()
	raw, err := a.invoke(ctx, req.Model, built.Prompt, req.Timeout)
	a.Metrics.RecordModelCall(ctx, a.Client.Provider(), req.Model, time.Since(callStart))
	if err != nil {
		return fail(outcomeFor(err), err)
	}

	outcome := a.parser().Parse(raw)
	finished := time.Now()

	a.RunLog.Record(model.RunLogEntry{
		RunID:     runID,
		Model:     req.Model,
		Prompt:    built.Prompt,
		Output:    raw,
		Outcome:   outcome,
		Timestamp: finished,
	})

	if outcome.OK() {
		a.Metrics.RecordAnalysis(ctx, blotel.OutcomeVerdict, req.Model)
		span.SetAttributes(
			attribute.String("verdict.label", string(outcome.Verdict.Label)),
			attribute.Float64("verdict.confidence", outcome.Verdict.Confidence),
		)
		log.Info("analysis complete",
			zap.String("run_id", runID),
			zap.String("model", req.Model),
			zap.String("label", string(outcome.Verdict.Label)),
			zap.Float64("confidence", outcome.Verdict.Confidence))
	} else {
		a.Metrics.RecordAnalysis(ctx, blotel.OutcomeParseFailure, req.Model)
		a.Metrics.RecordParseFailure(ctx, string(outcome.Failure.Stage), req.Model)
		span.SetAttributes(attribute.String("parse.stage", string(outcome.Failure.Stage)))
		log.Warn("model output rejected",
			zap.String("run_id", runID),
			zap.String("model", req.Model),
			zap.String("stage", string(outcome.Failure.Stage)),
			zap.String("detail", outcome.Failure.Detail))
	}

	return &model.Analysis{
		RunID:      runID,
		Model:      req.Model,
		Provider:   a.Client.Provider(),
		Source:     req.Source,
		Words:      built.Words,
		Prompt:     built.Prompt,
		RawOutput:  raw,
		Outcome:    outcome,
		AnalyzedAt: finished,
		DurationMs: finished.Sub(start).Milliseconds(),
	}, nil
}

type reply struct {
	out string
	err error
}

// invoke runs the model call under timeout. When the deadline passes first
// the call is abandoned: its context is cancelled and its result dropped.
func (a *Analyzer) invoke(ctx context.Context, modelName, p string, timeout time.Duration) (string, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan reply, 1)
	go func() {
		out, err := a.Client.Invoke(callCtx, modelName, p)
		done <- reply{out, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", a.classify(ctx, modelName, timeout, r.err)
		}
		return r.out, nil
	case <-callCtx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ctx.Err()
		}
		return "", &model.ModelTimeoutError{Model: modelName, After: timeout}
	}
}

// classify keeps typed client errors and maps anything else onto the
// pipeline's taxonomy.
func (a *Analyzer) classify(ctx context.Context, modelName string, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var te *model.ModelTimeoutError
	if errors.As(err, &te) {
		if te.After == 0 {
			te.After = timeout
		}
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.ModelTimeoutError{Model: modelName, After: timeout}
	}
	var ue *model.ModelUnavailableError
	if errors.As(err, &ue) {
		return ue
	}
	return &model.ModelUnavailableError{Model: modelName, Err: fmt.Errorf("%s: %w", a.Client.Provider(), err)}
}

func (a *Analyzer) parser() *parser.Parser {
	if a.Parser == nil {
		return parser.New(parser.DefaultFields())
	}
	return a.Parser
}

func outcomeFor(err error) string {
	var (
		empty   *model.EmptyInputError
		timeout *model.ModelTimeoutError
	)
	switch {
	case errors.As(err, &empty):
		return blotel.OutcomeEmptyInput
	case errors.As(err, &timeout):
		return blotel.OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return blotel.OutcomeCanceled
	default:
		return blotel.OutcomeUnavailable
	}
}

func kindSource(k model.InputKind) string {
	if k == model.KindHTML {
		return string(model.KindHTML)
	}
	return string(model.KindText)
}
