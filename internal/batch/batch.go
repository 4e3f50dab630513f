// Package batch analyzes every .txt file in a folder and writes one JSON
// result per file under <folder>/results.
//
// Files are classified independently; nothing is aggregated across them.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/timvw/bias-lens/internal/analyzer"
	"github.com/timvw/bias-lens/internal/logging"
	"github.com/timvw/bias-lens/internal/model"
	"github.com/timvw/bias-lens/internal/source"
)

// ResultsDir is the subfolder results are written to.
const ResultsDir = "results"

// Runner processes a folder with one model.
type Runner struct {
	Analyzer  *analyzer.Analyzer
	Model     string
	WordLimit int
	Timeout   time.Duration
	// Parallel bounds concurrent analyses; < 1 means 1.
	Parallel int
	Logger   *zap.Logger
	// Progress, when set, is called after each file is written. With
	// Parallel > 1 it may be called concurrently.
	Progress func(done, total int, r *Result)
}

// Summary describes a finished batch.
type Summary struct {
	ProcessedFiles   int    `json:"processed_files"`
	ResultsDirectory string `json:"results_directory"`
	Verdicts         int    `json:"verdicts"`
	Failures         int    `json:"failures"`
}

// Result is the JSON written for one file.
type Result struct {
	File       string           `json:"file"`
	Text       string           `json:"text"`
	Model      string           `json:"model"`
	RunID      string           `json:"run_id,omitempty"`
	Label      model.Label      `json:"label,omitempty"`
	Confidence *float64         `json:"confidence,omitempty"`
	Rationale  string           `json:"rationale,omitempty"`
	RawOutput  string           `json:"raw_output,omitempty"`
	Words      *model.WordStats `json:"words,omitempty"`
	Error      *ResultError     `json:"error,omitempty"`
}

// ResultError explains why a file has no verdict.
type ResultError struct {
	// Kind is empty_input, unavailable, timeout or parse.
	Kind string `json:"kind"`
	// Stage is the parse stage for Kind "parse".
	Stage   model.ParseStage `json:"stage,omitempty"`
	Message string           `json:"message"`
}

// Files lists the .txt files in folder in sorted order.
func Files(folder string) ([]string, error) {
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("folder not found: %s", folder)
	}
	matches, err := filepath.Glob(filepath.Join(folder, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", folder, err)
	}
	files := matches[:0]
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && fi.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .txt files found in %s", folder)
	}
	sort.Strings(files)
	return files, nil
}

// Run analyzes every .txt file in folder. A file that cannot be analyzed
// gets an error entry in its result; only I/O problems and cancellation
// stop the batch.
func (r *Runner) Run(ctx context.Context, folder string) (*Summary, error) {
	log := logging.OrNop(r.Logger)
	folder, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", folder, err)
	}
	files, err := Files(folder)
	if err != nil {
		return nil, err
	}
	outDir := filepath.Join(folder, ResultsDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating results directory: %w", err)
	}

	parallel := r.Parallel
	if parallel < 1 {
		parallel = 1
	}

	var processed, verdicts atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for _, file := range files {
		g.Go(func() error {
			res, err := r.analyzeFile(gCtx, file)
			if err != nil {
				return err
			}
			out := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(file), ".txt")+".json")
			if err := writeJSON(out, res); err != nil {
				return err
			}
			done := int(processed.Add(1))
			if res.Error == nil {
				verdicts.Add(1)
			}
			log.Info("file analyzed", zap.String("file", res.File), zap.Bool("verdict", res.Error == nil))
			if r.Progress != nil {
				r.Progress(done, len(files), res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	n := int(processed.Load())
	return &Summary{
		ProcessedFiles:   n,
		ResultsDirectory: outDir,
		Verdicts:         int(verdicts.Load()),
		Failures:         n - int(verdicts.Load()),
	}, nil
}

// analyzeFile returns the result for one file. Pipeline failures are
// folded into the result; only read errors and cancellation are returned.
func (r *Runner) analyzeFile(ctx context.Context, file string) (*Result, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	content := string(data)
	res := &Result{File: filepath.Base(file), Text: content, Model: r.Model}

	// Markup saved as .txt is still extracted. A file holding only a URL
	// is analyzed as text: batch runs never fetch.
	kind := source.KindText
	if source.Detect(content) == source.KindHTML {
		kind = source.KindHTML
	}
	input, src, err := source.ForKind(kind, content)
	if err != nil {
		return nil, err
	}

	a, err := r.Analyzer.Run(ctx, analyzer.Request{
		Input:     input,
		Source:    src,
		Model:     r.Model,
		WordLimit: r.WordLimit,
		Timeout:   r.Timeout,
	})
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, err
		}
		res.Error = errorEntry(err)
		return res, nil
	}

	res.RunID = a.RunID
	res.RawOutput = a.RawOutput
	words := a.Words
	res.Words = &words
	if v := a.Outcome.Verdict; v != nil {
		conf := v.Confidence
		res.Label = v.Label
		res.Confidence = &conf
		res.Rationale = v.Rationale
	} else {
		res.Error = &ResultError{Kind: "parse", Stage: a.Outcome.Failure.Stage, Message: a.Outcome.Failure.Detail}
	}
	return res, nil
}

func errorEntry(err error) *ResultError {
	var (
		empty   *model.EmptyInputError
		timeout *model.ModelTimeoutError
	)
	switch {
	case errors.As(err, &empty):
		return &ResultError{Kind: "empty_input", Message: err.Error()}
	case errors.As(err, &timeout):
		return &ResultError{Kind: "timeout", Message: err.Error()}
	default:
		return &ResultError{Kind: "unavailable", Message: err.Error()}
	}
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
