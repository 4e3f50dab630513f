// Package runlog keeps the latest prompt and raw output per model on disk
// for debugging.
//
// Each model has one file that is replaced on every run; no history is
// kept. Recording never fails the caller: write errors become a warning
// and a metric.
package runlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/timvw/bias-lens/internal/logging"
	"github.com/timvw/bias-lens/internal/model"
	"github.com/timvw/bias-lens/internal/otel"
)

// Logger writes run log entries in the background.
type Logger struct {
	override string
	log      *zap.Logger
	metrics  *otel.Metrics

	mu    sync.Mutex
	files map[string]*fileState
	wg    sync.WaitGroup
}

// fileState orders writes to one log file. Entries are numbered when they
// are recorded; a write never replaces a newer entry already on disk.
type fileState struct {
	mu      sync.Mutex
	next    uint64
	applied uint64
}

// New creates a logger. override is the BIAS_LOG_PATH-style value resolved
// by ResolvePath; log and metrics may be nil.
func New(override string, log *zap.Logger, metrics *otel.Metrics) *Logger {
	return &Logger{
		override: override,
		log:      logging.OrNop(log),
		metrics:  metrics,
		files:    make(map[string]*fileState),
	}
}

// PathFor returns the file the entry for modelName is written to.
func (l *Logger) PathFor(modelName string) string {
	return ResolvePath(l.override, modelName)
}

// Record writes entry without blocking the caller. Use Flush to wait for
// pending writes. When several entries target the same file, the one
// recorded last is what the file ends up holding.
func (l *Logger) Record(entry model.RunLogEntry) {
	if l == nil {
		return
	}
	path := l.PathFor(entry.Model)
	fs, seq := l.reserve(path)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		written, err := l.write(fs, seq, path, Format(entry))
		if err != nil {
			l.log.Warn("run log write failed",
				zap.String("path", path),
				zap.String("model", entry.Model),
				zap.Error(err))
			l.metrics.RecordRunLogFailure(context.Background())
			return
		}
		if !written {
			l.log.Debug("run log entry superseded", zap.String("path", path), zap.String("run_id", entry.RunID))
			return
		}
		l.log.Debug("run log written", zap.String("path", path), zap.String("run_id", entry.RunID))
	}()
}

// Flush waits until every recorded entry has been written or has failed.
func (l *Logger) Flush() {
	if l == nil {
		return
	}
	l.wg.Wait()
}

// reserve returns the state for path and the next sequence number on it.
func (l *Logger) reserve(path string) (*fileState, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fs, ok := l.files[path]
	if !ok {
		fs = &fileState{}
		l.files[path] = fs
	}
	fs.next++
	return fs, fs.next
}

// write replaces path with data via a temp file and rename, so readers never
// see a half-written entry. It reports false when a later entry has already
// been written.
func (l *Logger) write(fs *fileState, seq uint64, path string, data []byte) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if seq <= fs.applied {
		return false, nil
	}
	if err := replaceFile(path, data); err != nil {
		return false, err
	}
	fs.applied = seq
	return true, nil
}

func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace log file: %w", err)
	}
	return nil
}

// Format renders an entry in the run log layout.
func Format(entry model.RunLogEntry) []byte {
	var b bytes.Buffer
	b.WriteString("=== Run ===\n")
	fmt.Fprintf(&b, "run_id: %s\n", entry.RunID)
	fmt.Fprintf(&b, "model: %s\n", entry.Model)
	fmt.Fprintf(&b, "timestamp: %s\n", entry.Timestamp.UTC().Format(time.RFC3339))
	b.WriteString("\n=== Prompt ===\n")
	b.WriteString(entry.Prompt)
	b.WriteString("\n\n=== Raw Output ===\n")
	b.WriteString(entry.Output)
	b.WriteString("\n\n=== Parsed JSON ===\n")
	switch {
	case entry.Outcome.Verdict != nil:
		data, err := json.MarshalIndent(entry.Outcome.Verdict, "", "  ")
		if err != nil {
			b.WriteString("None\n")
			break
		}
		b.Write(data)
		b.WriteString("\n")
	case entry.Outcome.Failure != nil:
		b.WriteString("None\n")
		fmt.Fprintf(&b, "parse failure (%s): %s\n", entry.Outcome.Failure.Stage, entry.Outcome.Failure.Detail)
	default:
		b.WriteString("None\n")
	}
	return b.Bytes()
}
