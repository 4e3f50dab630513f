package model

import (
	"encoding/json"
	"strings"
	"time"
)

// InputKind tags the content carried by a RawInput.
type InputKind string

const (
	KindText InputKind = "text"
	KindHTML InputKind = "html"
)

// RawInput is user-supplied content before normalization.
type RawInput struct {
	Kind    InputKind `json:"kind"`
	Content string    `json:"content"`
}

// PlainText wraps s as a text input.
func PlainText(s string) RawInput {
	return RawInput{Kind: KindText, Content: s}
}

// HTML wraps s as an HTML input.
func HTML(s string) RawInput {
	return RawInput{Kind: KindHTML, Content: s}
}

// IsBlank reports whether the input has no content after trimming whitespace.
func (r RawInput) IsBlank() bool {
	return strings.TrimSpace(r.Content) == ""
}

// Label is a political bias classification.
type Label string

const (
	LabelLeft    Label = "left"
	LabelRight   Label = "right"
	LabelNeutral Label = "neutral"
)

// Labels lists the allowed labels in the order they are presented to the model.
var Labels = []Label{LabelLeft, LabelRight, LabelNeutral}

// ParseLabel matches s case-insensitively against the allowed labels.
func ParseLabel(s string) (Label, bool) {
	switch Label(strings.ToLower(strings.TrimSpace(s))) {
	case LabelLeft:
		return LabelLeft, true
	case LabelRight:
		return LabelRight, true
	case LabelNeutral:
		return LabelNeutral, true
	default:
		return "", false
	}
}

// BiasVerdict is a validated classification returned by the model.
// Only the response parser constructs values of this type.
type BiasVerdict struct {
	// Label is the normalized (lower-case) bias label.
	Label Label `json:"label"`
	// Confidence is the model's confidence, within [0, 1].
	Confidence float64 `json:"confidence"`
	// Rationale is the model's short justification, trimmed.
	Rationale string `json:"rationale"`
}

// Outcome is the result of parsing model output: exactly one of Verdict or
// Failure is set.
type Outcome struct {
	Verdict *BiasVerdict `json:"verdict,omitempty"`
	Failure *ParseError  `json:"failure,omitempty"`
}

// Succeeded wraps a verdict in an Outcome.
func Succeeded(v BiasVerdict) Outcome {
	return Outcome{Verdict: &v}
}

// Failed wraps a parse failure in an Outcome.
func Failed(stage ParseStage, detail, raw string) Outcome {
	return Outcome{Failure: &ParseError{Stage: stage, Detail: detail, Raw: raw}}
}

// OK reports whether the outcome holds a verdict.
func (o Outcome) OK() bool {
	return o.Verdict != nil
}

// Err returns the parse failure as an error, or nil on success.
func (o Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure
}

// SourceInfo describes where the analyzed text came from.
type SourceInfo struct {
	// Source is "text", "html" or "url".
	Source string `json:"source"`
	// Extracted is true when text was extracted from markup.
	Extracted bool `json:"extracted"`
	// URL is the fetched address for URL inputs.
	URL string `json:"url,omitempty"`
}

// WordStats records how much of the normalized text reached the prompt.
type WordStats struct {
	Original int `json:"original_word_count"`
	Kept     int `json:"truncated_word_count"`
}

// Cut returns the number of words dropped by truncation.
func (w WordStats) Cut() int {
	if w.Original <= w.Kept {
		return 0
	}
	return w.Original - w.Kept
}

// MarshalJSON adds the derived words_cut field.
func (w WordStats) MarshalJSON() ([]byte, error) {
	type plain WordStats
	return json.Marshal(struct {
		plain
		Cut int `json:"words_cut"`
	}{plain(w), w.Cut()})
}

// Analysis is the caller-facing record of a single analysis run.
type Analysis struct {
	// RunID uniquely identifies the run; it also appears in the run log.
	RunID string `json:"run_id"`
	// Model is the model identifier the prompt was sent to.
	Model string `json:"model"`
	// Provider is the model client backend (e.g., "openai", "ollama").
	Provider string `json:"provider"`
	// Source describes the input.
	Source SourceInfo `json:"source"`
	// Words holds truncation statistics.
	Words WordStats `json:"words"`
	// Prompt is the exact prompt sent to the model.
	Prompt string `json:"prompt"`
	// RawOutput is the unmodified model output.
	RawOutput string `json:"raw_output"`
	// Outcome is the parsed verdict or the parse failure.
	Outcome Outcome `json:"outcome"`
	// AnalyzedAt is when the model call completed.
	AnalyzedAt time.Time `json:"analyzed_at"`
	// DurationMs is the wall-clock time of the whole pipeline.
	DurationMs int64 `json:"duration_ms"`
}

// RunLogEntry is the debug record written to the per-model run log.
type RunLogEntry struct {
	RunID     string
	Model     string
	Prompt    string
	Output    string
	Outcome   Outcome
	Timestamp time.Time
}

// ModelOption is a configured local model with a display name.
type ModelOption struct {
	Name    string `yaml:"name" json:"name"`
	Display string `yaml:"display" json:"display"`
}

// Title returns the display name, falling back to the model name.
func (m ModelOption) Title() string {
	if m.Display != "" {
		return m.Display
	}
	return m.Name
}
