package model

import (
	"context"
	"fmt"
	"time"
)

// ParseStage identifies where parsing of model output failed.
type ParseStage string

const (
	StageNoJSON      ParseStage = "no-json-found"
	StageInvalidJSON ParseStage = "invalid-json"
	StageMissing     ParseStage = "missing-field"
	StageOutOfDomain ParseStage = "out-of-domain-value"
)

// ParseError reports model output that could not become a BiasVerdict.
type ParseError struct {
	Stage  ParseStage `json:"stage"`
	Detail string     `json:"detail"`
	Raw    string     `json:"raw"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model output (%s): %s", e.Stage, e.Detail)
}

// EmptyInputError means there was no text to analyze.
type EmptyInputError struct {
	// Reason says which stage found the input empty.
	Reason string
}

func (e *EmptyInputError) Error() string {
	if e.Reason == "" {
		return "input is empty"
	}
	return "input is empty: " + e.Reason
}

// ModelUnavailableError means the local inference service could not serve
// the request (unreachable, unknown model, non-success status).
type ModelUnavailableError struct {
	Model string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model %q unavailable: %v", e.Model, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// ModelTimeoutError means no response arrived within the allowed wait.
type ModelTimeoutError struct {
	Model string
	// After is the configured timeout, zero when unknown.
	After time.Duration
}

func (e *ModelTimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("model %q did not respond within %s", e.Model, e.After)
	}
	return fmt.Sprintf("model %q timed out", e.Model)
}

// Unwrap lets errors.Is(err, context.DeadlineExceeded) match timeouts.
func (e *ModelTimeoutError) Unwrap() error { return context.DeadlineExceeded }
