package curriculum

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/curriculum-backend/internal/inference/engine"
	"github.com/yungbote/curriculum-backend/internal/inference/registry"
)

const (
	msgFailed       = "Generation failed. Please try again."
	msgTimedOut     = "Generation timed out. Please try again or select a different model."
	msgUnknownModel = "Unknown model."
)

// CombinedError carries two independent failures: both sub-calls of the
// parallel strategy, or the primary and fallback runs.
type CombinedError struct {
	Scope  string
	First  error
	Second error
}

func (e *CombinedError) Error() string {
	return fmt.Sprintf("%s: both attempts failed: first: %v; second: %v", e.Scope, e.First, e.Second)
}

func (e *CombinedError) Unwrap() []error { return []error{e.First, e.Second} }

// PartialFailure records the section lost when one parallel sub-call failed.
// It is attached to a successful outcome, never returned as an error.
type PartialFailure struct {
	Section string
	Err     error
}

func (p PartialFailure) Error() string { return p.Section + " failed: " + p.Err.Error() }

// ValidationError lists every rejected request field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, k := range sortedKeys(e.Fields) {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// stageError tags a failure with the state it happened in. Only generating
// and parsing failures may trigger a fallback.
type stageError struct {
	stage Stage
	err   error
}

func (e *stageError) Error() string { return string(e.stage) + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func atStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, err: err}
}

func fallbackStage(err error) bool {
	var se *stageError
	if !errors.As(err, &se) {
		return false
	}
	return se.stage == StageGenerating || se.stage == StageParsing
}

// UserMessage turns a terminal error into the short text shown to callers.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, registry.ErrUnknownModel):
		return msgUnknownModel
	case timedOut(err):
		return msgTimedOut
	default:
		return msgFailed
	}
}

// timedOut reports whether any failure in the error tree was a timeout.
func timedOut(err error) bool {
	if err == nil {
		return false
	}
	var ee *engine.Error
	if errors.As(err, &ee) && ee.Kind == engine.KindTimeout {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if timedOut(e) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return timedOut(u.Unwrap())
	}
	return false
}
