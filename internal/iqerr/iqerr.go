// Package iqerr defines the error categories used across the feedback engine.
// Categories drive propagation policy: configuration and source errors abort a
// job, everything else stays contained to a single issue attempt.
package iqerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation decisions.
type Kind string

const (
	// KindConfiguration is invalid rubric weights or missing required settings.
	// Fatal at startup, never retried.
	KindConfiguration Kind = "configuration"
	// KindExternalSource is an unreachable or unauthorized issue tracker.
	// Fatal to the enclosing job.
	KindExternalSource Kind = "external_source"
	// KindLLM is a critique provider failure, timeout, or malformed output.
	// Recovered locally by degrading to rubric-only feedback.
	KindLLM Kind = "llm"
	// KindCache is an idempotency cache storage failure. Fatal to the single
	// issue attempt, surfaced distinctly so operators can tell duplicate risk
	// from a clean skip.
	KindCache Kind = "cache"
	// KindValidation is a score or shape out of bounds. Recovered by
	// discarding the invalid component.
	KindValidation Kind = "validation"
)

// Error is a categorized error with an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a categorized error.
func New(kind Kind, format string, a ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

// Wrap creates a categorized error wrapping a cause.
func Wrap(kind Kind, err error, format string, a ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...), Err: err}
}

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// LLMError carries provider-failure detail so callers can distinguish a
// timeout from malformed output.
type LLMError struct {
	Msg       string
	Timeout   bool
	Malformed bool
	Err       error
}

func (e *LLMError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("llm: %s", e.Msg)
}

func (e *LLMError) Unwrap() error { return e.Err }

// IsLLM reports whether err is a critique provider failure of any flavor.
func IsLLM(err error) bool {
	var e *LLMError
	return errors.As(err, &e) || IsKind(err, KindLLM)
}
