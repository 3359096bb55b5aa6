// ABOUTME: Shared failure taxonomy for the relay pipeline.
// ABOUTME: Classifies adapter and store errors into the kinds the orchestrator records.

package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for outcome recording and retry decisions.
type Kind string

const (
	// KindInvalidArgument means a local input check failed; never retried.
	KindInvalidArgument Kind = "invalid_argument"
	// KindPermanent means the provider rejected the request; never retried.
	KindPermanent Kind = "permanent"
	// KindTransientExhausted means retryable failures persisted past the retry budget.
	KindTransientExhausted Kind = "transient_exhausted"
	// KindAmbiguous means a send may or may not have reached the recipient.
	// Never retried automatically; re-sending is an operator decision.
	KindAmbiguous Kind = "ambiguous"
	// KindOverloaded means the per-user wait queue was full; caller should back off.
	KindOverloaded Kind = "overloaded"
)

// Error is a classified failure. It wraps the underlying cause so callers can
// still errors.Is/As through it.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error from a message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error. Returns nil if err is nil.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the classification from an error chain.
// Unclassified errors report KindTransientExhausted so an unknown failure is
// surfaced as retryable-and-spent rather than silently permanent.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransientExhausted
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}
