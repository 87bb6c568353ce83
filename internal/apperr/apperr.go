// Package apperr defines the error taxonomy shared by every export stage.
//
// Each stage returns an *Error carrying a Kind so the caller can tell a bad
// option apart from an engine failure or a timeout without string matching.
// All kinds abort the run; Housekeeping errors are the exception and are
// reported next to a successful export instead of replacing it.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an export failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration covers missing, conflicting or malformed options.
	KindConfiguration
	// KindSchema covers catalog schemas the projection cannot be built from.
	KindSchema
	// KindQuery carries a failure reported by the query engine.
	KindQuery
	// KindTimeout means the query did not finish before its deadline.
	KindTimeout
	// KindOutput covers missing or empty artifacts, including the previous export.
	KindOutput
	// KindHousekeeping covers rename/copy/delete steps after the authoritative write.
	KindHousekeeping
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindSchema:
		return "schema"
	case KindQuery:
		return "query"
	case KindTimeout:
		return "timeout"
	case KindOutput:
		return "output"
	case KindHousekeeping:
		return "housekeeping"
	default:
		return "unknown"
	}
}

// Error is the concrete error returned across component boundaries.
type Error struct {
	Kind   Kind
	Op     string // operation that failed, e.g. "plan window"
	Detail string
	Err    error

	// Timeout-only fields.
	Stage   string
	Elapsed time.Duration
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg += " in " + e.Op
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Kind == KindTimeout {
		msg += fmt.Sprintf(" (stage %s, elapsed %s)", e.Stage, e.Elapsed)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error. Returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Configuration is shorthand for New(KindConfiguration, ...).
func Configuration(op, format string, args ...any) *Error {
	return New(KindConfiguration, op, format, args...)
}

// Timeout builds a timeout error for a query stuck in stage.
func Timeout(op, stage string, elapsed time.Duration) *Error {
	return &Error{
		Kind:    KindTimeout,
		Op:      op,
		Detail:  "deadline reached before query finished",
		Stage:   stage,
		Elapsed: elapsed,
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
