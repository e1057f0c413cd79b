package layout

import (
	"errors"
	"fmt"
)

// Code identifies an error category so callers can decide whether a failure
// is fatal for the run, for one crate, or only for one file.
type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeConfiguration      Code = "CONFIGURATION"
	CodeMetricsUnavailable Code = "METRICS_UNAVAILABLE"
	CodeHighlightFailure   Code = "HIGHLIGHT_FAILURE"
	CodeEmptyCrate         Code = "EMPTY_CRATE"
	CodeWriterFailure      Code = "WRITER_FAILURE"
)

// Sentinels for errors.Is checks; matching is by code only.
var (
	ErrConfiguration      = &Error{Code: CodeConfiguration}
	ErrMetricsUnavailable = &Error{Code: CodeMetricsUnavailable}
	ErrHighlightFailure   = &Error{Code: CodeHighlightFailure}
	ErrEmptyCrate         = &Error{Code: CodeEmptyCrate}
	ErrWriterFailure      = &Error{Code: CodeWriterFailure}
)

// Error is a coded error with optional details and a wrapped cause.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetail attaches a key/value to the error and returns it.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns nil when err is nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Wrapped: err}
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// IsCode reports whether any error in err's chain has the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in the chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
