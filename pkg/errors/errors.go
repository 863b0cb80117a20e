package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeCheckpoint  ErrorType = "checkpoint"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Class is the coarse category the pacing layer acts on.
type Class string

const (
	// ClassFatal errors are never retried and end the run.
	ClassFatal Class = "fatal"
	// ClassTransient errors are retried after a cooldown.
	ClassTransient Class = "transient"
	// ClassItem errors belong to a single item and are skipped in batches.
	ClassItem Class = "item"
)

// Error represents an API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	// Target is the username or shortcode the failed request was about.
	Target string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	if e.Target != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Target)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Class maps the error type onto its pacing class.
func (e *Error) Class() Class {
	return ClassFor(e.Type)
}

// New creates a typed error.
func New(t ErrorType, code int, message string) *Error {
	return &Error{Type: t, Code: code, Message: message}
}

// Wrap creates a typed error around a lower level cause.
func Wrap(t ErrorType, err error, message string) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// WithTarget returns a copy of e annotated with target.
func (e *Error) WithTarget(target string) *Error {
	c := *e
	c.Target = target
	return &c
}

// ClassFor returns the pacing class of an error type.
func ClassFor(t ErrorType) Class {
	switch t {
	case ErrorTypeCheckpoint, ErrorTypeAuth:
		return ClassFatal
	case ErrorTypeParsing, ErrorTypeNotFound:
		return ClassItem
	default:
		return ClassTransient
	}
}

// ClassOf classifies an arbitrary error. Untyped errors are transient;
// context cancellation is fatal since nothing can be retried after it.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Class()
	}
	return ClassTransient
}

// RetryClassOf is ClassOf for attempts inside one retry sequence. A rejected
// login or session is worth another attempt there; only a checkpoint or a
// cancelled context ends the sequence early.
func RetryClassOf(err error) Class {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Type == ErrorTypeAuth {
		return ClassTransient
	}
	return ClassOf(err)
}

// IsFatal reports whether err must stop the run.
func IsFatal(err error) bool {
	return ClassOf(err) == ClassFatal
}

// IsCheckpoint reports whether err is a verification challenge.
func IsCheckpoint(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Type == ErrorTypeCheckpoint
}
