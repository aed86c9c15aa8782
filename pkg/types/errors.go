package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies pipeline failures
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidInput
	KindNetwork
	KindParse
	KindMalformedDetection
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindNetwork:
		return "network error"
	case KindParse:
		return "parse error"
	case KindMalformedDetection:
		return "malformed detection"
	default:
		return "unknown error"
	}
}

// Sentinels for errors.Is matching on kind only
var (
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrNetwork            = &Error{Kind: KindNetwork}
	ErrParse              = &Error{Kind: KindParse}
	ErrMalformedDetection = &Error{Kind: KindMalformedDetection}
)

// Error is a classified failure raised somewhere in the detection pipeline.
// Temporary is only meaningful for network errors and marks failures worth retrying.
type Error struct {
	Kind      ErrorKind
	Op        string
	Err       error
	Temporary bool
}

// NewError creates a classified error
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewNetworkError creates a network error, marking whether it is worth retrying
func NewNetworkError(op string, err error, temporary bool) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err, Temporary: temporary}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Retryable reports whether the failure is transient
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork && e.Temporary
}

// KindOf returns the kind of the first classified error in the chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a transient network failure
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

// RetryableStatus reports whether an HTTP status from a model server is worth retrying
func RetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
