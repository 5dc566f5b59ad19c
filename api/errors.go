package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/agentgraph/graph"
)

// ErrorCode identifies an API error category.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrGraphNotFound      ErrorCode = "GRAPH_NOT_FOUND"
	ErrThreadNotFound     ErrorCode = "THREAD_NOT_FOUND"
	ErrNodeFailed         ErrorCode = "NODE_FAILED"
	ErrRecursionLimit     ErrorCode = "RECURSION_LIMIT"
	ErrCheckpointDisabled ErrorCode = "CHECKPOINT_DISABLED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Node       string    `json:"node,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// FromGraphError classifies an engine error. Errors that already are *Error
// pass through unchanged.
func FromGraphError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var nodeErr *graph.NodeError
	switch {
	case errors.Is(err, graph.ErrThreadNotFound):
		return NewError(ErrThreadNotFound, "thread not found").WithCause(err)
	case errors.Is(err, graph.ErrInvalidThread), errors.Is(err, graph.ErrInvalidCommand):
		return NewError(ErrInvalidRequest, err.Error()).WithCause(err)
	case errors.Is(err, graph.ErrCheckpointerRequired):
		return NewError(ErrCheckpointDisabled, "graph has no checkpointer").WithCause(err)
	case errors.Is(err, graph.ErrRecursionLimit):
		return NewError(ErrRecursionLimit, "recursion limit exceeded").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(ErrTimeout, "graph run timed out").WithCause(err).WithRetryable(true)
	case errors.As(err, &nodeErr):
		e := NewError(ErrNodeFailed, nodeErr.Err.Error()).WithCause(err)
		e.Node = nodeErr.Node
		return e
	default:
		return NewError(ErrInternalError, "internal error").WithCause(err)
	}
}
