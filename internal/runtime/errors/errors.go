package errors

import (
	"context"
	sterrors "errors"
	"fmt"
)

var (
	ErrServiceRequired      = sterrors.New("relayflow: service is required")
	ErrHandlerRequired      = sterrors.New("relayflow: handler function is required")
	ErrConsumeQueueRequired = sterrors.New("relayflow: consume queue is required")
	ErrHandlerNameRequired  = sterrors.New("relayflow: handler name is required")
	ErrPublisherRequired    = sterrors.New("relayflow: publisher is required")
	ErrTopicRequired        = sterrors.New("relayflow: topic is required")
	ErrConfigRequired       = sterrors.New("relayflow: configuration is required")
	ErrLoggerRequired       = sterrors.New("relayflow: logger is required")
	ErrDuplicateHandlerName = sterrors.New("relayflow: handler name already registered")

	// ErrBusNotReady is returned by publishes attempted before the transport
	// connected or after the bus was closed.
	ErrBusNotReady = sterrors.New("relayflow: correlation bus is not ready")
	// ErrDuplicateCorrelationID is returned when a callback is registered under
	// an id that is still pending.
	ErrDuplicateCorrelationID = sterrors.New("relayflow: correlation id already registered")
	// ErrDeadlineExceeded signals that an aggregation did not drain in time.
	// It matches context.DeadlineExceeded through errors.Is.
	ErrDeadlineExceeded error = deadlineError{}

	// ErrSessionStarted is returned when Run is called twice on one session.
	ErrSessionStarted = sterrors.New("relayflow: aggregation session already started")

	ErrQueryHandlerRequired = sterrors.New("relayflow: query handler is required")
	ErrReplyAddressMissing  = sterrors.New("relayflow: reply_to metadata is missing")
)

type deadlineError struct{}

func (deadlineError) Error() string   { return "relayflow: aggregation deadline exceeded" }
func (deadlineError) Timeout() bool   { return true }
func (deadlineError) Temporary() bool { return true }

// Is reports true for context.DeadlineExceeded so callers can treat both alike.
func (deadlineError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// ConfigValidationError wraps the joined errors produced by config validation.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("relayflow: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// PublishError records which destination a publish failed on.
type PublishError struct {
	Topic         string
	CorrelationID string
	Err           error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("relayflow: publish to %q (correlation_id=%s) failed: %v", e.Topic, e.CorrelationID, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
