package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrServiceRequired", ErrServiceRequired, "relayflow: service is required"},
		{"ErrHandlerRequired", ErrHandlerRequired, "relayflow: handler function is required"},
		{"ErrConsumeQueueRequired", ErrConsumeQueueRequired, "relayflow: consume queue is required"},
		{"ErrHandlerNameRequired", ErrHandlerNameRequired, "relayflow: handler name is required"},
		{"ErrPublisherRequired", ErrPublisherRequired, "relayflow: publisher is required"},
		{"ErrTopicRequired", ErrTopicRequired, "relayflow: topic is required"},
		{"ErrConfigRequired", ErrConfigRequired, "relayflow: configuration is required"},
		{"ErrLoggerRequired", ErrLoggerRequired, "relayflow: logger is required"},
		{"ErrDuplicateHandlerName", ErrDuplicateHandlerName, "relayflow: handler name already registered"},
		{"ErrBusNotReady", ErrBusNotReady, "relayflow: correlation bus is not ready"},
		{"ErrDeadlineExceeded", ErrDeadlineExceeded, "relayflow: aggregation deadline exceeded"},
		{"ErrDuplicateCorrelationID", ErrDuplicateCorrelationID, "relayflow: correlation id already registered"},
		{"ErrSessionStarted", ErrSessionStarted, "relayflow: aggregation session already started"},
		{"ErrQueryHandlerRequired", ErrQueryHandlerRequired, "relayflow: query handler is required"},
		{"ErrReplyAddressMissing", ErrReplyAddressMissing, "relayflow: reply_to metadata is missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDeadlineExceededMatchesContext(t *testing.T) {
	wrapped := fmt.Errorf("collect: %w", ErrDeadlineExceeded)

	assert.ErrorIs(t, wrapped, ErrDeadlineExceeded)
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
	assert.NotErrorIs(t, wrapped, context.Canceled)

	var timeout interface{ Timeout() bool }
	if assert.True(t, errors.As(wrapped, &timeout)) {
		assert.True(t, timeout.Timeout())
	}
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("invalid port")
	err := ConfigValidationError{Err: inner}

	assert.Contains(t, err.Error(), "invalid port")
	assert.ErrorIs(t, err, inner)
}

func TestPublishError(t *testing.T) {
	inner := errors.New("connection reset")
	err := &PublishError{Topic: "search", CorrelationID: "01H", Err: inner}

	assert.Equal(t, `relayflow: publish to "search" (correlation_id=01H) failed: connection reset`, err.Error())
	assert.ErrorIs(t, err, inner)

	var target *PublishError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", err), &target))
	assert.Equal(t, "search", target.Topic)
}
