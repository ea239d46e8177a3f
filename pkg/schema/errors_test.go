package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowErrorBuilders(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewErrorf(ErrCodeExternalService, "crm lookup failed for %s", "c-1").
		WithNode("fetch_profile").
		WithSession("s-1").
		WithCause(cause).
		WithDetails(map[string]any{"endpoint": "https://crm.local"})

	assert.Equal(t, ErrCodeExternalService, err.Code)
	assert.Equal(t, "fetch_profile", err.NodeID)
	assert.Equal(t, "s-1", err.SessionID)
	assert.Equal(t, "https://crm.local", err.Details["endpoint"])
	assert.Contains(t, err.Error(), "EXTERNAL_SERVICE")
	assert.Contains(t, err.Error(), "fetch_profile")
	require.ErrorIs(t, err, cause)
}

func TestFlowErrorRetryableDefaults(t *testing.T) {
	tests := []struct {
		code      string
		retryable bool
	}{
		{ErrCodeTimeout, true},
		{ErrCodeExternalService, true},
		{ErrCodeCapacity, true},
		{ErrCodeStore, true},
		{ErrCodeConfigInvalid, false},
		{ErrCodePortNotDeclared, false},
		{ErrCodeStepLimitExceeded, false},
		{ErrCodeValidation, false},
		{ErrCodeNotFound, false},
		{ErrCodeAbandoned, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.retryable, NewError(tt.code, "x").IsRetryable(), tt.code)
	}

	// Explicit override wins over the code default.
	assert.False(t, NewError(ErrCodeTimeout, "x").WithRetryable(false).IsRetryable())
}

func TestFlowErrorFatalCodes(t *testing.T) {
	assert.True(t, NewError(ErrCodeConfigInvalid, "x").IsFatal())
	assert.True(t, NewError(ErrCodePortNotDeclared, "x").IsFatal())
	assert.True(t, NewError(ErrCodeStepLimitExceeded, "x").IsFatal())
	assert.True(t, NewError(ErrCodeValidation, "x").IsFatal())

	assert.False(t, NewError(ErrCodeTimeout, "x").IsFatal())
	assert.False(t, NewError(ErrCodeExternalService, "x").IsFatal())
}

func TestSessionStatusTerminal(t *testing.T) {
	assert.False(t, SessionStatusRunning.Terminal())
	assert.False(t, SessionStatusWaitingExternal.Terminal())
	assert.True(t, SessionStatusCompleted.Terminal())
	assert.True(t, SessionStatusAbandoned.Terminal())
	assert.True(t, SessionStatusFailed.Terminal())
}
