package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeConfigInvalid     = "CONFIG_INVALID"
	ErrCodePortNotDeclared   = "PORT_NOT_DECLARED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeExternalService   = "EXTERNAL_SERVICE"
	ErrCodeStepLimitExceeded = "STEP_LIMIT_EXCEEDED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeCapacity          = "CAPACITY"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeAbandoned         = "ABANDONED"
)

// FlowError is the structured error type for all engine operations.
type FlowError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	NodeID    string         `json:"node_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
	Cause     error          `json:"-"`
}

func (e *FlowError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message, Retryable: defaultRetryable(code)}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...), Retryable: defaultRetryable(code)}
}

// WithNode attaches a node ID to the error.
func (e *FlowError) WithNode(nodeID string) *FlowError {
	e.NodeID = nodeID
	return e
}

// WithSession attaches a session ID to the error.
func (e *FlowError) WithSession(sessionID string) *FlowError {
	e.SessionID = sessionID
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}

// WithRetryable overrides the retryable flag derived from the code.
func (e *FlowError) WithRetryable(retryable bool) *FlowError {
	e.Retryable = retryable
	return e
}

// IsRetryable reports whether the error is transient and worth retrying.
// Config and graph defects are fatal; timeouts and external-service failures
// are transient unless explicitly flagged otherwise.
func (e *FlowError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal reports whether the error must terminate the session immediately.
func (e *FlowError) IsFatal() bool {
	switch e.Code {
	case ErrCodeConfigInvalid, ErrCodePortNotDeclared, ErrCodeStepLimitExceeded, ErrCodeValidation:
		return true
	}
	return false
}

func defaultRetryable(code string) bool {
	switch code {
	case ErrCodeTimeout, ErrCodeExternalService, ErrCodeCapacity, ErrCodeStore:
		return true
	}
	return false
}
