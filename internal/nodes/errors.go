package nodes

import (
	"context"
	"errors"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

// wrapCollaboratorError classifies a collaborator failure for the engine.
// Deadline expiry becomes TIMEOUT, cancellation propagates untouched (the
// session is being abandoned), anything else is a retryable external-service
// failure unless the collaborator already returned a typed FlowError.
func wrapCollaboratorError(nodeType string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return schema.NewErrorf(schema.ErrCodeTimeout, "%s: collaborator deadline exceeded", nodeType).WithCause(err)
	}
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeExternalService, "%s: %s", nodeType, err.Error()).WithCause(err)
}

// truthy implements the boolean interpretation used by boolean_logic field
// checks: false, zero, empty string and nil are false; everything else true.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	default:
		return true
	}
}
