package engine

import (
	"time"

	"github.com/kylasweb/ivrflow/internal/session"
	"github.com/kylasweb/ivrflow/pkg/schema"
)

// Session lifecycle transitions. Terminal statuses have no outgoing edges;
// a session that completed, failed, or was abandoned never runs again.
var sessionTransitions = map[schema.SessionStatus][]schema.SessionStatus{
	schema.SessionStatusRunning: {
		schema.SessionStatusWaitingExternal,
		schema.SessionStatusCompleted,
		schema.SessionStatusAbandoned,
		schema.SessionStatusFailed,
	},
	schema.SessionStatusWaitingExternal: {
		schema.SessionStatusRunning,
		schema.SessionStatusAbandoned,
		schema.SessionStatusFailed,
	},
}

// ValidTransition reports whether from -> to is a legal lifecycle move.
func ValidTransition(from, to schema.SessionStatus) bool {
	for _, allowed := range sessionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition validates and applies a status change on the session.
func Transition(s *session.Session, to schema.SessionStatus) error {
	if !ValidTransition(s.Status, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid session transition: %s -> %s", s.Status, to).
			WithSession(s.ID)
	}
	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}
