package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

// Session is the per-call execution state. One session exists per live call;
// all node outputs and routing history accumulate here and nowhere else, so
// concurrent calls on the same workflow never observe each other.
type Session struct {
	ID              string                `json:"id"`
	CallID          string                `json:"call_id"`
	WorkflowID      string                `json:"workflow_id"`
	WorkflowVersion int                   `json:"workflow_version"`
	CurrentNodeID   string                `json:"current_node_id"`
	Status          schema.SessionStatus  `json:"status"`
	Variables       map[string]any        `json:"variables"`
	History         []schema.HistoryEntry `json:"history"`
	Steps           int                   `json:"steps"`
	LastError       string                `json:"last_error,omitempty"`
	StartedAt       time.Time             `json:"started_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	Deadline        time.Time             `json:"deadline"`
}

// New creates a running session positioned at the workflow's start node.
// initial seeds the variable map; the session owns a copy.
func New(callID, workflowID string, workflowVersion int, startNodeID string, initial map[string]any, ttl time.Duration) *Session {
	now := time.Now().UTC()
	vars := make(map[string]any, len(initial))
	for k, v := range initial {
		vars[k] = v
	}
	return &Session{
		ID:              uuid.NewString(),
		CallID:          callID,
		WorkflowID:      workflowID,
		WorkflowVersion: workflowVersion,
		CurrentNodeID:   startNodeID,
		Status:          schema.SessionStatusRunning,
		Variables:       vars,
		StartedAt:       now,
		UpdatedAt:       now,
		Deadline:        now.Add(ttl),
	}
}

// Terminal reports whether the session has reached a final status.
func (s *Session) Terminal() bool {
	return s.Status.Terminal()
}

// Expired reports whether the session outlived its deadline at t.
func (s *Session) Expired(t time.Time) bool {
	return !s.Deadline.IsZero() && t.After(s.Deadline)
}

// SetVariables merges vars into the session map, last writer wins.
func (s *Session) SetVariables(vars map[string]any) {
	if len(vars) == 0 {
		return
	}
	if s.Variables == nil {
		s.Variables = make(map[string]any, len(vars))
	}
	for k, v := range vars {
		s.Variables[k] = v
	}
}

// RecordStep appends a history entry for a completed node execution.
func (s *Session) RecordStep(nodeID, port string, started time.Time) {
	s.Steps++
	s.History = append(s.History, schema.HistoryEntry{
		NodeID:     nodeID,
		Port:       port,
		At:         started,
		DurationMs: time.Since(started).Milliseconds(),
	})
}

// Clone returns a deep copy safe to hand to readers while the engine
// goroutine keeps mutating the original.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Variables = make(map[string]any, len(s.Variables))
	for k, v := range s.Variables {
		cp.Variables[k] = v
	}
	cp.History = make([]schema.HistoryEntry, len(s.History))
	copy(cp.History, s.History)
	return &cp
}

// Store persists sessions. The engine is the single writer for any given
// session; stores only need to make individual operations atomic.
type Store interface {
	// Save inserts or replaces the session.
	Save(ctx context.Context, s *Session) error
	// Get returns the session or a NOT_FOUND FlowError.
	Get(ctx context.Context, id string) (*Session, error)
	// Delete removes the session; deleting an absent session is not an error.
	Delete(ctx context.Context, id string) error
	// List returns all stored sessions, in no particular order.
	List(ctx context.Context) ([]*Session, error)
}
