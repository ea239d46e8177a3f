package store

import (
	"context"
	"sync"
	"time"

	"github.com/kylasweb/ivrflow/internal/session"
	"github.com/kylasweb/ivrflow/pkg/schema"
)

// Record is the durable snapshot of a finished session: final status,
// variables, and the full routing history for replay and reporting.
type Record struct {
	SessionID       string                `json:"session_id"`
	CallID          string                `json:"call_id"`
	WorkflowID      string                `json:"workflow_id"`
	WorkflowVersion int                   `json:"workflow_version"`
	Status          schema.SessionStatus  `json:"status"`
	Variables       map[string]any        `json:"variables,omitempty"`
	History         []schema.HistoryEntry `json:"history,omitempty"`
	Steps           int                   `json:"steps"`
	LastError       string                `json:"last_error,omitempty"`
	StartedAt       time.Time             `json:"started_at"`
	EndedAt         time.Time             `json:"ended_at"`
}

// Archiver persists terminal sessions. Implementations must be safe for
// concurrent use; the engine archives from per-session goroutines.
type Archiver interface {
	Archive(ctx context.Context, s *session.Session) error
	Get(ctx context.Context, sessionID string) (*Record, error)
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*Record, error)
}

func recordFrom(s *session.Session) *Record {
	return &Record{
		SessionID:       s.ID,
		CallID:          s.CallID,
		WorkflowID:      s.WorkflowID,
		WorkflowVersion: s.WorkflowVersion,
		Status:          s.Status,
		Variables:       s.Variables,
		History:         s.History,
		Steps:           s.Steps,
		LastError:       s.LastError,
		StartedAt:       s.StartedAt,
		EndedAt:         s.UpdatedAt,
	}
}

// MemoryArchiver keeps records in memory. Used in tests and single-process
// deployments that do not need durable history.
type MemoryArchiver struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
}

// NewMemoryArchiver creates an empty in-memory archiver.
func NewMemoryArchiver() *MemoryArchiver {
	return &MemoryArchiver{records: make(map[string]*Record)}
}

func (m *MemoryArchiver) Archive(ctx context.Context, s *session.Session) error {
	if !s.Terminal() {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"cannot archive session in status %q", s.Status).WithSession(s.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[s.ID]; !exists {
		m.order = append(m.order, s.ID)
	}
	m.records[s.ID] = recordFrom(s.Clone())
	return nil
}

func (m *MemoryArchiver) Get(ctx context.Context, sessionID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "archived session %q not found", sessionID)
	}
	return rec, nil
}

func (m *MemoryArchiver) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Record
	for i := len(m.order) - 1; i >= 0; i-- {
		rec := m.records[m.order[i]]
		if rec.WorkflowID != workflowID {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

var _ Archiver = (*MemoryArchiver)(nil)
