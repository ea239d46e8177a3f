package schema

import "time"

// SessionStatus represents the lifecycle state of a call session.
type SessionStatus string

const (
	SessionStatusRunning         SessionStatus = "running"
	SessionStatusWaitingExternal SessionStatus = "waiting_external"
	SessionStatusCompleted       SessionStatus = "completed"
	SessionStatusAbandoned       SessionStatus = "abandoned"
	SessionStatusFailed          SessionStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusAbandoned, SessionStatusFailed:
		return true
	}
	return false
}

// HistoryEntry records one executed step of a session.
type HistoryEntry struct {
	NodeID     string    `json:"node_id"`
	Port       string    `json:"port"`
	At         time.Time `json:"at"`
	DurationMs int64     `json:"duration_ms"`
}
