package schema

// Event type constants for the session status feed.
const (
	EventSessionStarted   = "session_started"
	EventStepCompleted    = "step_completed"
	EventSessionWaiting   = "session_waiting"
	EventSessionResumed   = "session_resumed"
	EventSessionCompleted = "session_completed"
	EventSessionAbandoned = "session_abandoned"
	EventSessionFailed    = "session_failed"
	EventNodeRetrying     = "node_retrying"
)
