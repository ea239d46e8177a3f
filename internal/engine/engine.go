package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kylasweb/ivrflow/internal/flow"
	"github.com/kylasweb/ivrflow/internal/logging"
	"github.com/kylasweb/ivrflow/internal/nodes"
	"github.com/kylasweb/ivrflow/internal/session"
	"github.com/kylasweb/ivrflow/internal/store"
	"github.com/kylasweb/ivrflow/internal/streaming"
	"github.com/kylasweb/ivrflow/pkg/schema"
)

// Engine execution defaults.
const (
	DefaultMaxSteps       = 1000
	DefaultSessionTTL     = time.Hour
	DefaultMaxConcurrent  = 256
	defaultStartWait      = time.Second
	defaultFinalizeBudget = 10 * time.Second
)

// Config tunes the engine. The zero value gets sane defaults.
type Config struct {
	// MaxSteps is the per-session step ceiling; exceeding it fails the
	// session. Guards against definition cycles the loader cannot rule out.
	MaxSteps int
	// SessionTTL bounds total session lifetime.
	SessionTTL time.Duration
	// NodeTimeout is the fallback per-node deadline.
	NodeTimeout time.Duration
	// MaxConcurrentSessions caps live sessions; StartSession beyond the cap
	// fails with CAPACITY.
	MaxConcurrentSessions int
	// CollaboratorLimits caps concurrent outbound calls per collaborator
	// class (see nodes.Collab*). Absent classes are unthrottled.
	CollaboratorLimits map[string]int
	// AcquireWait bounds queueing for a collaborator slot.
	AcquireWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.NodeTimeout <= 0 {
		c.NodeTimeout = DefaultNodeTimeout
	}
	if c.MaxConcurrentSessions <= 0 {
		c.MaxConcurrentSessions = DefaultMaxConcurrent
	}
	return c
}

// StartRequest describes a new call entering a workflow.
type StartRequest struct {
	WorkflowID string
	// Version pins a definition; 0 means latest.
	Version   int
	CallID    string
	Variables map[string]any
}

// ExternalResult resumes a session parked in waiting_external: the node that
// initiated the asynchronous operation, the port it resolved to, plus any
// variables it produced.
type ExternalResult struct {
	NodeID    string
	Port      string
	Variables map[string]any
}

type liveSession struct {
	cancel context.CancelFunc
	// resume is non-nil only while the drive loop is blocked in
	// waiting_external; waitNodeID then names the node that parked the
	// session. Buffered 1; both guarded by Engine.mu.
	resume     chan ExternalResult
	waitNodeID string
}

// Engine drives call sessions through their workflow graphs. Each session
// runs on its own goroutine with exclusive write access to its state;
// sessions share only the immutable definition and the node catalog.
type Engine struct {
	cfg      Config
	registry *flow.Registry
	steps    *StepExecutor
	sessions session.Store
	archiver store.Archiver
	hub      streaming.EventHub
	logger   *slog.Logger

	mu     sync.Mutex
	live   map[string]*liveSession
	closed bool

	sem chan struct{}
	wg  sync.WaitGroup
}

// New creates an engine. archiver and hub may be nil.
func New(cfg Config, registry *flow.Registry, catalog *nodes.Catalog, sessions session.Store, archiver store.Archiver, hub streaming.EventHub, logger *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	limiter := NewCollabLimiter(cfg.CollaboratorLimits, cfg.AcquireWait)
	return &Engine{
		cfg:      cfg,
		registry: registry,
		steps:    NewStepExecutor(catalog, limiter, hub, logger, cfg.NodeTimeout),
		sessions: sessions,
		archiver: archiver,
		hub:      hub,
		logger:   logger,
		live:     make(map[string]*liveSession),
		sem:      make(chan struct{}, cfg.MaxConcurrentSessions),
	}
}

// StartSession creates a session at the workflow's start node and begins
// driving it. Returns a snapshot of the newly created session.
func (e *Engine) StartSession(ctx context.Context, req StartRequest) (*session.Session, error) {
	if req.WorkflowID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow id is required")
	}
	if req.CallID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "call id is required")
	}

	var (
		def *flow.Definition
		err error
	)
	if req.Version > 0 {
		def, err = e.registry.Get(req.WorkflowID, req.Version)
	} else {
		def, err = e.registry.Latest(req.WorkflowID)
	}
	if err != nil {
		return nil, err
	}

	// Admission control before any state is created.
	waitCtx, cancel := context.WithTimeout(ctx, defaultStartWait)
	defer cancel()
	select {
	case e.sem <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, schema.NewErrorf(schema.ErrCodeCapacity,
			"engine at capacity (%d live sessions)", e.cfg.MaxConcurrentSessions)
	}

	s := session.New(req.CallID, def.ID(), def.Version(), def.StartNodeID(), req.Variables, e.cfg.SessionTTL)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		sessCancel()
		<-e.sem
		return nil, schema.NewError(schema.ErrCodeConflict, "engine is shut down")
	}
	e.live[s.ID] = &liveSession{cancel: sessCancel}
	e.mu.Unlock()

	if err := e.sessions.Save(ctx, s); err != nil {
		e.dropLive(s.ID)
		sessCancel()
		<-e.sem
		return nil, err
	}

	e.publish(ctx, s.ID, "", schema.EventSessionStarted, map[string]any{
		"call_id":     s.CallID,
		"workflow_id": s.WorkflowID,
		"version":     s.WorkflowVersion,
	})

	snapshot := s.Clone()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer sessCancel()
		defer func() { <-e.sem }()
		defer e.dropLive(s.ID)
		e.drive(sessCtx, def, s)
	}()
	return snapshot, nil
}

// GetSession returns the latest persisted snapshot of the session.
func (e *Engine) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return e.sessions.Get(ctx, id)
}

// AbandonSession ends a live session because the caller hung up. Safe to
// call on sessions already finished; those return INVALID_TRANSITION.
func (e *Engine) AbandonSession(ctx context.Context, id string) error {
	e.mu.Lock()
	ls, ok := e.live[id]
	e.mu.Unlock()
	if ok {
		ls.cancel()
		return nil
	}

	// Not live: either unknown or already terminal.
	s, err := e.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeInvalidTransition,
		"session is already %s", s.Status).WithSession(id)
}

// NotifyExternalResult delivers an asynchronous outcome to a session in
// waiting_external. The result must name the node that parked the session, so
// a late callback for an earlier node cannot resume the wrong step. The port
// is validated against the waiting node by the drive loop.
func (e *Engine) NotifyExternalResult(ctx context.Context, id string, res ExternalResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls, ok := e.live[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "session %q is not live", id).WithSession(id)
	}
	if ls.resume == nil {
		return schema.NewError(schema.ErrCodeInvalidTransition,
			"session is not waiting for an external result").WithSession(id)
	}
	if res.NodeID != ls.waitNodeID {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"external result targets node %q but session is waiting at node %q",
			res.NodeID, ls.waitNodeID).WithSession(id)
	}
	select {
	case ls.resume <- res:
		return nil
	default:
		return schema.NewError(schema.ErrCodeConflict,
			"external result already delivered").WithSession(id)
	}
}

// Subscribe exposes the session status feed.
func (e *Engine) Subscribe(ctx context.Context, filter streaming.EventFilter) (<-chan streaming.StreamEvent, func(), error) {
	if e.hub == nil {
		return nil, nil, schema.NewError(schema.ErrCodeNotFound, "event streaming is not enabled")
	}
	return e.hub.Subscribe(ctx, filter)
}

// LiveSessions reports the number of sessions currently being driven.
func (e *Engine) LiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

// Shutdown cancels all live sessions and waits for their drive loops to
// finalize, or until ctx expires.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	for _, ls := range e.live {
		ls.cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drive runs the session to a terminal status. It is the only writer of the
// session state for its whole lifetime.
func (e *Engine) drive(ctx context.Context, def *flow.Definition, s *session.Session) {
	logger := e.logger.With("session_id", s.ID, "call_id", s.CallID, "workflow_id", s.WorkflowID)

	for {
		if ctx.Err() != nil {
			e.finalize(s, schema.SessionStatusAbandoned, "", logger)
			return
		}

		node, ok := def.Node(s.CurrentNodeID)
		if !ok {
			e.finalize(s, schema.SessionStatusFailed,
				"current node "+s.CurrentNodeID+" not in definition", logger)
			return
		}

		if node.Terminal() {
			e.completeAt(s, node, logger)
			return
		}

		if s.Steps >= e.cfg.MaxSteps {
			e.failStep(s, node.ID, schema.NewErrorf(schema.ErrCodeStepLimitExceeded,
				"step ceiling %d reached", e.cfg.MaxSteps), logger)
			return
		}
		if s.Expired(time.Now().UTC()) {
			e.finalize(s, schema.SessionStatusAbandoned, "session ttl exceeded", logger)
			return
		}

		started := time.Now().UTC()
		stepCtx := logging.WithIDs(ctx, s.ID, node.ID, s.CallID)
		out, err := e.steps.RunStep(stepCtx, node, nodes.Input{
			SessionID: s.ID,
			CallID:    s.CallID,
			Vars:      s.Variables,
		})

		switch {
		case err != nil:
			if ctx.Err() != nil {
				e.finalize(s, schema.SessionStatusAbandoned, "", logger)
				return
			}
			if !e.routeError(def, s, node, err, started, logger) {
				return
			}
		case out.Wait:
			if !e.awaitExternal(ctx, def, s, node, out, started, logger) {
				return
			}
		default:
			if !e.advance(def, s, node, out, started, logger) {
				return
			}
		}
	}
}

// advance applies a step outcome: merge variables, validate the port, record
// history, move to the edge target. Returns false when the session ended.
func (e *Engine) advance(def *flow.Definition, s *session.Session, node *flow.Node, out *nodes.Outcome, started time.Time, logger *slog.Logger) bool {
	if !node.HasPort(out.Port) {
		e.failStep(s, node.ID, schema.NewErrorf(schema.ErrCodePortNotDeclared,
			"node %s resolved to undeclared port %q", node.ID, out.Port).WithNode(node.ID), logger)
		return false
	}
	next, ok := def.Next(node.ID, out.Port)
	if !ok {
		e.failStep(s, node.ID, schema.NewErrorf(schema.ErrCodePortNotDeclared,
			"no edge from node %s port %q", node.ID, out.Port).WithNode(node.ID), logger)
		return false
	}

	s.SetVariables(out.Variables)
	s.RecordStep(node.ID, out.Port, started)
	s.CurrentNodeID = next
	s.UpdatedAt = time.Now().UTC()

	if err := e.save(s); err != nil {
		logger.Error("failed to persist session", "error", err)
		e.finalize(s, schema.SessionStatusFailed, "session store unavailable", logger)
		return false
	}

	e.publishBg(s.ID, node.ID, schema.EventStepCompleted, map[string]any{
		"port":        out.Port,
		"next_node":   next,
		"step":        s.Steps,
		"diagnostics": out.Diagnostics,
	})
	return true
}

// routeError handles a step that exhausted its retries or failed fatally.
// Fatal errors end the session; transient ones route to the node's error or
// failure port when one is declared. Returns false when the session ended.
func (e *Engine) routeError(def *flow.Definition, s *session.Session, node *flow.Node, err error, started time.Time, logger *slog.Logger) bool {
	var flowErr *schema.FlowError
	if errors.As(err, &flowErr) && flowErr.IsFatal() {
		e.failStep(s, node.ID, err, logger)
		return false
	}

	for _, port := range []string{schema.PortError, schema.PortFailure} {
		if _, ok := def.Next(node.ID, port); !ok {
			continue
		}
		logger.Warn("routing step error to declared port",
			"node_id", node.ID, "port", port, "error", err)
		s.LastError = err.Error()
		return e.advance(def, s, node, &nodes.Outcome{Port: port}, started, logger)
	}

	e.failStep(s, node.ID, err, logger)
	return false
}

// awaitExternal parks the session in waiting_external until the result
// arrives, the caller hangs up, or the session deadline passes. Returns
// false when the session ended.
func (e *Engine) awaitExternal(ctx context.Context, def *flow.Definition, s *session.Session, node *flow.Node, out *nodes.Outcome, started time.Time, logger *slog.Logger) bool {
	s.SetVariables(out.Variables)
	if err := Transition(s, schema.SessionStatusWaitingExternal); err != nil {
		e.failStep(s, node.ID, err, logger)
		return false
	}
	if err := e.save(s); err != nil {
		logger.Error("failed to persist session", "error", err)
		e.finalize(s, schema.SessionStatusFailed, "session store unavailable", logger)
		return false
	}

	resume := make(chan ExternalResult, 1)
	e.mu.Lock()
	if ls, ok := e.live[s.ID]; ok {
		ls.resume = resume
		ls.waitNodeID = node.ID
	}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		if ls, ok := e.live[s.ID]; ok {
			ls.resume = nil
			ls.waitNodeID = ""
		}
		e.mu.Unlock()
	}()

	e.publishBg(s.ID, node.ID, schema.EventSessionWaiting, nil)

	wait := time.NewTimer(time.Until(s.Deadline))
	defer wait.Stop()

	select {
	case res := <-resume:
		if err := Transition(s, schema.SessionStatusRunning); err != nil {
			e.failStep(s, node.ID, err, logger)
			return false
		}
		e.publishBg(s.ID, node.ID, schema.EventSessionResumed, map[string]any{"port": res.Port})
		return e.advance(def, s, node, &nodes.Outcome{Port: res.Port, Variables: res.Variables}, started, logger)
	case <-ctx.Done():
		e.finalize(s, schema.SessionStatusAbandoned, "", logger)
		return false
	case <-wait.C:
		e.finalize(s, schema.SessionStatusAbandoned, "session ttl exceeded while waiting", logger)
		return false
	}
}

// completeAt finishes the session at an end node, recording its disposition.
func (e *Engine) completeAt(s *session.Session, node *flow.Node, logger *slog.Logger) {
	if cfg, ok := node.Config.(*schema.EndConfig); ok && cfg.Disposition != "" {
		s.SetVariables(map[string]any{"disposition": cfg.Disposition})
	}
	s.RecordStep(node.ID, "", time.Now().UTC())
	e.finalize(s, schema.SessionStatusCompleted, "", logger)
}

// failStep ends the session as failed with the step error.
func (e *Engine) failStep(s *session.Session, nodeID string, err error, logger *slog.Logger) {
	logger.Error("session failed", "node_id", nodeID, "error", err)
	s.LastError = err.Error()
	e.finalize(s, schema.SessionStatusFailed, err.Error(), logger)
}

// finalize moves the session to a terminal status, persists it, archives it,
// and emits the terminal event.
func (e *Engine) finalize(s *session.Session, status schema.SessionStatus, reason string, logger *slog.Logger) {
	if s.Status.Terminal() {
		return
	}
	if err := Transition(s, status); err != nil {
		// waiting_external -> completed is not a legal move; go through failed.
		s.Status = status
		s.UpdatedAt = time.Now().UTC()
	}
	if reason != "" && s.LastError == "" && status != schema.SessionStatusCompleted {
		s.LastError = reason
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultFinalizeBudget)
	defer cancel()

	if err := e.sessions.Save(ctx, s); err != nil {
		logger.Error("failed to persist terminal session", "error", err)
	}
	if e.archiver != nil {
		if err := e.archiver.Archive(ctx, s); err != nil {
			logger.Error("failed to archive session", "error", err)
		}
	}

	event := map[schema.SessionStatus]string{
		schema.SessionStatusCompleted: schema.EventSessionCompleted,
		schema.SessionStatusAbandoned: schema.EventSessionAbandoned,
		schema.SessionStatusFailed:    schema.EventSessionFailed,
	}[status]
	payload := map[string]any{"steps": s.Steps}
	if reason != "" {
		payload["reason"] = reason
	}
	if s.LastError != "" {
		payload["error"] = s.LastError
	}
	e.publish(ctx, s.ID, s.CurrentNodeID, event, payload)

	logger.Info("session finished", "status", status, "steps", s.Steps)
}

func (e *Engine) save(s *session.Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultFinalizeBudget)
	defer cancel()
	return e.sessions.Save(ctx, s)
}

func (e *Engine) dropLive(id string) {
	e.mu.Lock()
	delete(e.live, id)
	e.mu.Unlock()
}

func (e *Engine) publish(ctx context.Context, sessionID, nodeID, eventType string, payload any) {
	if e.hub == nil {
		return
	}
	_ = e.hub.Publish(ctx, streaming.StreamEvent{
		SessionID: sessionID,
		NodeID:    nodeID,
		EventType: eventType,
		Payload:   payload,
	})
}

func (e *Engine) publishBg(sessionID, nodeID, eventType string, payload any) {
	e.publish(context.Background(), sessionID, nodeID, eventType, payload)
}
