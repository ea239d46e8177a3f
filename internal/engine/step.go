package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/kylasweb/ivrflow/internal/flow"
	"github.com/kylasweb/ivrflow/internal/logging"
	"github.com/kylasweb/ivrflow/internal/nodes"
	"github.com/kylasweb/ivrflow/internal/streaming"
	"github.com/kylasweb/ivrflow/pkg/schema"
)

// DefaultNodeTimeout bounds a single node execution when neither the node
// nor its contract declares a deadline.
const DefaultNodeTimeout = 30 * time.Second

// StepExecutor runs one node to one outcome: deadline, collaborator slot,
// and transient-error retries all live here. It never touches the session;
// the drive loop owns all session mutation.
type StepExecutor struct {
	catalog        *nodes.Catalog
	limiter        *CollabLimiter
	hub            streaming.EventHub
	logger         *slog.Logger
	defaultTimeout time.Duration
}

// NewStepExecutor creates a step executor. hub may be nil to disable retry
// events.
func NewStepExecutor(catalog *nodes.Catalog, limiter *CollabLimiter, hub streaming.EventHub, logger *slog.Logger, defaultTimeout time.Duration) *StepExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultNodeTimeout
	}
	return &StepExecutor{
		catalog:        catalog,
		limiter:        limiter,
		hub:            hub,
		logger:         logger,
		defaultTimeout: defaultTimeout,
	}
}

// RunStep executes the node until it yields an outcome or exhausts its retry
// budget. Fatal errors return immediately; transient ones retry with backoff
// per the node's policy. ctx is the session context; its cancellation stops
// everything.
func (se *StepExecutor) RunStep(ctx context.Context, node *flow.Node, in nodes.Input) (*nodes.Outcome, error) {
	contract, err := se.catalog.Get(node.Type)
	if err != nil {
		return nil, err
	}

	// Whole-step budget. Per-operation budgets live inside the executor and
	// expire earlier, so inner policies like AMD fail-open can still run.
	timeout := se.defaultTimeout
	if contract.DefaultTimeout > 0 {
		timeout = contract.DefaultTimeout
	}
	if node.Timeout > 0 {
		timeout = node.Timeout
	}

	policy := retryPolicyOf(node.Config)
	attempts := MaxAttempts(policy)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			se.emitRetry(ctx, in.SessionID, node.ID, attempt, lastErr)
			if err := WaitForBackoff(ctx, ComputeBackoff(policy, attempt-1)); err != nil {
				return nil, err
			}
		}

		out, err := se.attempt(ctx, contract, node, in, timeout)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			// Session went away; its own error wins over whatever the
			// collaborator returned.
			return nil, ctx.Err()
		}
		if !IsRetryableError(err) {
			return nil, err
		}

		logging.LogWith(ctx, se.logger).Warn("node attempt failed",
			"node_id", node.ID, "attempt", attempt+1, "error", err)
	}

	return nil, lastErr
}

func (se *StepExecutor) attempt(ctx context.Context, contract nodes.Contract, node *flow.Node, in nodes.Input, timeout time.Duration) (*nodes.Outcome, error) {
	release, err := se.limiter.Acquire(ctx, contract.Collaborator)
	if err != nil {
		return nil, err
	}
	defer release()

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return contract.Executor.Execute(stepCtx, node.Config, in)
}

func (se *StepExecutor) emitRetry(ctx context.Context, sessionID, nodeID string, attempt int, cause error) {
	if se.hub == nil {
		return
	}
	_ = se.hub.Publish(ctx, streaming.StreamEvent{
		SessionID: sessionID,
		NodeID:    nodeID,
		EventType: schema.EventNodeRetrying,
		Payload:   map[string]any{"attempt": attempt, "error": cause.Error()},
	})
}

// retryPolicyOf pulls the retry policy from the node configs that declare
// one. api_fetch manages its own HTTP retry budget, so it is absent here.
func retryPolicyOf(cfg any) *schema.RetryPolicy {
	switch c := cfg.(type) {
	case *schema.TriageConfig:
		return c.Retry
	case *schema.AuthConfig:
		return c.Retry
	default:
		return nil
	}
}
