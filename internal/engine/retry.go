package engine

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

// Engine-level retry defaults, applied when a node declares no retry policy.
const (
	DefaultRetryMax   = 2
	DefaultRetryBase  = 250 * time.Millisecond
	DefaultRetryCeil  = 5 * time.Second
	defaultBackoffAlg = "exponential"
)

// IsRetryableError classifies whether a step error is worth retrying.
// Typed FlowErrors carry their own answer; deadline expiry on the node (not
// the session) is retryable; cancellation means the session is going away.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var flowErr *schema.FlowError
	if errors.As(err, &flowErr) {
		return flowErr.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// ComputeBackoff calculates the delay before retry attempt (0-based).
// A nil policy uses the engine defaults.
func ComputeBackoff(policy *schema.RetryPolicy, attempt int) time.Duration {
	base := DefaultRetryBase
	ceil := DefaultRetryCeil
	alg := defaultBackoffAlg

	if policy != nil {
		if policy.Delay != "" {
			if d, err := time.ParseDuration(policy.Delay); err == nil {
				base = d
			}
		}
		if policy.MaxDelay != "" {
			if d, err := time.ParseDuration(policy.MaxDelay); err == nil {
				ceil = d
			}
		}
		if policy.Backoff != "" {
			alg = policy.Backoff
		}
	}

	var delay time.Duration
	switch alg {
	case "exponential":
		delay = base
		for i := 0; i < attempt; i++ {
			delay *= 2
			if delay >= ceil {
				delay = ceil
				break
			}
		}
	case "linear":
		delay = base * time.Duration(attempt+1)
	default: // constant
		delay = base
	}

	if delay > ceil {
		delay = ceil
	}
	return delay
}

// MaxAttempts returns the total number of attempts the policy allows.
func MaxAttempts(policy *schema.RetryPolicy) int {
	retries := DefaultRetryMax
	if policy != nil && policy.Max >= 0 {
		retries = policy.Max
	}
	return retries + 1
}

// WaitForBackoff sleeps for the delay or returns early when the session
// context ends.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
