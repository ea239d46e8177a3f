package engine

import (
	"context"
	"sync"
	"time"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

// DefaultAcquireWait bounds how long a step queues for a collaborator slot
// before the attempt counts as a capacity failure.
const DefaultAcquireWait = 3 * time.Second

// CollabLimiter caps concurrent outbound calls per collaborator class so a
// burst of sessions cannot dogpile a downstream service. Classes without a
// configured limit pass through unthrottled.
type CollabLimiter struct {
	mu      sync.RWMutex
	sems    map[string]chan struct{}
	maxWait time.Duration
}

// NewCollabLimiter creates a limiter from class -> max concurrency.
// Zero or negative limits are ignored. maxWait <= 0 uses DefaultAcquireWait.
func NewCollabLimiter(limits map[string]int, maxWait time.Duration) *CollabLimiter {
	if maxWait <= 0 {
		maxWait = DefaultAcquireWait
	}
	sems := make(map[string]chan struct{}, len(limits))
	for class, n := range limits {
		if n > 0 {
			sems[class] = make(chan struct{}, n)
		}
	}
	return &CollabLimiter{sems: sems, maxWait: maxWait}
}

// Acquire takes a slot for the class, waiting up to the configured bound.
// Queue overflow surfaces as a retryable CAPACITY error so the step retry
// policy decides what happens next. The returned release func is non-nil
// only on success.
func (l *CollabLimiter) Acquire(ctx context.Context, class string) (func(), error) {
	if class == "" {
		return func() {}, nil
	}

	l.mu.RLock()
	sem, ok := l.sems[class]
	l.mu.RUnlock()
	if !ok {
		return func() {}, nil
	}

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, schema.NewErrorf(schema.ErrCodeCapacity,
			"collaborator %q at capacity after %s", class, l.maxWait)
	}
}

// InFlight reports the current slot usage for a class. Zero for unlimited
// classes.
func (l *CollabLimiter) InFlight(class string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if sem, ok := l.sems[class]; ok {
		return len(sem)
	}
	return 0
}
