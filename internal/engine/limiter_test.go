package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

func TestLimiterUnknownClassPassesThrough(t *testing.T) {
	l := NewCollabLimiter(map[string]int{"nlu": 1}, time.Second)

	release, err := l.Acquire(context.Background(), "telephony")
	require.NoError(t, err)
	release()

	release, err = l.Acquire(context.Background(), "")
	require.NoError(t, err)
	release()
}

func TestLimiterCapsConcurrency(t *testing.T) {
	l := NewCollabLimiter(map[string]int{"nlu": 2}, 50*time.Millisecond)
	ctx := context.Background()

	r1, err := l.Acquire(ctx, "nlu")
	require.NoError(t, err)
	r2, err := l.Acquire(ctx, "nlu")
	require.NoError(t, err)
	assert.Equal(t, 2, l.InFlight("nlu"))

	// Third caller queues past the wait budget and fails retryable.
	_, err = l.Acquire(ctx, "nlu")
	require.Error(t, err)
	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeCapacity, flowErr.Code)
	assert.True(t, flowErr.IsRetryable())

	// Releasing frees the slot.
	r1()
	r3, err := l.Acquire(ctx, "nlu")
	require.NoError(t, err)
	r3()
	r2()
	assert.Equal(t, 0, l.InFlight("nlu"))
}

func TestLimiterRespectsContext(t *testing.T) {
	l := NewCollabLimiter(map[string]int{"nlu": 1}, time.Minute)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "nlu")
	require.NoError(t, err)
	defer release()

	cancelCtx, cancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = l.Acquire(cancelCtx, "nlu")
	require.ErrorIs(t, err, context.Canceled)
}
