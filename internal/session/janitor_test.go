package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

func TestJanitorSweepRemovesTerminalSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	done := newTestSession()
	done.Status = schema.SessionStatusCompleted
	require.NoError(t, store.Save(ctx, done))

	live := newTestSession()
	require.NoError(t, store.Save(ctx, live))

	j := NewJanitor(store, nil, nil)
	j.Sweep()

	_, err := store.Get(ctx, done.ID)
	require.Error(t, err, "terminal session should be evicted")

	_, err = store.Get(ctx, live.ID)
	require.NoError(t, err, "live session must survive the sweep")
}

func TestJanitorSweepExpiresDeadSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	stale := New("c-2", "wf-support", 1, "triage", nil, -time.Minute)
	require.NoError(t, store.Save(ctx, stale))

	var expired []string
	j := NewJanitor(store, func(_ context.Context, id string) {
		expired = append(expired, id)
	}, nil)
	j.Sweep()

	assert.Equal(t, []string{stale.ID}, expired)
}

func TestJanitorStartStop(t *testing.T) {
	j := NewJanitor(NewMemoryStore(), nil, nil)
	require.NoError(t, j.Start(""))
	j.Stop()
}

func TestJanitorRejectsBadSchedule(t *testing.T) {
	j := NewJanitor(NewMemoryStore(), nil, nil)
	require.Error(t, j.Start("not a cron spec"))
}
