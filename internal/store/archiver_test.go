package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylasweb/ivrflow/internal/session"
	"github.com/kylasweb/ivrflow/pkg/schema"
)

func terminalSession(workflowID string) *session.Session {
	s := session.New("c-1", workflowID, 1, "triage", map[string]any{"ani": "+15550100"}, time.Hour)
	s.RecordStep("triage", schema.PortNormal, time.Now())
	s.RecordStep("end", "", time.Now())
	s.Status = schema.SessionStatusCompleted
	return s
}

func TestMemoryArchiverRoundTrip(t *testing.T) {
	ctx := context.Background()
	arch := NewMemoryArchiver()

	s := terminalSession("wf-support")
	require.NoError(t, arch.Archive(ctx, s))

	rec, err := arch.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, rec.SessionID)
	assert.Equal(t, "wf-support", rec.WorkflowID)
	assert.Equal(t, schema.SessionStatusCompleted, rec.Status)
	assert.Len(t, rec.History, 2)
	assert.Equal(t, "+15550100", rec.Variables["ani"])
}

func TestMemoryArchiverRejectsLiveSession(t *testing.T) {
	arch := NewMemoryArchiver()

	live := session.New("c-2", "wf-support", 1, "triage", nil, time.Hour)
	err := arch.Archive(context.Background(), live)
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeInvalidTransition, flowErr.Code)
}

func TestMemoryArchiverListByWorkflow(t *testing.T) {
	ctx := context.Background()
	arch := NewMemoryArchiver()

	for i := 0; i < 3; i++ {
		require.NoError(t, arch.Archive(ctx, terminalSession("wf-support")))
	}
	require.NoError(t, arch.Archive(ctx, terminalSession("wf-other")))

	recs, err := arch.ListByWorkflow(ctx, "wf-support", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	recs, err = arch.ListByWorkflow(ctx, "wf-support", 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = arch.ListByWorkflow(ctx, "wf-missing", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMemoryArchiverGetMissing(t *testing.T) {
	arch := NewMemoryArchiver()

	_, err := arch.Get(context.Background(), "nope")
	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeNotFound, flowErr.Code)
}
