package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextIDRoundTrip(t *testing.T) {
	ctx := WithIDs(context.Background(), "s-1", "triage", "c-1")

	assert.Equal(t, "s-1", SessionID(ctx))
	assert.Equal(t, "triage", NodeID(ctx))
	assert.Equal(t, "c-1", CallID(ctx))

	// Absent IDs come back empty rather than panicking.
	assert.Empty(t, SessionID(context.Background()))
	assert.Empty(t, NodeID(context.Background()))
	assert.Empty(t, CallID(context.Background()))
}

func TestCorrelationHandlerInjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithIDs(context.Background(), "s-9", "auth", "c-9")
	logger.InfoContext(ctx, "step done")

	out := buf.String()
	assert.Contains(t, out, "session_id=s-9")
	assert.Contains(t, out, "node_id=auth")
	assert.Contains(t, out, "call_id=c-9")
}

func TestCorrelationHandlerSkipsEmptyIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "no ids here")

	out := buf.String()
	require.Contains(t, out, "no ids here")
	assert.NotContains(t, out, "session_id")
	assert.NotContains(t, out, "node_id")
	assert.NotContains(t, out, "call_id")
}

func TestLogWithAddsOnlyPresentIDs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithSessionID(context.Background(), "s-2")
	LogWith(ctx, base).Info("partial")

	out := buf.String()
	assert.Contains(t, out, "session_id=s-2")
	assert.NotContains(t, out, "node_id")
}
