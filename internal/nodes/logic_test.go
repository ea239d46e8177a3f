package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylasweb/ivrflow/internal/expressions"
	"github.com/kylasweb/ivrflow/pkg/schema"
)

func newLogicExecutor(t *testing.T) *BooleanLogicExecutor {
	t.Helper()
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	return NewBooleanLogicExecutor(expressions.NewExprEngine(), cel)
}

func TestBooleanLogicFieldMode(t *testing.T) {
	exec := newLogicExecutor(t)

	tests := []struct {
		name     string
		value    any
		wantPort string
	}{
		{"bool true", true, schema.PortYes},
		{"bool false", false, schema.PortNo},
		{"non-empty string", "gold", schema.PortYes},
		{"empty string", "", schema.PortNo},
		{"zero number", 0.0, schema.PortNo},
		{"non-zero number", 42.0, schema.PortYes},
		{"nil value", nil, schema.PortNo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := exec.Execute(context.Background(),
				&schema.BooleanLogicConfig{Field: "flag"},
				Input{Vars: map[string]any{"flag": tt.value}})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPort, out.Port)
		})
	}
}

func TestBooleanLogicMissingFieldIsConfigError(t *testing.T) {
	exec := newLogicExecutor(t)

	_, err := exec.Execute(context.Background(),
		&schema.BooleanLogicConfig{Field: "never_set"},
		Input{Vars: map[string]any{}})
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeConfigInvalid, flowErr.Code)
	assert.False(t, flowErr.IsRetryable(), "a misconfigured graph must fail fast")
}

func TestBooleanLogicExprExpression(t *testing.T) {
	exec := newLogicExecutor(t)

	out, err := exec.Execute(context.Background(),
		&schema.BooleanLogicConfig{Expression: "balance > 100 && verified"},
		Input{Vars: map[string]any{"balance": 250.0, "verified": true}})
	require.NoError(t, err)
	assert.Equal(t, schema.PortYes, out.Port)

	out, err = exec.Execute(context.Background(),
		&schema.BooleanLogicConfig{Expression: "balance > 100 && verified"},
		Input{Vars: map[string]any{"balance": 50.0, "verified": true}})
	require.NoError(t, err)
	assert.Equal(t, schema.PortNo, out.Port)
}

func TestBooleanLogicCELExpression(t *testing.T) {
	exec := newLogicExecutor(t)

	out, err := exec.Execute(context.Background(),
		&schema.BooleanLogicConfig{Expression: `vars.tier == "gold"`, Engine: "cel"},
		Input{SessionID: "s-1", CallID: "c-1", Vars: map[string]any{"tier": "gold"}})
	require.NoError(t, err)
	assert.Equal(t, schema.PortYes, out.Port)
}

func TestBooleanLogicNonBoolResult(t *testing.T) {
	exec := newLogicExecutor(t)

	_, err := exec.Execute(context.Background(),
		&schema.BooleanLogicConfig{Expression: "balance + 1"},
		Input{Vars: map[string]any{"balance": 10.0}})
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeConfigInvalid, flowErr.Code)
}

func TestBooleanLogicUnknownEngine(t *testing.T) {
	exec := NewBooleanLogicExecutor(nil, nil)

	_, err := exec.Execute(context.Background(),
		&schema.BooleanLogicConfig{Expression: "true", Engine: "cel"},
		Input{})
	require.Error(t, err, "cel disabled when not wired in")
}
