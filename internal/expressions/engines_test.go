package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprEngineEvaluate(t *testing.T) {
	engine := NewExprEngine()
	ctx := context.Background()

	tests := []struct {
		name string
		expr string
		data map[string]any
		want any
	}{
		{"comparison", "balance > 100", map[string]any{"balance": 250.0}, true},
		{"boolean and", "verified && attempts < 3", map[string]any{"verified": true, "attempts": 1}, true},
		{"string equality", `tier == "gold"`, map[string]any{"tier": "silver"}, false},
		{"undefined variable is nil", "missing == nil", map[string]any{}, true},
		{"arithmetic", "a + b", map[string]any{"a": 2, "b": 3}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Evaluate(ctx, tt.expr, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExprEngineCompileError(t *testing.T) {
	engine := NewExprEngine()

	_, err := engine.Evaluate(context.Background(), "balance >>> 1", map[string]any{"balance": 1})
	require.Error(t, err)

	_, err = engine.Evaluate(context.Background(), "", nil)
	require.Error(t, err)
}

func TestExprEngineCachesPrograms(t *testing.T) {
	engine := NewExprEngine()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := engine.Evaluate(ctx, "n * 2", map[string]any{"n": i})
		require.NoError(t, err)
		assert.Equal(t, i*2, got)
	}
	assert.Len(t, engine.cache, 1)
}

func TestCELEngineEvaluate(t *testing.T) {
	engine, err := NewCELEngine()
	require.NoError(t, err)
	ctx := context.Background()

	got, err := engine.Evaluate(ctx, `vars.balance > 100.0`, map[string]any{
		"vars": map[string]any{"balance": 250.0},
	})
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = engine.Evaluate(ctx, `session.call_id != ""`, map[string]any{
		"session": map[string]any{"call_id": "c-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestCELEngineCompileError(t *testing.T) {
	engine, err := NewCELEngine()
	require.NoError(t, err)

	_, err = engine.Evaluate(context.Background(), "vars.", nil)
	require.Error(t, err)
}

func TestGoJQEngineEvaluate(t *testing.T) {
	engine := NewGoJQEngine()
	ctx := context.Background()

	data := map[string]any{
		"customer": map[string]any{"name": "Ada", "tier": "gold"},
		"orders":   []any{map[string]any{"id": 1.0}, map[string]any{"id": 2.0}},
	}

	got, err := engine.Evaluate(ctx, ".customer.name", data)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got)

	// Multiple outputs collapse into a slice.
	got, err = engine.Evaluate(ctx, ".orders[].id", data)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, got)

	// No output is nil.
	got, err = engine.Evaluate(ctx, ".missing // empty", data)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGoJQEngineParseError(t *testing.T) {
	engine := NewGoJQEngine()

	_, err := engine.Evaluate(context.Background(), ".[unclosed", nil)
	require.Error(t, err)
}
