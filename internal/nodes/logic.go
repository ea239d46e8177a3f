package nodes

import (
	"context"
	"fmt"

	"github.com/kylasweb/ivrflow/internal/expressions"
	"github.com/kylasweb/ivrflow/pkg/schema"
)

// BooleanLogicExecutor implements the boolean_logic node: a pure function
// over session variables with no external call. Field mode checks the named
// variable for truthiness; expression mode evaluates an expr or CEL
// expression. A missing field is a config error, never a silent no.
type BooleanLogicExecutor struct {
	engines map[string]expressions.Engine
}

// NewBooleanLogicExecutor creates a boolean_logic executor.
// cel may be nil when CEL support is disabled.
func NewBooleanLogicExecutor(exprEngine *expressions.ExprEngine, cel *expressions.CELEngine) *BooleanLogicExecutor {
	if exprEngine == nil {
		exprEngine = expressions.NewExprEngine()
	}
	engines := map[string]expressions.Engine{
		"expr": exprEngine,
	}
	if cel != nil {
		engines["cel"] = cel
	}
	return &BooleanLogicExecutor{engines: engines}
}

func (e *BooleanLogicExecutor) Execute(ctx context.Context, cfg any, in Input) (*Outcome, error) {
	c, ok := cfg.(*schema.BooleanLogicConfig)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeConfigInvalid, "boolean_logic: unexpected config type")
	}

	if c.Expression != "" {
		return e.evaluateExpression(ctx, c, in)
	}

	v, present := in.Vars[c.Field]
	if !present {
		return nil, schema.NewErrorf(schema.ErrCodeConfigInvalid,
			"boolean_logic: session variable %q is not set", c.Field)
	}

	return boolOutcome(truthy(v)), nil
}

func (e *BooleanLogicExecutor) evaluateExpression(ctx context.Context, c *schema.BooleanLogicConfig, in Input) (*Outcome, error) {
	name := c.Engine
	if name == "" {
		name = "expr"
	}
	engine, ok := e.engines[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeConfigInvalid,
			"boolean_logic: expression engine %q not available", name)
	}

	data := in.Vars
	if name == "cel" {
		data = map[string]any{
			"vars": in.Vars,
			"session": map[string]any{
				"session_id": in.SessionID,
				"call_id":    in.CallID,
			},
		}
	}

	out, err := engine.Evaluate(ctx, c.Expression, data)
	if err != nil {
		return nil, err
	}

	b, ok := out.(bool)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeConfigInvalid,
			"boolean_logic: expression %q evaluated to %v (%T), want bool",
			c.Expression, out, out).
			WithDetails(map[string]any{"result": fmt.Sprintf("%v", out)})
	}

	return boolOutcome(b), nil
}

func boolOutcome(b bool) *Outcome {
	if b {
		return &Outcome{Port: schema.PortYes}
	}
	return &Outcome{Port: schema.PortNo}
}

var _ Executor = (*BooleanLogicExecutor)(nil)
