package nodes

import (
	"context"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

// EndExecutor implements the terminal end node. The engine completes a
// session on arrival at an end node without scheduling a step, so this
// executor only exists to keep the catalog total; if invoked it records the
// configured disposition and emits no port.
type EndExecutor struct{}

// NewEndExecutor creates an end executor.
func NewEndExecutor() *EndExecutor {
	return &EndExecutor{}
}

func (e *EndExecutor) Execute(ctx context.Context, cfg any, in Input) (*Outcome, error) {
	c, ok := cfg.(*schema.EndConfig)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeConfigInvalid, "end: unexpected config type")
	}

	out := &Outcome{}
	if c.Disposition != "" {
		out.Variables = map[string]any{"disposition": c.Disposition}
	}
	return out, nil
}

var _ Executor = (*EndExecutor)(nil)
