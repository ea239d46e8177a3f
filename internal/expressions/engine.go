package expressions

import "context"

// Engine evaluates expressions against a session's variables.
// Three implementations: Expr (boolean logic, default), CEL (boolean logic,
// opt-in), GoJQ (API-response capture transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
