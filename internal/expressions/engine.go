package expressions

import "context"

// Engine evaluates authored expressions against a context's bindings.
// Two implementations: CEL (boolean checks) and Expr (numeric computation).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
