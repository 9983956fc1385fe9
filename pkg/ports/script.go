package ports

import "context"

// ScriptHost is the callback surface a script can use to talk back to the interpreter.
type ScriptHost interface {
	// Push stores value under name, accumulating repeated pushes into a list unless replace is set.
	Push(name string, value any, replace bool)
	// Value records the value produced by a script field.
	Value(v any)
	// Error records an error reported by a script field. Repeated calls accumulate.
	Error(v any)
	// Apply evaluates the named slice with params bound as variables and returns the decoded result.
	Apply(ctx context.Context, name string, params map[string]any) (any, error)
}

// ScriptEvaluator runs the body of a script field or slice.
type ScriptEvaluator interface {
	// Evaluate executes source with bindings exposed as settled thenables.
	// The returned value must be JSON-compatible (nil, bool, float64, string, []any, map[string]any).
	Evaluate(ctx context.Context, source string, bindings map[string]any, host ScriptHost) (any, error)
}
