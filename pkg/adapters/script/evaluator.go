// Package script implements ports.ScriptEvaluator on top of go.starlark.net.
//
// A script body runs as the body of a function whose parameters are the
// bindings handed in by the interpreter, each wrapped as a settled thenable.
// The interpreter is reachable through the predeclared push, value, error and
// apply builtins.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/aretw0/xrlt/internal/logging"
	"github.com/aretw0/xrlt/pkg/ports"
)

// Type is the value of the type attribute that selects this evaluator.
const Type = "starlark"

const (
	mainFunc  = "__main__"
	resultVar = "__result__"
)

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Evaluator runs starlark script blocks.
type Evaluator struct {
	logger   *slog.Logger
	maxSteps uint64
}

var _ ports.ScriptEvaluator = (*Evaluator)(nil)

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithLogger routes script print() output to logger at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithMaxSteps bounds the number of starlark computation steps per script.
func WithMaxSteps(n uint64) Option {
	return func(e *Evaluator) {
		e.maxSteps = n
	}
}

// New creates a starlark evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate implements ports.ScriptEvaluator.
func (e *Evaluator) Evaluate(ctx context.Context, source string, bindings map[string]any, host ports.ScriptHost) (any, error) {
	predeclared := e.builtins(ctx, host)

	var params []string
	for name, v := range bindings {
		if !isIdentifier(name) {
			continue
		}
		if _, taken := predeclared[name]; taken {
			continue
		}
		sv, err := toStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("binding %s: %w", name, err)
		}
		predeclared[name] = &thenable{value: sv}
		params = append(params, name)
	}
	slices.Sort(params)

	thread := &starlark.Thread{
		Name: "xrlt",
		Print: func(_ *starlark.Thread, msg string) {
			e.logger.Debug("script print", "msg", msg)
		},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, fmt.Errorf("load(%q) is not available", module)
		},
	}
	if e.maxSteps > 0 {
		thread.SetMaxExecutionSteps(e.maxSteps)
	}
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(ctx.Err().Error())
	})
	defer stop()

	globals, err := starlark.ExecFileOptions(fileOptions, thread, "script", wrap(source, params), predeclared)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, err
	}
	return fromStarlark(globals[resultVar])
}

func (e *Evaluator) builtins(ctx context.Context, host ports.ScriptHost) starlark.StringDict {
	return starlark.StringDict{
		"push": starlark.NewBuiltin("push", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var (
				name    string
				value   starlark.Value
				replace bool
			)
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "value", &value, "replace?", &replace); err != nil {
				return nil, err
			}
			v, err := fromStarlark(value)
			if err != nil {
				return nil, err
			}
			host.Push(name, v, replace)
			return starlark.None, nil
		}),
		"value": starlark.NewBuiltin("value", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var value starlark.Value
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &value); err != nil {
				return nil, err
			}
			v, err := fromStarlark(value)
			if err != nil {
				return nil, err
			}
			host.Value(v)
			return starlark.None, nil
		}),
		"error": starlark.NewBuiltin("error", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var value starlark.Value
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &value); err != nil {
				return nil, err
			}
			v, err := fromStarlark(value)
			if err != nil {
				return nil, err
			}
			host.Error(v)
			return starlark.None, nil
		}),
		"apply": starlark.NewBuiltin("apply", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var (
				name   string
				params starlark.Value = starlark.None
			)
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "params?", &params); err != nil {
				return nil, err
			}
			gp, err := fromStarlark(params)
			if err != nil {
				return nil, err
			}
			var pm map[string]any
			switch p := gp.(type) {
			case nil:
			case map[string]any:
				pm = p
			default:
				return nil, fmt.Errorf("apply: params must be a dict, got %s", params.Type())
			}
			res, err := host.Apply(ctx, name, pm)
			if err != nil {
				return nil, err
			}
			return toStarlark(res)
		}),
		"Deferred": starlark.NewBuiltin("Deferred", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			return &deferred{}, nil
		}),
		"copy": starlark.NewBuiltin("copy", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var value starlark.Value
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &value); err != nil {
				return nil, err
			}
			return value, nil
		}),
	}
}

// wrap turns a script body into a module defining and calling the main function.
func wrap(source string, params []string) string {
	body := dedent(source)
	if strings.TrimSpace(body) == "" {
		body = "pass"
	}
	var b strings.Builder
	args := strings.Join(params, ", ")
	fmt.Fprintf(&b, "def %s(%s):\n", mainFunc, args)
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			b.WriteByte('\n')
			continue
		}
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%s = %s(%s)\n", resultVar, mainFunc, args)
	return b.String()
}

// dedent removes the common leading indentation of the non-blank lines.
func dedent(source string) string {
	lines := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	prefix := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if prefix < 0 || n < prefix {
			prefix = n
		}
	}
	if prefix <= 0 {
		return strings.Join(lines, "\n")
	}
	for i, line := range lines {
		if len(line) >= prefix {
			lines[i] = line[prefix:]
		} else {
			lines[i] = strings.TrimLeft(line, " \t")
		}
	}
	return strings.Join(lines, "\n")
}

func isIdentifier(name string) bool {
	if name == "" || keywords[name] {
		return false
	}
	for i, c := range name {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

var keywords = map[string]bool{
	"and": true, "break": true, "continue": true, "def": true, "elif": true,
	"else": true, "for": true, "if": true, "in": true, "lambda": true, "load": true,
	"not": true, "or": true, "pass": true, "return": true, "while": true,
	"None": true, "True": true, "False": true,
}
