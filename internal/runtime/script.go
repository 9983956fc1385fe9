package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/pkg/domain"
	"github.com/aretw0/xrlt/pkg/ports"
	"github.com/aretw0/xrlt/pkg/xmljson"
)

// runScript runs one script block under the script timeout.
func (e *Engine) runScript(ctx context.Context, name string, ev ports.ScriptEvaluator, source string, bindings map[string]any, host *scriptHost) (any, error) {
	sctx, cancel := context.WithTimeout(ctx, e.scriptTimeout)
	defer cancel()

	start := time.Now()
	res, err := ev.Evaluate(sctx, source, bindings, host)
	if e.hooks.OnScript != nil {
		e.hooks.OnScript(name, time.Since(start), err)
	}
	if err != nil {
		return nil, &domain.ScriptError{Name: name, Err: err}
	}
	return res, nil
}

// scriptBindings marshals every visible variable for a script slice.
// Node sets are reduced to the string value of their first node and
// elements are decoded with the JSON/XML convention.
func scriptBindings(st *State) map[string]any {
	out := make(map[string]any)
	for name, v := range st.Visible() {
		switch t := v.(type) {
		case domain.NodeSet:
			out[name] = domain.StringValue(t)
		case *etree.Element:
			out[name] = xmljson.Decode(t)
		default:
			out[name] = v
		}
	}
	return out
}

// scriptHost is the callback surface handed to script evaluators. It builds
// the emitted state and re-enters the interpreter on apply.
type scriptHost struct {
	engine *Engine
	st     *State
	state  map[string]any
	lists  map[string]bool
	fatal  error
}

var _ ports.ScriptHost = (*scriptHost)(nil)

func newScriptHost(e *Engine, st *State) *scriptHost {
	return &scriptHost{engine: e, st: st, state: make(map[string]any), lists: make(map[string]bool)}
}

// Push assigns on first write or when replace is set; later writes
// accumulate into a list.
func (h *scriptHost) Push(name string, value any, replace bool) {
	existing, ok := h.state[name]
	switch {
	case replace || !ok || existing == nil:
		h.state[name] = value
		delete(h.lists, name)
	case h.lists[name]:
		h.state[name] = append(existing.([]any), value)
	default:
		h.state[name] = []any{existing, value}
		h.lists[name] = true
	}
}

func (h *scriptHost) Value(v any) { h.Push("value", v, false) }

func (h *scriptHost) Error(v any) { h.Push("error", v, false) }

// Apply evaluates slice name with params bound as elements in a new frame
// and returns the decoded result.
func (h *scriptHost) Apply(ctx context.Context, name string, params map[string]any) (any, error) {
	sl, ok := h.st.slice(name)
	if !ok {
		err := &domain.UndefinedSliceError{Directive: "apply()", Name: name}
		h.fail(err)
		return nil, err
	}

	h.st.pushFrame()
	defer h.st.popFrame()
	for key, value := range params {
		p := etree.NewElement(key)
		if _, err := xmljson.Encode(value, p); err != nil {
			return nil, err
		}
		h.st.bind(key, p)
	}

	root := etree.NewElement(xmljson.RootTag)
	if err := h.engine.applySlice(ctx, sl, nil, h.st, root); err != nil {
		h.fail(err)
		return nil, err
	}
	return xmljson.Decode(root), nil
}

func (h *scriptHost) fail(err error) {
	if h.fatal == nil && !recoverable(err) {
		h.fatal = err
	}
}

// fatalError returns the authoring error raised by a nested apply, which
// must abort the transform even though it surfaced through the script.
func (h *scriptHost) fatalError(err error) error {
	if h.fatal != nil {
		return h.fatal
	}
	if !recoverable(err) {
		return err
	}
	return nil
}

func recoverable(err error) bool {
	var se *domain.ScriptError
	var ie *domain.InclusionError
	return errors.As(err, &se) || errors.As(err, &ie)
}
