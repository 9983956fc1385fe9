package runtime

import (
	"context"

	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/pkg/domain"
	"github.com/aretw0/xrlt/pkg/xmljson"
)

const (
	valueTag = "value"
	applyTag = "apply"
)

// field creates an output child <name>. A script field is filled from the
// state its script emits; a plain field becomes the push target while its
// children are evaluated, and their output is merged into it afterwards.
func (e *Engine) field(ctx context.Context, el *etree.Element, st *State, out *etree.Element) error {
	name, err := requireAttr(el, domain.AttrName)
	if err != nil {
		return err
	}
	f := out.CreateElement(name)
	param, hasParam := st.params.Get(name)

	if ev, ok := e.scripts.Lookup(el.SelectAttrValue(domain.AttrType, "")); ok {
		seed := map[string]any{}
		if hasParam {
			seed[valueTag] = param
		}
		host := newScriptHost(e, st)
		_, err := e.runScript(ctx, name, ev, domain.InnerText(el), map[string]any{name: seed}, host)
		if err == nil {
			if _, encErr := xmljson.Encode(host.state, f); encErr != nil {
				err = &domain.ScriptError{Name: name, Err: encErr}
			}
		}
		if err != nil {
			if fatal := host.fatalError(err); fatal != nil {
				return fatal
			}
			e.logger.Warn("Script field failed", "field", name, "error", err)
			domain.DetachChildren(f)
			if hasParam {
				f.CreateElement(valueTag).SetText(param)
			}
			return nil
		}
		if _, emitted := host.state[valueTag]; !emitted && hasParam {
			f.CreateElement(valueTag).SetText(param)
		}
		return nil
	}

	if hasParam {
		f.CreateElement(valueTag).SetText(param)
	}
	prev := st.field
	st.field = f
	st.bind(name, f)
	defer func() { st.field = prev }()

	scratch := etree.NewElement(name)
	if err := e.evaluate(ctx, el, st, scratch); err != nil {
		return err
	}
	appendNodes(f, domain.DetachChildren(scratch))
	return nil
}

func (e *Engine) apply(ctx context.Context, el *etree.Element, st *State, out *etree.Element) error {
	name, err := requireAttr(el, domain.AttrName)
	if err != nil {
		return err
	}
	sl, ok := st.slice(name)
	if !ok {
		return &domain.UndefinedSliceError{Directive: domain.Describe(el), Name: name}
	}
	e.logger.Debug("Applying slice", "slice", name)
	return e.applySlice(ctx, sl, el, st, out)
}

// applySlice evaluates sl in a new scope frame. The children of block, if
// any, are evaluated first into a synthetic <apply> element which becomes the
// context of a plain slice body.
func (e *Engine) applySlice(ctx context.Context, sl *Slice, block *etree.Element, st *State, out *etree.Element) error {
	st.pushFrame()
	defer st.popFrame()

	var applied *etree.Element
	if block != nil && len(block.Child) > 0 {
		applied = etree.NewElement(applyTag)
		if err := e.evaluate(ctx, block, st, applied); err != nil {
			return err
		}
	}

	if ev, ok := e.scripts.Lookup(sl.Type); ok {
		host := newScriptHost(e, st)
		res, err := e.runScript(ctx, sl.Name, ev, domain.InnerText(sl.Element), scriptBindings(st), host)
		if err == nil {
			if _, encErr := xmljson.Encode(res, out); encErr != nil {
				err = &domain.ScriptError{Name: sl.Name, Err: encErr}
			}
		}
		if err != nil {
			if fatal := host.fatalError(err); fatal != nil {
				return fatal
			}
			e.logger.Warn("Script slice failed", "slice", sl.Name, "error", err)
		}
		return nil
	}

	if applied != nil {
		st.pushContext(applied)
		defer st.popContext()
	}
	return e.evaluate(ctx, sl.Element, st, out)
}
