package runtime

import (
	"context"

	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/pkg/domain"
)

// param binds a default unless name is already visible. An external
// parameter of the same name counts as the first binding.
func (e *Engine) param(el *etree.Element, st *State) error {
	name, err := requireAttr(el, domain.AttrName)
	if err != nil {
		return err
	}
	if _, ok := st.Lookup(name); ok {
		return nil
	}
	if v, ok := st.params.Get(name); ok {
		st.bind(name, v)
		return nil
	}
	if domain.HasChildElements(el) {
		st.bind(name, el.Copy())
		return nil
	}
	st.bind(name, domain.InnerText(el))
	return nil
}

// variable binds a fresh <name> element built from the children.
func (e *Engine) variable(ctx context.Context, el *etree.Element, st *State) error {
	name, err := requireAttr(el, domain.AttrName)
	if err != nil {
		return err
	}
	v := etree.NewElement(name)
	st.bind(name, v)
	return e.evaluate(ctx, el, st, v)
}

func (e *Engine) withParam(ctx context.Context, el *etree.Element, st *State, out *etree.Element) error {
	name, err := requireAttr(el, domain.AttrName)
	if err != nil {
		return err
	}
	if sel := el.SelectAttr(domain.AttrSelect); sel != nil {
		v, err := e.eval(sel.Value, st, out)
		if err != nil {
			return err
		}
		st.bind(name, v)
		return nil
	}
	v := etree.NewElement(name)
	if err := e.evaluate(ctx, el, st, v); err != nil {
		return err
	}
	st.bind(name, v)
	return nil
}

// push appends a <name> child to the current field.
func (e *Engine) push(ctx context.Context, el *etree.Element, st *State, out *etree.Element) error {
	name, err := requireAttr(el, domain.AttrName)
	if err != nil {
		return err
	}
	field := st.field
	if field == nil {
		return &domain.ContractError{Directive: domain.Describe(el), Reason: "push outside of a field"}
	}
	if el.SelectAttrValue(domain.AttrReplace, "") == "yes" {
		for _, c := range field.SelectElements(name) {
			field.RemoveChild(c)
		}
	}
	v := field.CreateElement(name)
	if sel := el.SelectAttr(domain.AttrSelect); sel != nil {
		s, err := e.evalString(sel.Value, st, out)
		if err != nil {
			return err
		}
		v.SetText(s)
		return nil
	}
	return e.evaluate(ctx, el, st, v)
}
