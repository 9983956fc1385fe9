package runtime

import (
	"context"

	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/pkg/domain"
)

func (e *Engine) ifDirective(ctx context.Context, el *etree.Element, st *State, out *etree.Element) error {
	test, err := requireAttr(el, domain.AttrTest)
	if err != nil {
		return err
	}
	ok, err := e.evalBool(test, st, out)
	if err != nil || !ok {
		return err
	}
	return e.evaluate(ctx, el, st, out)
}

// choose evaluates the first when whose test holds, else the first otherwise.
// Every branch is checked up front so a misplaced tag fails even when an
// earlier branch matches.
func (e *Engine) choose(ctx context.Context, el *etree.Element, st *State, out *etree.Element) error {
	branches := el.ChildElements()
	for _, b := range branches {
		switch domain.KindOf(b) {
		case domain.KindWhen:
			if _, err := requireAttr(b, domain.AttrTest); err != nil {
				return err
			}
		case domain.KindOtherwise:
		default:
			return &domain.UnknownBranchTagError{Directive: domain.Describe(el), Tag: domain.Describe(b)}
		}
	}

	for _, b := range branches {
		if domain.KindOf(b) == domain.KindOtherwise {
			return e.evaluate(ctx, b, st, out)
		}
		ok, err := e.evalBool(b.SelectAttrValue(domain.AttrTest, ""), st, out)
		if err != nil {
			return err
		}
		if ok {
			return e.evaluate(ctx, b, st, out)
		}
	}
	return nil
}

// forEach evaluates the children once per selected node, with that node as context.
func (e *Engine) forEach(ctx context.Context, el *etree.Element, st *State, out *etree.Element) error {
	sel, err := requireAttr(el, domain.AttrSelect)
	if err != nil {
		return err
	}
	nodes, err := e.evalNodes(sel, st, out)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		st.pushContext(n)
		err := e.evaluate(ctx, el, st, out)
		st.popContext()
		if err != nil {
			return err
		}
	}
	return nil
}
