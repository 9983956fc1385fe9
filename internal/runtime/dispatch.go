package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/pkg/domain"
)

// evaluate walks the children of directive, writing into out.
// A directive without element children contributes its text.
func (e *Engine) evaluate(ctx context.Context, directive *etree.Element, st *State, out *etree.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !domain.HasChildElements(directive) {
		domain.AppendText(out, domain.InnerText(directive))
		return nil
	}

	if err := e.registerSlices(directive, st); err != nil {
		return err
	}

	children := append([]etree.Token(nil), directive.Child...)
	for _, tok := range children {
		switch t := tok.(type) {
		case *etree.CharData:
			domain.AppendText(out, t.Data)
		case *etree.Element:
			if err := e.dispatch(ctx, t, st, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// registerSlices makes every named slice and form among the children of el
// available before any sibling is evaluated.
func (e *Engine) registerSlices(el *etree.Element, st *State) error {
	for _, c := range el.ChildElements() {
		switch domain.KindOf(c) {
		case domain.KindForm:
			name, err := requireAttr(c, domain.AttrName)
			if err != nil {
				return err
			}
			st.register(&Slice{Name: name, Type: c.SelectAttrValue(domain.AttrType, ""), Element: c})
		case domain.KindSlice:
			if name := c.SelectAttrValue(domain.AttrName, ""); name != "" {
				st.register(&Slice{Name: name, Type: c.SelectAttrValue(domain.AttrType, ""), Element: c})
			}
		}
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, el *etree.Element, st *State, out *etree.Element) error {
	switch kind := domain.KindOf(el); kind {
	case domain.KindParam:
		return e.param(el, st)
	case domain.KindForm:
		return nil
	case domain.KindSlice:
		if el.SelectAttr(domain.AttrName) != nil {
			return nil
		}
		return e.applySlice(ctx, &Slice{Type: el.SelectAttrValue(domain.AttrType, ""), Element: el}, nil, st, out)
	case domain.KindVariable:
		return e.variable(ctx, el, st)
	case domain.KindApply:
		return e.apply(ctx, el, st, out)
	case domain.KindField:
		return e.field(ctx, el, st, out)
	case domain.KindIf:
		return e.ifDirective(ctx, el, st, out)
	case domain.KindChoose:
		return e.choose(ctx, el, st, out)
	case domain.KindWithParam:
		return e.withParam(ctx, el, st, out)
	case domain.KindPush:
		return e.push(ctx, el, st, out)
	case domain.KindValueOf:
		return e.valueOf(el, st, out)
	case domain.KindCopyOf:
		return e.copyOf(el, st, out)
	case domain.KindText:
		return e.text(el, out)
	case domain.KindInclude:
		return e.include(ctx, el, st, out)
	case domain.KindForEach:
		return e.forEach(ctx, el, st, out)
	case domain.KindTransform:
		return e.transform(ctx, el, st, out)
	case domain.KindLog:
		return e.log(ctx, el, st, out)
	case domain.KindResponseHeader:
		return e.responseHeader(ctx, el, st, out)
	case domain.KindResponseStatus:
		return e.responseStatus(ctx, el, st, out)
	case domain.KindImport:
		return &domain.ContractError{Directive: domain.Describe(el), Reason: "only allowed at the top level of a loaded sheet"}
	case domain.KindWhen, domain.KindOtherwise:
		return &domain.ContractError{Directive: domain.Describe(el), Reason: "only allowed inside choose"}
	case domain.KindWithHeader, domain.KindWithBody, domain.KindSuccess, domain.KindFailure:
		return &domain.ContractError{Directive: domain.Describe(el), Reason: "only allowed inside include"}
	case domain.KindLiteral:
		return e.literal(ctx, el, st, out)
	default:
		return fmt.Errorf("unhandled directive kind %s", kind)
	}
}

// literal copies a non-directive element and evaluates its children into the copy.
func (e *Engine) literal(ctx context.Context, el *etree.Element, st *State, out *etree.Element) error {
	n := out.CreateElement(el.FullTag())
	for _, a := range el.Attr {
		if isDirectiveNamespaceDecl(a) {
			continue
		}
		n.CreateAttr(a.FullKey(), a.Value)
	}
	if uri := el.NamespaceURI(); uri != "" && n.NamespaceURI() != uri {
		key := "xmlns"
		if el.Space != "" {
			key += ":" + el.Space
		}
		n.CreateAttr(key, uri)
	}
	return e.evaluate(ctx, el, st, n)
}

func isDirectiveNamespaceDecl(a etree.Attr) bool {
	return (a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")) && a.Value == domain.Namespace
}

func requireAttr(el *etree.Element, name string) (string, error) {
	a := el.SelectAttr(name)
	if a == nil {
		return "", &domain.MissingAttributeError{Directive: domain.Describe(el), Attribute: name}
	}
	return a.Value, nil
}

// eval runs expr against the current context.
func (e *Engine) eval(expr string, st *State, out *etree.Element) (any, error) {
	if e.query == nil {
		return nil, &domain.ExpressionEvaluationError{Expr: expr, Err: errors.New("no query evaluator configured")}
	}
	v, err := e.query.Evaluate(expr, st.context(out), st)
	if err != nil {
		return nil, &domain.ExpressionEvaluationError{Expr: expr, Err: err}
	}
	return v, nil
}

func (e *Engine) evalString(expr string, st *State, out *etree.Element) (string, error) {
	v, err := e.eval(expr, st, out)
	if err != nil {
		return "", err
	}
	return domain.StringValue(v), nil
}

func (e *Engine) evalBool(expr string, st *State, out *etree.Element) (bool, error) {
	v, err := e.eval(expr, st, out)
	if err != nil {
		return false, err
	}
	return domain.BooleanValue(v), nil
}

func (e *Engine) evalNodes(expr string, st *State, out *etree.Element) (domain.NodeSet, error) {
	v, err := e.eval(expr, st, out)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case domain.NodeSet:
		return t, nil
	case *etree.Element:
		return domain.NodeSet{t}, nil
	}
	return nil, &domain.ExpressionEvaluationError{Expr: expr, Err: domain.ErrNotNodeSet}
}

// appendNodes moves nodes under out. Text nodes are merged as text.
func appendNodes(out *etree.Element, nodes []etree.Token) {
	for _, n := range nodes {
		switch t := n.(type) {
		case *etree.CharData:
			domain.AppendText(out, t.Data)
		case *etree.Element:
			if t.Tag == "" {
				// document node reached through its embedded element
				for _, c := range domain.DetachChildren(t) {
					if el, ok := c.(*etree.Element); ok {
						out.AddChild(el)
					}
				}
				continue
			}
			out.AddChild(t)
		default:
			out.AddChild(n)
		}
	}
}
