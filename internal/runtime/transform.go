package runtime

import (
	"context"
	"errors"

	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/pkg/domain"
)

const transformTag = "transform"

func (e *Engine) transform(ctx context.Context, el *etree.Element, st *State, out *etree.Element) error {
	href, err := requireAttr(el, domain.AttrHref)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		return &domain.TransformError{Directive: domain.Describe(el), Href: href, Err: err}
	}
	if e.stylesheets == nil {
		return fail(errors.New("no stylesheet applier configured"))
	}

	scratch := etree.NewElement(transformTag)
	if err := e.evaluate(ctx, el, st, scratch); err != nil {
		return err
	}
	input := scratch.ChildElements()
	if len(input) == 0 {
		return fail(errors.New("no input element"))
	}

	result, err := e.stylesheets.Apply(ctx, href, input[0])
	if err != nil {
		return fail(err)
	}
	out.SetCData(result)
	return nil
}
