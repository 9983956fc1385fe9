package runtime

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/pkg/domain"
)

// responseHeader adds a header to the response. An optional test guards it.
func (e *Engine) responseHeader(ctx context.Context, el *etree.Element, st *State, out *etree.Element) error {
	ok, err := e.guard(el, st, out)
	if err != nil || !ok {
		return err
	}
	name, val, err := e.requestValue(ctx, el, st, out, true)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return &domain.InvalidAttributeError{Directive: domain.Describe(el), Attribute: domain.AttrName, Value: name}
	}
	st.response.Headers = append(st.response.Headers, domain.Header{Name: http.CanonicalHeaderKey(name), Value: val})
	return nil
}

// responseStatus sets the response status code. The last one evaluated wins.
func (e *Engine) responseStatus(ctx context.Context, el *etree.Element, st *State, out *etree.Element) error {
	ok, err := e.guard(el, st, out)
	if err != nil || !ok {
		return err
	}
	_, val, err := e.requestValue(ctx, el, st, out, false)
	if err != nil {
		return err
	}
	code, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil || code < 100 || code > 599 {
		return &domain.InvalidAttributeError{Directive: domain.Describe(el), Attribute: domain.AttrSelect, Value: val}
	}
	st.response.Status = code
	return nil
}

// guard evaluates the optional test attribute of el.
func (e *Engine) guard(el *etree.Element, st *State, out *etree.Element) (bool, error) {
	test := el.SelectAttr(domain.AttrTest)
	if test == nil {
		return true, nil
	}
	return e.evalBool(test.Value, st, out)
}
