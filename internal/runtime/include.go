package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/beevik/etree"
	json "github.com/goccy/go-json"

	"github.com/aretw0/xrlt/pkg/domain"
	"github.com/aretw0/xrlt/pkg/ports"
	"github.com/aretw0/xrlt/pkg/xmljson"
)

const typeJSON = "json"

var placeholder = regexp.MustCompile(`\{([^{}]*)\}`)

var methods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// include fetches a JSON resource, converts it to XML and either appends it
// to out or hands it to the success branch as context. Failures run the
// failure branch, if any, and never abort the transform.
func (e *Engine) include(ctx context.Context, el *etree.Element, st *State, out *etree.Element) error {
	href, err := requireAttr(el, domain.AttrHref)
	if err != nil {
		return err
	}
	target, err := e.expandHref(href, st, out)
	if err != nil {
		return err
	}

	req := ports.FetchRequest{URL: target, Query: url.Values{}, Header: http.Header{}}
	var success, failure *etree.Element
	for _, c := range el.ChildElements() {
		switch domain.KindOf(c) {
		case domain.KindWithParam:
			name, val, err := e.requestValue(ctx, c, st, out, true)
			if err != nil {
				return err
			}
			req.Query.Add(name, val)
		case domain.KindWithHeader:
			name, val, err := e.requestValue(ctx, c, st, out, true)
			if err != nil {
				return err
			}
			req.Header.Add(name, val)
		case domain.KindWithBody:
			_, val, err := e.requestValue(ctx, c, st, out, false)
			if err != nil {
				return err
			}
			req.Body = val
			req.Method = http.MethodPost
		case domain.KindSuccess:
			success = c
		case domain.KindFailure:
			failure = c
		default:
			return &domain.ContractError{Directive: domain.Describe(c), Reason: "not allowed inside include"}
		}
	}
	if m := el.SelectAttr(domain.AttrMethod); m != nil {
		method := strings.ToUpper(m.Value)
		if !methods[method] {
			return &domain.InvalidAttributeError{Directive: domain.Describe(el), Attribute: domain.AttrMethod, Value: m.Value}
		}
		req.Method = method
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	node, err := e.load(ctx, req, el.SelectAttrValue(domain.AttrType, typeJSON))
	if err != nil {
		e.logger.Warn("Include failed", "url", req.CacheKey(), "error", err)
		if failure != nil {
			return e.evaluate(ctx, failure, st, out)
		}
		return nil
	}

	if success != nil {
		st.pushContext(node)
		defer st.popContext()
		return e.evaluate(ctx, success, st, out)
	}
	appendNodes(out, domain.DetachChildren(node))
	return nil
}

// expandHref replaces each {expr} in href with the string value of expr.
func (e *Engine) expandHref(href string, st *State, out *etree.Element) (string, error) {
	var firstErr error
	expanded := placeholder.ReplaceAllStringFunc(href, func(m string) string {
		if firstErr != nil {
			return m
		}
		s, err := e.evalString(m[1:len(m)-1], st, out)
		if err != nil {
			firstErr = err
			return m
		}
		return s
	})
	return expanded, firstErr
}

// requestValue computes a with-param, with-header or with-body value: the
// string value of select, else the text produced by the children.
func (e *Engine) requestValue(ctx context.Context, el *etree.Element, st *State, out *etree.Element, named bool) (string, string, error) {
	var name string
	if named {
		n, err := requireAttr(el, domain.AttrName)
		if err != nil {
			return "", "", err
		}
		name = n
	}
	if sel := el.SelectAttr(domain.AttrSelect); sel != nil {
		v, err := e.evalString(sel.Value, st, out)
		return name, v, err
	}
	tag := name
	if tag == "" {
		tag = "body"
	}
	scratch := etree.NewElement(tag)
	if err := e.evaluate(ctx, el, st, scratch); err != nil {
		return "", "", err
	}
	return name, domain.InnerText(scratch), nil
}

// load fetches req, going through the response cache for GET requests
// without custom headers, and converts the body.
func (e *Engine) load(ctx context.Context, req ports.FetchRequest, typ string) (node *etree.Element, err error) {
	key := req.CacheKey()
	cached := false
	start := time.Now()
	defer func() {
		if e.hooks.OnInclude != nil {
			e.hooks.OnInclude(key, cached, time.Since(start), err)
		}
		if err != nil {
			err = &domain.InclusionError{URL: key, Err: err}
		}
	}()

	if typ != typeJSON {
		return nil, fmt.Errorf("unsupported include type %q", typ)
	}
	if e.fetcher == nil {
		return nil, errors.New("no fetcher configured")
	}

	cacheable := e.cache != nil && req.Method == http.MethodGet && len(req.Header) == 0
	var body []byte
	if cacheable {
		b, ok, cerr := e.cache.Get(ctx, key)
		if cerr != nil {
			e.logger.Warn("Response cache read failed", "url", key, "error", cerr)
		}
		if ok {
			body, cached = b, true
		}
	}
	if !cached {
		fctx, cancel := context.WithTimeout(ctx, e.includeTimeout)
		defer cancel()
		body, err = e.fetcher.Fetch(fctx, req)
		if err != nil {
			return nil, err
		}
	}

	node, err = xmljson.Marshal(body)
	if err != nil {
		return nil, err
	}
	if cacheable && !cached && json.Valid(body) {
		if cerr := e.cache.Set(ctx, key, body, e.cacheTTL); cerr != nil {
			e.logger.Warn("Response cache write failed", "url", key, "error", cerr)
		}
	}
	e.logger.Debug("Included resource", "url", key, "cached", cached)
	return node, nil
}
