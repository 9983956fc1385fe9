// Package validator statically checks requestsheets for defects that would
// make every transform of them fail.
package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/pkg/domain"
)

// Report collects the problems found in one sheet.
type Report struct {
	Errors []error
}

func (r *Report) Error() string {
	lines := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		lines[i] = err.Error()
	}
	return fmt.Sprintf("found %d errors:\n- %s", len(r.Errors), strings.Join(lines, "\n- "))
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (r *Report) Unwrap() []error { return r.Errors }

var required = map[domain.Kind]string{
	domain.KindParam:          domain.AttrName,
	domain.KindForm:           domain.AttrName,
	domain.KindVariable:       domain.AttrName,
	domain.KindField:          domain.AttrName,
	domain.KindPush:           domain.AttrName,
	domain.KindIf:             domain.AttrTest,
	domain.KindWhen:           domain.AttrTest,
	domain.KindWithParam:      domain.AttrName,
	domain.KindWithHeader:     domain.AttrName,
	domain.KindValueOf:        domain.AttrSelect,
	domain.KindCopyOf:         domain.AttrSelect,
	domain.KindInclude:        domain.AttrHref,
	domain.KindForEach:        domain.AttrSelect,
	domain.KindTransform:      domain.AttrHref,
	domain.KindApply:          domain.AttrName,
	domain.KindImport:         domain.AttrHref,
	domain.KindResponseHeader: domain.AttrName,
}

var methods = map[string]bool{"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true}

var levels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

type walker struct {
	slices  map[string]bool
	applies []*etree.Element
	errs    []error
}

// ValidateSheet checks every directive of doc. It returns nil or a *Report.
func ValidateSheet(doc *etree.Document) error {
	root := doc.Root()
	if root == nil {
		return &Report{Errors: []error{fmt.Errorf("sheet has no root element")}}
	}

	w := &walker{slices: map[string]bool{}}
	w.walk(root, nil)

	for _, a := range w.applies {
		name := a.SelectAttrValue(domain.AttrName, "")
		if !w.slices[name] {
			w.errs = append(w.errs, &domain.UndefinedSliceError{Directive: domain.Describe(a), Name: name})
		}
	}

	if len(w.errs) > 0 {
		return &Report{Errors: w.errs}
	}
	return nil
}

func (w *walker) walk(el *etree.Element, parents []domain.Kind) {
	kind := domain.KindOf(el)
	w.check(el, kind, parents)
	next := append(parents, kind)
	for _, c := range el.ChildElements() {
		w.walk(c, next)
	}
}

func (w *walker) check(el *etree.Element, kind domain.Kind, parents []domain.Kind) {
	if attr, ok := required[kind]; ok && el.SelectAttr(attr) == nil {
		w.errs = append(w.errs, &domain.MissingAttributeError{Directive: domain.Describe(el), Attribute: attr})
	}

	parent := domain.KindLiteral
	if len(parents) > 0 {
		parent = parents[len(parents)-1]
	}

	switch kind {
	case domain.KindSlice, domain.KindForm:
		if name := el.SelectAttrValue(domain.AttrName, ""); name != "" {
			w.slices[name] = true
		}
	case domain.KindApply:
		if el.SelectAttr(domain.AttrName) != nil {
			w.applies = append(w.applies, el)
		}
	case domain.KindChoose:
		for _, c := range el.ChildElements() {
			if k := domain.KindOf(c); k != domain.KindWhen && k != domain.KindOtherwise {
				w.errs = append(w.errs, &domain.UnknownBranchTagError{Directive: domain.Describe(el), Tag: c.FullTag()})
			}
		}
	case domain.KindWhen, domain.KindOtherwise:
		if parent != domain.KindChoose {
			w.contract(el, "not inside choose")
		}
	case domain.KindSuccess, domain.KindFailure, domain.KindWithBody, domain.KindWithHeader:
		if parent != domain.KindInclude {
			w.contract(el, "not inside include")
		}
	case domain.KindPush:
		if !within(parents, domain.KindField, domain.KindSlice, domain.KindForm) {
			w.contract(el, "not inside field")
		}
	case domain.KindInclude:
		w.checkInclude(el)
	case domain.KindImport:
		if len(parents) != 1 {
			w.contract(el, "not at the top level")
		}
	case domain.KindResponseStatus:
		w.checkStatus(el)
	case domain.KindLog:
		if lvl := el.SelectAttrValue(domain.AttrLevel, "info"); !levels[strings.ToLower(lvl)] {
			w.invalid(el, domain.AttrLevel, lvl)
		}
	}
}

func (w *walker) checkInclude(el *etree.Element) {
	if m := el.SelectAttr(domain.AttrMethod); m != nil && !methods[strings.ToUpper(m.Value)] {
		w.invalid(el, domain.AttrMethod, m.Value)
	}
	if t := el.SelectAttrValue(domain.AttrType, "json"); t != "json" {
		w.invalid(el, domain.AttrType, t)
	}
	for _, c := range el.ChildElements() {
		switch domain.KindOf(c) {
		case domain.KindWithParam, domain.KindWithHeader, domain.KindWithBody, domain.KindSuccess, domain.KindFailure:
		default:
			w.contract(c, "not allowed inside include")
		}
	}
}

// checkStatus rejects literal status codes outside 100-599.
func (w *walker) checkStatus(el *etree.Element) {
	if el.SelectAttr(domain.AttrSelect) != nil || domain.HasChildElements(el) {
		return
	}
	text := strings.TrimSpace(domain.InnerText(el))
	if code, err := strconv.Atoi(text); err != nil || code < 100 || code > 599 {
		w.invalid(el, domain.AttrSelect, text)
	}
}

func (w *walker) contract(el *etree.Element, reason string) {
	w.errs = append(w.errs, &domain.ContractError{Directive: domain.Describe(el), Reason: reason})
}

func (w *walker) invalid(el *etree.Element, attr, value string) {
	w.errs = append(w.errs, &domain.InvalidAttributeError{Directive: domain.Describe(el), Attribute: attr, Value: value})
}

// within reports whether any of kinds encloses the current element.
// A slice counts because it may be applied from inside a field.
func within(parents []domain.Kind, kinds ...domain.Kind) bool {
	for _, p := range parents {
		for _, k := range kinds {
			if p == k {
				return true
			}
		}
	}
	return false
}
