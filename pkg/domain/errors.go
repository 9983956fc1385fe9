package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// ErrSheetNotFound is returned when a requestsheet cannot be found by the loader.
var ErrSheetNotFound = errors.New("sheet not found")

// ErrNotNodeSet is returned when an expression expected to select nodes yields a scalar.
var ErrNotNodeSet = errors.New("expression did not evaluate to a node-set")

// ErrImportTooDeep is returned when imports nest deeper than the import limit.
var ErrImportTooDeep = errors.New("too deep import")

// ErrNotRequestsheet is returned when an imported document is not a requestsheet.
var ErrNotRequestsheet = errors.New("not a requestsheet")

// MissingAttributeError is raised when a directive lacks a required attribute.
type MissingAttributeError struct {
	Directive string
	Attribute string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("%s: missing required attribute %q", e.Directive, e.Attribute)
}

// UndefinedSliceError is raised when apply names a slice that was never registered.
type UndefinedSliceError struct {
	Directive string
	Name      string
}

func (e *UndefinedSliceError) Error() string {
	return fmt.Sprintf("%s: slice %q is not defined", e.Directive, e.Name)
}

// UnknownBranchTagError is raised when a choose child is neither when nor otherwise.
type UnknownBranchTagError struct {
	Directive string
	Tag       string
}

func (e *UnknownBranchTagError) Error() string {
	return fmt.Sprintf("%s: unexpected branch %q", e.Directive, e.Tag)
}

// ExpressionEvaluationError wraps a failure of the query evaluator.
type ExpressionEvaluationError struct {
	Expr string
	Err  error
}

func (e *ExpressionEvaluationError) Error() string {
	return fmt.Sprintf("expression %q: %v", e.Expr, e.Err)
}

func (e *ExpressionEvaluationError) Unwrap() error { return e.Err }

// InclusionError describes a failed include. The runtime recovers it by
// running the failure branch.
type InclusionError struct {
	URL string
	Err error
}

func (e *InclusionError) Error() string {
	return fmt.Sprintf("include %s: %v", e.URL, e.Err)
}

func (e *InclusionError) Unwrap() error { return e.Err }

// ScriptError describes a failed script field or slice. The runtime logs it
// and carries on with the rest of the transform.
type ScriptError struct {
	Name string
	Err  error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %q: %v", e.Name, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// ContractError is raised when a directive is used where it has no meaning,
// e.g. push outside of a field.
type ContractError struct {
	Directive string
	Reason    string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %s", e.Directive, e.Reason)
}

// InvalidAttributeError is raised when an attribute holds a value outside its enumeration.
type InvalidAttributeError struct {
	Directive string
	Attribute string
	Value     string
}

func (e *InvalidAttributeError) Error() string {
	return fmt.Sprintf("%s: invalid value %q for attribute %q", e.Directive, e.Value, e.Attribute)
}

// TransformError wraps a failure of the stylesheet applier.
type TransformError struct {
	Directive string
	Href      string
	Err       error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("%s: transform %s: %v", e.Directive, e.Href, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// ImportError describes a sheet that could not be imported.
type ImportError struct {
	Href string
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %v", e.Href, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// Describe renders an element as its start tag, e.g. `<x:apply name="a">`.
// Attributes are sorted so diagnostics are stable.
func Describe(el *etree.Element) string {
	if el == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(el.FullTag())
	attrs := make([]string, 0, len(el.Attr))
	for _, a := range el.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			continue
		}
		attrs = append(attrs, fmt.Sprintf("%s=%q", a.FullKey(), a.Value))
	}
	sort.Strings(attrs)
	for _, a := range attrs {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	b.WriteByte('>')
	return b.String()
}
