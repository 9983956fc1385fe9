package domain

import (
	"math"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Params is the immutable mapping of external parameters handed to a transform.
type Params map[string]string

// Get returns the parameter value and whether it was supplied.
func (p Params) Get(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p[name]
	return v, ok
}

// NodeSet is a query result holding zero or more nodes, in document order.
type NodeSet []etree.Token

// First returns the first node of the set, or nil when empty.
func (ns NodeSet) First() etree.Token {
	if len(ns) == 0 {
		return nil
	}
	return ns[0]
}

// StringValue converts a bound value to its XPath string value.
func StringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return FormatNumber(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case NodeSet:
		return NodeString(t.First())
	case []etree.Token:
		return NodeString(NodeSet(t).First())
	case etree.Token:
		return NodeString(t)
	}
	return ""
}

// BooleanValue converts a bound value to its XPath boolean value.
func BooleanValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case int:
		return t != 0
	case int64:
		return t != 0
	case NodeSet:
		return len(t) > 0
	case []etree.Token:
		return len(t) > 0
	case etree.Token:
		return t != nil
	}
	return false
}

// FormatNumber renders a float the way XPath's string() does.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// NodeString returns the string value of a single node: the concatenated
// descendant text for elements, the data itself for text and comments.
func NodeString(tok etree.Token) string {
	switch t := tok.(type) {
	case *etree.Element:
		return InnerText(t)
	case *etree.CharData:
		return t.Data
	case *etree.Comment:
		return t.Data
	case *etree.ProcInst:
		return t.Inst
	}
	return ""
}

// InnerText concatenates every text node below el in document order.
func InnerText(el *etree.Element) string {
	if el == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, c := range e.Child {
			switch t := c.(type) {
			case *etree.CharData:
				b.WriteString(t.Data)
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(el)
	return b.String()
}

// AppendText adds text at the end of el: it extends the trailing text node
// (the tail of the last child element, or el's own text) or starts a new one.
func AppendText(el *etree.Element, text string) {
	if text == "" {
		return
	}
	if n := len(el.Child); n > 0 {
		if cd, ok := el.Child[n-1].(*etree.CharData); ok && !cd.IsCData() {
			cd.SetData(cd.Data + text)
			return
		}
	}
	el.AddChild(etree.NewText(text))
}

// HasChildElements reports whether el holds at least one element child.
func HasChildElements(el *etree.Element) bool {
	for _, c := range el.Child {
		if _, ok := c.(*etree.Element); ok {
			return true
		}
	}
	return false
}

// DetachChildren removes every child token of el and returns them in order.
func DetachChildren(el *etree.Element) []etree.Token {
	children := append([]etree.Token(nil), el.Child...)
	for len(el.Child) > 0 {
		el.RemoveChildAt(len(el.Child) - 1)
	}
	return children
}
