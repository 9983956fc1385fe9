// Package xpath adapts github.com/antchfx/xpath to the ports.QueryEvaluator
// interface, navigating github.com/beevik/etree trees.
//
// Variable references ($name) are resolved before compilation: scalars are
// inlined as literals, nodes are exposed through holder elements below the root.
package xpath

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/antchfx/xpath"
	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/pkg/domain"
	"github.com/aretw0/xrlt/pkg/ports"
)

const holderPrefix = "__var__"

// Evaluator is the default query evaluator.
type Evaluator struct{}

var _ ports.QueryEvaluator = (*Evaluator)(nil)

// New creates an XPath 1.0 evaluator.
func New() *Evaluator {
	return &Evaluator{}
}

// Evaluate implements ports.QueryEvaluator.
func (e *Evaluator) Evaluate(expr string, context etree.Token, vars ports.Variables) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("evaluation panicked: %v", r)
		}
	}()

	if name, ok := bareVariable(expr); ok {
		v, found := lookup(vars, name)
		if !found {
			return nil, fmt.Errorf("undefined variable $%s", name)
		}
		return normalize(v), nil
	}

	t, chain := newTree(context)
	rewritten, err := bindVariables(expr, vars, t)
	if err != nil {
		return nil, err
	}

	compiled, err := xpath.Compile(rewritten)
	if err != nil {
		return nil, err
	}

	nav := t.navigatorAt(chain)
	switch v := compiled.Evaluate(nav).(type) {
	case *xpath.NodeIterator:
		var set domain.NodeSet
		for v.MoveNext() {
			if tok := v.Current().(*navigator).token(); tok != nil {
				set = append(set, tok)
			}
		}
		return set, nil
	case float64, string, bool:
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected result type %T", v)
	}
}

func lookup(vars ports.Variables, name string) (any, bool) {
	if vars == nil {
		return nil, false
	}
	return vars.Lookup(name)
}

func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case []etree.Token:
		return domain.NodeSet(t)
	}
	return v
}

// bareVariable reports whether expr is exactly one variable reference.
func bareVariable(expr string) (string, bool) {
	s := strings.TrimSpace(expr)
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	n := scanName(s, 1)
	if n != len(s) {
		return "", false
	}
	return s[1:n], true
}

// bindVariables rewrites every $name outside string literals.
func bindVariables(expr string, vars ports.Variables, t *tree) (string, error) {
	if !strings.Contains(expr, "$") {
		return expr, nil
	}
	var b strings.Builder
	bound := make(map[string]string)
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == '"' || c == '\'':
			end := strings.IndexByte(expr[i+1:], c)
			if end < 0 {
				b.WriteString(expr[i:])
				return b.String(), nil
			}
			b.WriteString(expr[i : i+end+2])
			i += end + 2
		case c == '$':
			end := scanName(expr, i+1)
			name := expr[i+1 : end]
			if name == "" {
				return "", fmt.Errorf("invalid variable reference at offset %d", i)
			}
			repl, ok := bound[name]
			if !ok {
				v, found := lookup(vars, name)
				if !found {
					return "", fmt.Errorf("undefined variable $%s", name)
				}
				repl = replacement(name, normalize(v), t)
				bound[name] = repl
			}
			b.WriteString(repl)
			i = end
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

func replacement(name string, v any, t *tree) string {
	switch val := v.(type) {
	case string:
		return literal(val)
	case float64:
		return number(val)
	case bool:
		if val {
			return "true()"
		}
		return "false()"
	case *etree.Element:
		holder := holderPrefix + name
		t.addHolder(holder, []etree.Token{val})
		return "/" + holder + "/node()"
	case domain.NodeSet:
		holder := holderPrefix + name
		t.addHolder(holder, val)
		return "/" + holder + "/node()"
	}
	return literal(domain.StringValue(v))
}

func scanName(s string, i int) int {
	for i < len(s) {
		c := s[i]
		if c == '_' || c == '-' || c == '.' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c >= 0x80 {
			i++
			continue
		}
		break
	}
	return i
}

func literal(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = `"` + p + `"`
	}
	return "concat(" + strings.Join(quoted, `, '"', `) + ")"
}

func number(f float64) string {
	switch {
	case math.IsNaN(f):
		return "(0 div 0)"
	case math.IsInf(f, 1):
		return "(1 div 0)"
	case math.IsInf(f, -1):
		return "(0 - (1 div 0))"
	case f < 0:
		return "(0 - " + strconv.FormatFloat(-f, 'f', -1, 64) + ")"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
