package ports

import "github.com/beevik/etree"

// Variables exposes the visible variable bindings to a QueryEvaluator.
type Variables interface {
	// Lookup returns the value bound to name, searching enclosing scopes.
	Lookup(name string) (any, bool)
}

// QueryEvaluator evaluates expressions of the query language.
type QueryEvaluator interface {
	// Evaluate runs expr with context as the context node.
	// The result is one of string, float64, bool, *etree.Element or domain.NodeSet.
	Evaluate(expr string, context etree.Token, vars Variables) (any, error)
}
