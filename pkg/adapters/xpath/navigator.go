package xpath

import (
	"strings"

	"github.com/antchfx/xpath"
	"github.com/beevik/etree"
)

// tree is the node space one evaluation navigates: the context's document
// (or a virtual root above its topmost element) plus one holder element per
// variable referenced by the expression.
type tree struct {
	content []etree.Token
	holders map[*etree.Element][]etree.Token
	doc     *etree.Element
}

type step struct {
	siblings []etree.Token
	idx      int
}

// navigator implements xpath.NodeNavigator over etree tokens. Its position is
// the path of sibling lists from the root, so holder children can be visited
// without reparenting the bound nodes.
type navigator struct {
	tree *tree
	path []step
	attr int
}

var _ xpath.NodeNavigator = (*navigator)(nil)

func newTree(context etree.Token) (*tree, []etree.Token) {
	t := &tree{holders: make(map[*etree.Element][]etree.Token)}
	if context == nil {
		return t, nil
	}

	chain := []etree.Token{context}
	for p := context.Parent(); p != nil; p = p.Parent() {
		chain = append(chain, p)
	}
	top := chain[len(chain)-1]
	if el, ok := top.(*etree.Element); ok && el.Tag == "" && el.Parent() == nil {
		t.doc = el
		t.content = children(el)
		chain = chain[:len(chain)-1]
	} else {
		t.content = []etree.Token{top}
	}
	// chain runs from context up to the first level below the root.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return t, chain
}

func (t *tree) navigatorAt(chain []etree.Token) *navigator {
	n := &navigator{tree: t, attr: -1}
	siblings := t.content
	for _, tok := range chain {
		idx := indexOf(siblings, tok)
		if idx < 0 {
			break
		}
		n.path = append(n.path, step{siblings: siblings, idx: idx})
		siblings = t.children(tok)
	}
	return n
}

func (t *tree) addHolder(name string, nodes []etree.Token) {
	holder := etree.NewElement(name)
	t.holders[holder] = nodes
	t.content = append(t.content, holder)
}

func (t *tree) children(tok etree.Token) []etree.Token {
	el, ok := tok.(*etree.Element)
	if !ok {
		return nil
	}
	if nodes, ok := t.holders[el]; ok {
		return nodes
	}
	return children(el)
}

func children(el *etree.Element) []etree.Token {
	out := make([]etree.Token, 0, len(el.Child))
	for _, c := range el.Child {
		switch c.(type) {
		case *etree.Element, *etree.CharData, *etree.Comment:
			out = append(out, c)
		}
	}
	return out
}

func indexOf(list []etree.Token, tok etree.Token) int {
	for i, c := range list {
		if c == tok {
			return i
		}
	}
	return -1
}

func (n *navigator) current() etree.Token {
	if len(n.path) == 0 {
		return nil
	}
	s := n.path[len(n.path)-1]
	return s.siblings[s.idx]
}

func (n *navigator) element() *etree.Element {
	el, _ := n.current().(*etree.Element)
	return el
}

func (n *navigator) NodeType() xpath.NodeType {
	if len(n.path) == 0 {
		return xpath.RootNode
	}
	if n.attr >= 0 {
		return xpath.AttributeNode
	}
	switch n.current().(type) {
	case *etree.CharData:
		return xpath.TextNode
	case *etree.Comment:
		return xpath.CommentNode
	}
	return xpath.ElementNode
}

func (n *navigator) LocalName() string {
	el := n.element()
	if el == nil {
		return ""
	}
	if n.attr >= 0 {
		return el.Attr[n.attr].Key
	}
	return el.Tag
}

func (n *navigator) Prefix() string {
	el := n.element()
	if el == nil {
		return ""
	}
	if n.attr >= 0 {
		return el.Attr[n.attr].Space
	}
	return el.Space
}

// NamespaceURL backs namespace-uri().
func (n *navigator) NamespaceURL() string {
	el := n.element()
	if el == nil {
		return ""
	}
	if n.attr >= 0 {
		return el.Attr[n.attr].NamespaceURI()
	}
	return el.NamespaceURI()
}

func (n *navigator) Value() string {
	if len(n.path) == 0 {
		var b strings.Builder
		for _, c := range n.tree.content {
			b.WriteString(tokenString(c))
		}
		return b.String()
	}
	if n.attr >= 0 {
		return n.element().Attr[n.attr].Value
	}
	return tokenString(n.current())
}

func tokenString(tok etree.Token) string {
	switch t := tok.(type) {
	case *etree.CharData:
		return t.Data
	case *etree.Comment:
		return t.Data
	case *etree.Element:
		var b strings.Builder
		var walk func(*etree.Element)
		walk = func(e *etree.Element) {
			for _, c := range e.Child {
				switch cc := c.(type) {
				case *etree.CharData:
					b.WriteString(cc.Data)
				case *etree.Element:
					walk(cc)
				}
			}
		}
		walk(t)
		return b.String()
	}
	return ""
}

func (n *navigator) Copy() xpath.NodeNavigator {
	c := *n
	c.path = append([]step(nil), n.path...)
	return &c
}

func (n *navigator) MoveToRoot() {
	n.path = n.path[:0]
	n.attr = -1
}

func (n *navigator) MoveToParent() bool {
	if n.attr >= 0 {
		n.attr = -1
		return true
	}
	if len(n.path) == 0 {
		return false
	}
	n.path = n.path[:len(n.path)-1]
	return true
}

func (n *navigator) MoveToNextAttribute() bool {
	el := n.element()
	if el == nil {
		return false
	}
	for i := n.attr + 1; i < len(el.Attr); i++ {
		a := el.Attr[i]
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			continue
		}
		n.attr = i
		return true
	}
	return false
}

func (n *navigator) MoveToChild() bool {
	if n.attr >= 0 {
		return false
	}
	var kids []etree.Token
	if len(n.path) == 0 {
		kids = n.tree.content
	} else {
		kids = n.tree.children(n.current())
	}
	if len(kids) == 0 {
		return false
	}
	n.path = append(n.path, step{siblings: kids, idx: 0})
	return true
}

func (n *navigator) MoveToFirst() bool {
	if n.attr >= 0 || len(n.path) == 0 {
		return false
	}
	n.path[len(n.path)-1].idx = 0
	return true
}

func (n *navigator) MoveToNext() bool {
	if n.attr >= 0 || len(n.path) == 0 {
		return false
	}
	s := &n.path[len(n.path)-1]
	if s.idx+1 >= len(s.siblings) {
		return false
	}
	s.idx++
	return true
}

func (n *navigator) MoveToPrevious() bool {
	if n.attr >= 0 || len(n.path) == 0 {
		return false
	}
	s := &n.path[len(n.path)-1]
	if s.idx == 0 {
		return false
	}
	s.idx--
	return true
}

func (n *navigator) MoveTo(other xpath.NodeNavigator) bool {
	o, ok := other.(*navigator)
	if !ok || o.tree != n.tree {
		return false
	}
	n.path = append(n.path[:0], o.path...)
	n.attr = o.attr
	return true
}

// token returns the etree value for the node under the cursor. Attributes are
// returned as detached text holding their value.
func (n *navigator) token() etree.Token {
	if len(n.path) == 0 {
		if n.tree.doc != nil {
			return n.tree.doc
		}
		if len(n.tree.content) > 0 {
			return n.tree.content[0]
		}
		return nil
	}
	if n.attr >= 0 {
		return etree.NewText(n.element().Attr[n.attr].Value)
	}
	return n.current()
}
