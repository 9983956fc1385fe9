package graph

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/pkg/domain"
)

type edge struct {
	from, to, label string
	dotted          bool
}

type builder struct {
	nodes map[string]string
	order []string
	edges []edge
}

// GenerateMermaid produces a Mermaid flowchart of a requestsheet.
// It applies semantic styling:
// - Sheet: ((Circle))
// - Slice or form: [[Subroutine]]
// - Include: [/Parallelogram/]
// - Stylesheet: {{Hexagon}}
// Apply calls are solid arrows, includes and transforms are dotted.
func GenerateMermaid(name string, doc *etree.Document) string {
	b := &builder{nodes: make(map[string]string)}
	root := "sheet"
	b.node(root, fmt.Sprintf("((%q))", name))
	if doc.Root() != nil {
		b.walk(doc.Root(), root)
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")
	for _, id := range b.order {
		sb.WriteString(fmt.Sprintf("    %s%s\n", id, b.nodes[id]))
	}
	for _, e := range b.edges {
		arrow := fmt.Sprintf("-- %q -->", e.label)
		if e.dotted {
			arrow = fmt.Sprintf("-. %q .->", e.label)
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", e.from, arrow, e.to))
	}
	return sb.String()
}

func (b *builder) node(id, shape string) {
	if _, ok := b.nodes[id]; ok {
		return
	}
	b.nodes[id] = shape
	b.order = append(b.order, id)
}

func (b *builder) walk(el *etree.Element, owner string) {
	for _, c := range el.ChildElements() {
		next := owner
		switch domain.KindOf(c) {
		case domain.KindSlice, domain.KindForm:
			if name := c.SelectAttrValue(domain.AttrName, ""); name != "" {
				next = sliceID(name)
				b.node(next, fmt.Sprintf("[[%q]]", name))
			}
		case domain.KindApply:
			name := c.SelectAttrValue(domain.AttrName, "")
			b.node(sliceID(name), fmt.Sprintf("[[%q]]", name))
			b.edges = append(b.edges, edge{from: owner, to: sliceID(name), label: "apply"})
		case domain.KindInclude:
			href := c.SelectAttrValue(domain.AttrHref, "")
			id := "include_" + sanitizeMermaidID(href)
			b.node(id, fmt.Sprintf("[/%q/]", quote(href)))
			label := strings.ToUpper(c.SelectAttrValue(domain.AttrMethod, "GET"))
			b.edges = append(b.edges, edge{from: owner, to: id, label: label, dotted: true})
		case domain.KindTransform:
			href := c.SelectAttrValue(domain.AttrHref, "")
			id := "transform_" + sanitizeMermaidID(href)
			b.node(id, fmt.Sprintf("{{%q}}", quote(href)))
			b.edges = append(b.edges, edge{from: owner, to: id, label: "transform", dotted: true})
		}
		b.walk(c, next)
	}
}

func sliceID(name string) string {
	return "slice_" + sanitizeMermaidID(name)
}

// quote keeps labels free of characters Mermaid treats as syntax.
func quote(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}

func sanitizeMermaidID(id string) string {
	var sb strings.Builder
	for _, r := range id {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
