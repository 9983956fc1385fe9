package compiler

import (
	"path"
	"strings"

	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/pkg/domain"
	"github.com/aretw0/xrlt/pkg/ports"
)

// MaxImportDepth bounds how deeply imported sheets may import others.
const MaxImportDepth = 10

// Importer splices imported sheets into the sheets that import them.
type Importer struct {
	parser *Parser
	loader ports.SheetLoader
}

// NewImporter creates an importer reading sheets through loader.
func NewImporter(parser *Parser, loader ports.SheetLoader) *Importer {
	return &Importer{parser: parser, loader: loader}
}

// Resolve replaces every top-level import of doc, loaded as name, with the
// top-level children of the imported sheet. Hrefs are relative to the
// directory of name; a leading slash makes them relative to the loader root.
func (im *Importer) Resolve(doc *etree.Document, name string) error {
	root := doc.Root()
	if root == nil {
		return nil
	}
	return im.resolve(root, name, 0)
}

func (im *Importer) resolve(root *etree.Element, name string, depth int) error {
	if depth > MaxImportDepth {
		return &domain.ImportError{Href: name, Err: domain.ErrImportTooDeep}
	}
	for _, c := range root.ChildElements() {
		if domain.KindOf(c) != domain.KindImport {
			continue
		}
		href := c.SelectAttrValue(domain.AttrHref, "")
		if href == "" {
			return &domain.MissingAttributeError{Directive: domain.Describe(c), Attribute: domain.AttrHref}
		}
		target := resolveHref(name, href)

		data, err := im.loader.GetSheet(target)
		if err != nil {
			return &domain.ImportError{Href: target, Err: err}
		}
		imported, err := im.parser.Parse(data)
		if err != nil {
			return &domain.ImportError{Href: target, Err: err}
		}
		iroot := imported.Root()
		if iroot.NamespaceURI() != domain.Namespace || iroot.Tag != domain.RootTag {
			return &domain.ImportError{Href: target, Err: domain.ErrNotRequestsheet}
		}
		if err := im.resolve(iroot, target, depth+1); err != nil {
			return err
		}

		at := c.Index()
		for i, tok := range domain.DetachChildren(iroot) {
			if el, ok := tok.(*etree.Element); ok {
				redeclare(el, iroot, root)
			}
			root.InsertChildAt(at+i, tok)
		}
		root.RemoveChild(c)
	}
	return nil
}

func resolveHref(name, href string) string {
	if strings.HasPrefix(href, "/") {
		return strings.TrimPrefix(path.Clean(href), "/")
	}
	return path.Join(path.Dir(name), href)
}

// redeclare copies the namespace declarations of from onto el wherever to
// binds the same prefix differently, so el keeps its meaning once moved.
func redeclare(el, from, to *etree.Element) {
	for _, a := range from.Attr {
		if a.Space != "xmlns" && (a.Space != "" || a.Key != "xmlns") {
			continue
		}
		key := a.FullKey()
		if el.SelectAttr(key) != nil || to.SelectAttrValue(key, "\x00") == a.Value {
			continue
		}
		el.CreateAttr(key, a.Value)
	}
}
