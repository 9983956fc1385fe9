package runtime

import (
	"bytes"

	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/pkg/domain"
	"github.com/aretw0/xrlt/pkg/xmljson"
)

// Serialize renders the result of a transform: the first child element of
// out as indented XML, or the text of out when it has no child elements.
// With stripTypes, mapper type annotations are removed from leaf elements.
func Serialize(out *etree.Element, stripTypes bool) (string, error) {
	children := out.ChildElements()
	if len(children) == 0 {
		return domain.InnerText(out), nil
	}
	root := children[0].Copy()
	if stripTypes {
		stripTypeAttrs(root)
	}

	doc := etree.NewDocument()
	doc.SetRoot(root)
	doc.Indent(2)
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func stripTypeAttrs(el *etree.Element) {
	children := el.ChildElements()
	if len(children) == 0 {
		if a := el.SelectAttr(xmljson.TypeAttr); a != nil {
			switch a.Value {
			case xmljson.TypeBoolean, xmljson.TypeNumber, xmljson.TypeString:
				el.RemoveAttr(xmljson.TypeAttr)
			}
		}
		return
	}
	for _, c := range children {
		stripTypeAttrs(c)
	}
}
