// Package xmljson implements the fixed JSON/XML convention used for include
// results and for moving values in and out of scripts.
//
// Scalars become leaf elements carrying a type attribute (boolean, number or
// string). Lists become repeated sibling elements named after the enclosing key,
// or "_" when there is none. Objects become one child element per key, in sorted
// key order. null becomes an empty element without a type.
package xmljson

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/beevik/etree"
	json "github.com/goccy/go-json"
)

// Type attribute values.
const (
	TypeAttr    = "type"
	TypeBoolean = "boolean"
	TypeNumber  = "number"
	TypeString  = "string"

	// ListItem names list items that have no enclosing key.
	ListItem = "_"
	// RootTag names the element created when Encode is given no root.
	RootTag = "root"
)

// Encode writes v into root following the convention and returns root.
// A new <root> element is created when root is nil.
func Encode(v any, root *etree.Element) (*etree.Element, error) {
	if root == nil {
		root = etree.NewElement(RootTag)
	}
	if err := encode(v, root, ""); err != nil {
		return nil, err
	}
	return root, nil
}

func encode(v any, el *etree.Element, name string) error {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		el.CreateAttr(TypeAttr, TypeBoolean)
		el.SetText(strconv.FormatBool(t))
	case float64:
		el.CreateAttr(TypeAttr, TypeNumber)
		el.SetText(formatNumber(t))
	case float32:
		return encode(float64(t), el, name)
	case int:
		return encode(int64(t), el, name)
	case int32:
		return encode(int64(t), el, name)
	case int64:
		el.CreateAttr(TypeAttr, TypeNumber)
		el.SetText(strconv.FormatInt(t, 10))
	case json.Number:
		el.CreateAttr(TypeAttr, TypeNumber)
		el.SetText(t.String())
	case string:
		el.CreateAttr(TypeAttr, TypeString)
		el.SetText(t)
	case []any:
		tag := name
		if tag == "" {
			tag = ListItem
		}
		for _, item := range t {
			child := el.CreateElement(tag)
			if err := encode(item, child, ""); err != nil {
				return err
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if list, ok := t[k].([]any); ok {
				if err := encode(list, el, k); err != nil {
					return err
				}
				continue
			}
			child := el.CreateElement(k)
			if err := encode(t[k], child, k); err != nil {
				return err
			}
		}
	default:
		normalized, err := normalize(v)
		if err != nil {
			return err
		}
		return encode(normalized, el, name)
	}
	return nil
}

// normalize turns arbitrary Go values (structs, typed slices and maps) into
// the generic JSON shapes by a round trip through the codec.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("xmljson: value of type %T is not JSON-serializable: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("xmljson: cannot normalize %T: %w", v, err)
	}
	switch out.(type) {
	case nil, bool, float64, string, []any, map[string]any:
		return out, nil
	}
	return nil, fmt.Errorf("xmljson: unsupported value of type %T", v)
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Decode reverses Encode. Leaves are converted according to their type
// attribute; repeated tags collapse into lists; an object whose only key is
// "_" collapses to its value.
func Decode(el *etree.Element) any {
	if el == nil {
		return nil
	}
	children := el.ChildElements()
	if len(children) == 0 {
		return decodeLeaf(el)
	}

	ret := make(map[string]any, len(children))
	lists := make(map[string]bool)
	for _, c := range children {
		v := Decode(c)
		existing, seen := ret[c.Tag]
		switch {
		case !seen:
			ret[c.Tag] = v
		case lists[c.Tag]:
			ret[c.Tag] = append(existing.([]any), v)
		default:
			ret[c.Tag] = []any{existing, v}
			lists[c.Tag] = true
		}
	}
	if v, ok := ret[ListItem]; ok && len(ret) == 1 {
		return v
	}
	return ret
}

func decodeLeaf(el *etree.Element) any {
	text := el.Text()
	switch el.SelectAttrValue(TypeAttr, "") {
	case TypeBoolean:
		return text == "true"
	case TypeNumber:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return text
		}
		return f
	case TypeString:
		return text
	}
	if text == "" {
		return nil
	}
	return text
}

// Marshal encodes a JSON document into a <root> element.
func Marshal(data []byte) (*etree.Element, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("xmljson: invalid JSON: %w", err)
	}
	return Encode(v, nil)
}

// Unmarshal decodes el and serializes the result as JSON.
func Unmarshal(el *etree.Element) ([]byte, error) {
	return json.Marshal(Decode(el))
}
