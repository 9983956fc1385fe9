package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// ErrEmptySheet is returned when the input holds no root element.
var ErrEmptySheet = errors.New("sheet has no root element")

// Parser is responsible for converting raw bytes into a directive tree.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a requestsheet. Comments are dropped, and so are
// whitespace-only text nodes between elements; text of leaf elements is
// kept verbatim since script bodies depend on it.
func (p *Parser) Parse(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to parse sheet: %w", err)
	}
	if doc.Root() == nil {
		return nil, ErrEmptySheet
	}
	strip(&doc.Element)
	return doc, nil
}

func strip(el *etree.Element) {
	hasElements := false
	for _, c := range el.Child {
		if _, ok := c.(*etree.Element); ok {
			hasElements = true
			break
		}
	}
	var kept []etree.Token
	for _, c := range el.Child {
		switch t := c.(type) {
		case *etree.Comment:
			continue
		case *etree.CharData:
			if hasElements && strings.TrimSpace(t.Data) == "" {
				continue
			}
		case *etree.Element:
			strip(t)
		}
		kept = append(kept, c)
	}
	if len(kept) == len(el.Child) {
		return
	}
	// Rebuild through the API so parent links and indexes stay consistent.
	for len(el.Child) > 0 {
		el.RemoveChildAt(len(el.Child) - 1)
	}
	for _, c := range kept {
		el.AddChild(c)
	}
}
