package domain

import (
	"time"

	"github.com/beevik/etree"
)

// Namespace is the XML namespace of the directive vocabulary.
const Namespace = "http://xrlt.net/Transform"

// RootTag is the local name of a sheet's root element.
const RootTag = "requestsheet"

// Kind identifies a directive in the closed vocabulary.
// Elements outside the vocabulary are KindLiteral and are copied to the output.
type Kind int

const (
	KindLiteral Kind = iota
	KindParam
	KindSlice
	KindForm
	KindVariable
	KindField
	KindPush
	KindIf
	KindChoose
	KindWhen
	KindOtherwise
	KindWithParam
	KindWithHeader
	KindWithBody
	KindValueOf
	KindCopyOf
	KindText
	KindInclude
	KindSuccess
	KindFailure
	KindForEach
	KindTransform
	KindApply
	KindLog
	KindImport
	KindResponseHeader
	KindResponseStatus
)

var kindNames = map[string]Kind{
	"param":           KindParam,
	"slice":           KindSlice,
	"form":            KindForm,
	"variable":        KindVariable,
	"field":           KindField,
	"push":            KindPush,
	"if":              KindIf,
	"choose":          KindChoose,
	"when":            KindWhen,
	"otherwise":       KindOtherwise,
	"with-param":      KindWithParam,
	"with-header":     KindWithHeader,
	"with-body":       KindWithBody,
	"value-of":        KindValueOf,
	"copy-of":         KindCopyOf,
	"text":            KindText,
	"include":         KindInclude,
	"success":         KindSuccess,
	"failure":         KindFailure,
	"for-each":        KindForEach,
	"transform":       KindTransform,
	"apply":           KindApply,
	"log":             KindLog,
	"import":          KindImport,
	"response-header": KindResponseHeader,
	"response-status": KindResponseStatus,
}

// KindOf classifies an element of the directive tree.
func KindOf(el *etree.Element) Kind {
	if el == nil || el.NamespaceURI() != Namespace {
		return KindLiteral
	}
	if k, ok := kindNames[el.Tag]; ok {
		return k
	}
	return KindLiteral
}

func (k Kind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return "literal"
}

// Attribute names shared by several directives.
const (
	AttrName    = "name"
	AttrSelect  = "select"
	AttrTest    = "test"
	AttrHref    = "href"
	AttrType    = "type"
	AttrReplace = "replace"
	AttrMethod  = "method"
	AttrLevel   = "level"
)

// Hooks observe the blocking operations of a transform. Any field may be nil.
type Hooks struct {
	OnInclude func(url string, cached bool, elapsed time.Duration, err error)
	OnScript  func(name string, elapsed time.Duration, err error)
}
