package runtime

import (
	"context"
	"log/slog"
	"strings"

	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/pkg/domain"
)

// valueOf replaces the text of out with the string value of select.
func (e *Engine) valueOf(el *etree.Element, st *State, out *etree.Element) error {
	sel, err := requireAttr(el, domain.AttrSelect)
	if err != nil {
		return err
	}
	s, err := e.evalString(sel, st, out)
	if err != nil {
		return err
	}
	out.SetText(s)
	return nil
}

// copyOf moves the selected nodes under out; scalars are appended as text.
func (e *Engine) copyOf(el *etree.Element, st *State, out *etree.Element) error {
	sel, err := requireAttr(el, domain.AttrSelect)
	if err != nil {
		return err
	}
	v, err := e.eval(sel, st, out)
	if err != nil {
		return err
	}
	switch t := v.(type) {
	case domain.NodeSet:
		appendNodes(out, t)
	case *etree.Element:
		appendNodes(out, []etree.Token{t})
	default:
		domain.AppendText(out, domain.StringValue(v))
	}
	return nil
}

func (e *Engine) text(el *etree.Element, out *etree.Element) error {
	domain.AppendText(out, domain.InnerText(el))
	return nil
}

var logLevels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// log emits the text its children produce. It writes nothing to out.
func (e *Engine) log(ctx context.Context, el *etree.Element, st *State, out *etree.Element) error {
	name := el.SelectAttrValue(domain.AttrLevel, "info")
	level, ok := logLevels[strings.ToLower(name)]
	if !ok {
		return &domain.InvalidAttributeError{Directive: domain.Describe(el), Attribute: domain.AttrLevel, Value: name}
	}
	scratch := etree.NewElement("log")
	if err := e.evaluate(ctx, el, st, scratch); err != nil {
		return err
	}
	e.logger.Log(ctx, level, domain.InnerText(scratch), "directive", "log")
	return nil
}
