package runtime

import (
	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/pkg/domain"
)

// Slice is a registered reusable template.
type Slice struct {
	Name    string
	Type    string
	Element *etree.Element
}

// State is the execution state of one transform. It is shared by reference
// through slice application and script callbacks and is never copied.
type State struct {
	frames   []map[string]any
	slices   map[string]*Slice
	contexts []etree.Token
	field    *etree.Element
	params   domain.Params
	response domain.Response
}

// NewState creates the state of a transform over params.
func NewState(params domain.Params) *State {
	return &State{
		frames: []map[string]any{{}},
		slices: make(map[string]*Slice),
		params: params,
	}
}

// Lookup resolves name from the innermost frame outwards.
func (s *State) Lookup(name string) (any, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Visible returns every visible binding; inner frames shadow outer ones.
func (s *State) Visible() map[string]any {
	out := make(map[string]any)
	for _, frame := range s.frames {
		for k, v := range frame {
			out[k] = v
		}
	}
	return out
}

// Response returns the status and headers set so far.
func (s *State) Response() domain.Response {
	return s.response
}

// Depth returns the number of scope frames.
func (s *State) Depth() int {
	return len(s.frames)
}

func (s *State) bind(name string, v any) {
	s.frames[len(s.frames)-1][name] = v
}

func (s *State) pushFrame() {
	s.frames = append(s.frames, map[string]any{})
}

func (s *State) popFrame() {
	s.frames = s.frames[:len(s.frames)-1]
}

func (s *State) register(sl *Slice) {
	s.slices[sl.Name] = sl
}

func (s *State) slice(name string) (*Slice, bool) {
	sl, ok := s.slices[name]
	return sl, ok
}

// context returns the current context node, falling back to out.
func (s *State) context(out *etree.Element) etree.Token {
	if n := len(s.contexts); n > 0 {
		return s.contexts[n-1]
	}
	return out
}

func (s *State) pushContext(tok etree.Token) {
	s.contexts = append(s.contexts, tok)
}

func (s *State) popContext() {
	s.contexts = s.contexts[:len(s.contexts)-1]
}
