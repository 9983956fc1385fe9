package script

import (
	"fmt"
	"math"
	"sort"

	json "github.com/goccy/go-json"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// toStarlark converts a JSON-compatible Go value into a starlark value.
func toStarlark(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return v, nil
	case bool:
		return starlark.Bool(v), nil
	case string:
		return starlark.String(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return starlark.MakeInt64(int64(v)), nil
		}
		return starlark.Float(v), nil
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(v))
		for _, k := range keys {
			sv, err := toStarlark(v[k])
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	}

	// Anything else goes through the JSON codec to reach a generic shape.
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unsupported value of type %T: %w", v, err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return toStarlark(generic)
}

// fromStarlark converts a starlark value into a JSON-compatible Go value.
// Numbers come back as float64, matching the JSON codec.
func fromStarlark(v starlark.Value) (any, error) {
	switch v := v.(type) {
	case nil, starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.String:
		return string(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return float64(i), nil
		}
		f, _ := starlark.AsFloat(v)
		return f, nil
	case starlark.Float:
		return float64(v), nil
	case *starlark.List:
		return fromIterable(v)
	case starlark.Tuple:
		return fromIterable(v)
	case *starlark.Dict:
		out := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			k, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("dict key %s is not a string", item[0])
			}
			gv, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			out[k] = gv
		}
		return out, nil
	case *starlarkstruct.Struct:
		d := make(starlark.StringDict)
		v.ToStringDict(d)
		out := make(map[string]any, len(d))
		for k, sv := range d {
			gv, err := fromStarlark(sv)
			if err != nil {
				return nil, err
			}
			out[k] = gv
		}
		return out, nil
	case *thenable:
		return fromStarlark(v.value)
	case *deferred:
		return fromStarlark(v.value)
	}
	return nil, fmt.Errorf("value of type %s is not JSON-serializable", v.Type())
}

func fromIterable(v starlark.Indexable) (any, error) {
	out := make([]any, v.Len())
	for i := range v.Len() {
		gv, err := fromStarlark(v.Index(i))
		if err != nil {
			return nil, err
		}
		out[i] = gv
	}
	return out, nil
}

// thenable wraps a binding so scripts can use the promise idiom:
// user.then(fn) calls fn(user) right away and returns its result.
type thenable struct {
	value starlark.Value
}

var _ starlark.HasAttrs = (*thenable)(nil)

func (t *thenable) String() string        { return t.value.String() }
func (t *thenable) Type() string          { return "thenable" }
func (t *thenable) Freeze()               { t.value.Freeze() }
func (t *thenable) Truth() starlark.Bool  { return t.value.Truth() }
func (t *thenable) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: thenable") }
func (t *thenable) AttrNames() []string   { return []string{"then", "value"} }

func (t *thenable) Attr(name string) (starlark.Value, error) {
	switch name {
	case "value":
		return t.value, nil
	case "then":
		return starlark.NewBuiltin("then", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var fn starlark.Callable
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &fn); err != nil {
				return nil, err
			}
			return starlark.Call(thread, fn, starlark.Tuple{t.value}, nil)
		}), nil
	}
	return nil, nil
}

// deferred is the object returned by Deferred(). A resolved deferred
// returned from a script yields its resolved value.
type deferred struct {
	resolved bool
	value    starlark.Value
}

var _ starlark.HasAttrs = (*deferred)(nil)

func (d *deferred) String() string        { return "Deferred()" }
func (d *deferred) Type() string          { return "deferred" }
func (d *deferred) Freeze()               {}
func (d *deferred) Truth() starlark.Bool  { return starlark.True }
func (d *deferred) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: deferred") }
func (d *deferred) AttrNames() []string   { return []string{"resolve", "resolved", "then"} }

func (d *deferred) Attr(name string) (starlark.Value, error) {
	switch name {
	case "resolved":
		return starlark.Bool(d.resolved), nil
	case "resolve":
		return starlark.NewBuiltin("resolve", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var v starlark.Value = starlark.None
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &v); err != nil {
				return nil, err
			}
			d.resolved, d.value = true, v
			return starlark.None, nil
		}), nil
	case "then":
		return starlark.NewBuiltin("then", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var fn starlark.Callable
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &fn); err != nil {
				return nil, err
			}
			v := d.value
			if v == nil {
				v = starlark.None
			}
			return starlark.Call(thread, fn, starlark.Tuple{v}, nil)
		}), nil
	}
	return nil, nil
}
