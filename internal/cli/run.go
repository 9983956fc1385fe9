package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/xrlt/pkg/domain"
)

// ParseParams turns name=value arguments into request parameters.
// A repeated name keeps its first value.
func ParseParams(args []string) (domain.Params, error) {
	params := domain.Params{}
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected name=value", arg)
		}
		if _, seen := params[name]; !seen {
			params[name] = value
		}
	}
	return params, nil
}

// Run transforms sheet once and writes the result to w.
func Run(ctx context.Context, rt *Runtime, sheet string, args []string, w io.Writer) error {
	params, err := ParseParams(args)
	if err != nil {
		return err
	}
	out, err := rt.Engine.TransformSheet(ctx, sheet, params)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	_, err = io.WriteString(w, out)
	return err
}
