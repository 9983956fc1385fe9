// Package runtime implements the XRLT interpreter: a recursive walk of the
// directive tree over one shared execution state.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/internal/logging"
	"github.com/aretw0/xrlt/pkg/domain"
	"github.com/aretw0/xrlt/pkg/ports"
	"github.com/aretw0/xrlt/pkg/registry"
)

// Default bounds for blocking collaborators.
const (
	DefaultIncludeTimeout = 10 * time.Second
	DefaultScriptTimeout  = 5 * time.Second
)

// OutputTag names the element results are written into.
const OutputTag = "ret"

// Engine evaluates directive trees. It holds no per-transform data and is
// safe for concurrent use.
type Engine struct {
	query          ports.QueryEvaluator
	scripts        *registry.Registry
	fetcher        ports.Fetcher
	cache          ports.ResponseCache
	cacheTTL       time.Duration
	stylesheets    ports.StylesheetApplier
	logger         *slog.Logger
	hooks          domain.Hooks
	includeTimeout time.Duration
	scriptTimeout  time.Duration
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for recovered failures and the log directive.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithScripts sets the registry of script evaluators.
func WithScripts(r *registry.Registry) EngineOption {
	return func(e *Engine) {
		e.scripts = r
	}
}

// WithFetcher sets the transport used by include.
func WithFetcher(f ports.Fetcher) EngineOption {
	return func(e *Engine) {
		e.fetcher = f
	}
}

// WithResponseCache caches successful GET includes for ttl.
func WithResponseCache(c ports.ResponseCache, ttl time.Duration) EngineOption {
	return func(e *Engine) {
		e.cache = c
		e.cacheTTL = ttl
	}
}

// WithStylesheetApplier sets the engine behind the transform directive.
func WithStylesheetApplier(a ports.StylesheetApplier) EngineOption {
	return func(e *Engine) {
		e.stylesheets = a
	}
}

// WithHooks installs observation hooks.
func WithHooks(h domain.Hooks) EngineOption {
	return func(e *Engine) {
		e.hooks = h
	}
}

// WithIncludeTimeout bounds each include request.
func WithIncludeTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.includeTimeout = d
		}
	}
}

// WithScriptTimeout bounds each script execution.
func WithScriptTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.scriptTimeout = d
		}
	}
}

// NewEngine creates a new engine evaluating expressions with query.
func NewEngine(query ports.QueryEvaluator, opts ...EngineOption) *Engine {
	e := &Engine{
		query:          query,
		scripts:        registry.NewRegistry(),
		logger:         logging.NewNop(),
		includeTimeout: DefaultIncludeTimeout,
		scriptTimeout:  DefaultScriptTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of one transform.
type Result struct {
	Out      *etree.Element
	Response domain.Response
}

// Transform evaluates the children of the sheet's root element into a fresh
// <ret> element and returns it. The first fatal error aborts the walk.
func (e *Engine) Transform(ctx context.Context, sheet *etree.Document, params domain.Params) (*etree.Element, error) {
	res, err := e.Run(ctx, sheet, params)
	return res.Out, err
}

// Run is Transform that also returns the response metadata the sheet set.
// The result is never nil.
func (e *Engine) Run(ctx context.Context, sheet *etree.Document, params domain.Params) (*Result, error) {
	res := &Result{Out: etree.NewElement(OutputTag)}
	root := sheet.Root()
	if root == nil {
		return res, nil
	}
	st := NewState(params)
	err := e.evaluate(ctx, root, st, res.Out)
	res.Response = st.Response()
	return res, err
}
