package xrlt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/beevik/etree"

	"github.com/aretw0/xrlt/internal/compiler"
	"github.com/aretw0/xrlt/internal/logging"
	"github.com/aretw0/xrlt/internal/runtime"
	"github.com/aretw0/xrlt/pkg/adapters/fetch"
	"github.com/aretw0/xrlt/pkg/adapters/file"
	"github.com/aretw0/xrlt/pkg/adapters/process"
	"github.com/aretw0/xrlt/pkg/adapters/script"
	"github.com/aretw0/xrlt/pkg/adapters/xpath"
	"github.com/aretw0/xrlt/pkg/domain"
	"github.com/aretw0/xrlt/pkg/ports"
	"github.com/aretw0/xrlt/pkg/registry"
)

// Engine is the high-level entry point for the XRLT library.
// It wraps the internal runtime and resolves sheets through a SheetLoader.
type Engine struct {
	runtime        *runtime.Engine
	parser         *compiler.Parser
	importer       *compiler.Importer
	loader         ports.SheetLoader
	query          ports.QueryEvaluator
	scripts        *registry.Registry
	fetcher        ports.Fetcher
	cache          ports.ResponseCache
	cacheTTL       time.Duration
	stylesheets    ports.StylesheetApplier
	hooks          domain.Hooks
	logger         *slog.Logger
	includeTimeout time.Duration
	scriptTimeout  time.Duration
	stripTypes     bool
	Name           string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLoader injects a custom SheetLoader, bypassing the filesystem loader.
func WithLoader(l ports.SheetLoader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithQueryEvaluator replaces the XPath evaluator.
func WithQueryEvaluator(q ports.QueryEvaluator) Option {
	return func(e *Engine) {
		e.query = q
	}
}

// WithScriptEvaluator registers ev for fields and slices whose type is typ.
func WithScriptEvaluator(typ string, ev ports.ScriptEvaluator) Option {
	return func(e *Engine) {
		e.scripts.Register(typ, ev)
	}
}

// WithFetcher sets the transport used by include.
func WithFetcher(f ports.Fetcher) Option {
	return func(e *Engine) {
		e.fetcher = f
	}
}

// WithResponseCache caches included GET responses for ttl.
func WithResponseCache(c ports.ResponseCache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = c
		e.cacheTTL = ttl
	}
}

// WithStylesheetApplier sets the engine behind the transform directive.
func WithStylesheetApplier(a ports.StylesheetApplier) Option {
	return func(e *Engine) {
		e.stylesheets = a
	}
}

// WithHooks registers observability hooks.
func WithHooks(h domain.Hooks) Option {
	return func(e *Engine) {
		e.hooks = h
	}
}

// WithIncludeTimeout bounds each include request.
func WithIncludeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.includeTimeout = d
	}
}

// WithScriptTimeout bounds each script execution.
func WithScriptTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.scriptTimeout = d
	}
}

// WithStripTypes controls whether JSON type annotations are removed from
// the serialized output (default: true).
func WithStripTypes(strip bool) Option {
	return func(e *Engine) {
		e.stripTypes = strip
	}
}

// New initializes a new XRLT Engine.
// By default, sheets are read from the directory root and includes go over
// HTTP. If WithLoader is provided, root may be empty.
func New(root string, opts ...Option) (*Engine, error) {
	eng := &Engine{
		parser:     compiler.NewParser(),
		scripts:    registry.NewRegistry(),
		stripTypes: true,
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.loader == nil {
		if root == "" {
			return nil, fmt.Errorf("root is required when no custom loader is provided")
		}
		absPath, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		loader, err := file.New(absPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sheets: %w", err)
		}
		eng.loader = loader
		eng.Name = filepath.Base(absPath)
		root = absPath
	} else if root != "" {
		eng.Name = filepath.Base(root)
	}

	eng.importer = compiler.NewImporter(eng.parser, eng.loader)

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("sheets", eng.Name)
	}

	if eng.query == nil {
		eng.query = xpath.New()
	}
	if _, ok := eng.scripts.Lookup(script.Type); !ok {
		eng.scripts.Register(script.Type, script.New(script.WithLogger(eng.logger)))
	}
	if eng.fetcher == nil {
		f, err := fetch.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create fetcher: %w", err)
		}
		eng.fetcher = f
	}
	if eng.stylesheets == nil {
		eng.stylesheets = process.NewApplier(process.WithBaseDir(root))
	}

	eng.runtime = runtime.NewEngine(eng.query,
		runtime.WithLogger(eng.logger),
		runtime.WithScripts(eng.scripts),
		runtime.WithFetcher(eng.fetcher),
		runtime.WithResponseCache(eng.cache, eng.cacheTTL),
		runtime.WithStylesheetApplier(eng.stylesheets),
		runtime.WithHooks(eng.hooks),
		runtime.WithIncludeTimeout(eng.includeTimeout),
		runtime.WithScriptTimeout(eng.scriptTimeout),
	)
	return eng, nil
}

// Result is a serialized document with the response metadata its sheet set.
type Result struct {
	Output   string
	Response domain.Response
}

// Parse reads a requestsheet. Imports resolve against the loader root.
func (e *Engine) Parse(data []byte) (*etree.Document, error) {
	return e.parse("", data)
}

// LoadSheet reads the sheet called name and resolves its imports relative to it.
func (e *Engine) LoadSheet(name string) (*etree.Document, error) {
	data, err := e.loader.GetSheet(name)
	if err != nil {
		return nil, err
	}
	doc, err := e.parse(name, data)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", name, err)
	}
	return doc, nil
}

func (e *Engine) parse(name string, data []byte) (*etree.Document, error) {
	doc, err := e.parser.Parse(data)
	if err != nil {
		return nil, err
	}
	if err := e.importer.Resolve(doc, name); err != nil {
		return nil, err
	}
	return doc, nil
}

// Render evaluates a parsed sheet and serializes its result.
func (e *Engine) Render(ctx context.Context, sheet *etree.Document, params domain.Params) (*Result, error) {
	res, err := e.runtime.Run(ctx, sheet, params)
	if err != nil {
		return nil, err
	}
	out, err := runtime.Serialize(res.Out, e.stripTypes)
	if err != nil {
		return nil, err
	}
	return &Result{Output: out, Response: res.Response}, nil
}

// RenderSheet loads the sheet called name and renders it.
func (e *Engine) RenderSheet(ctx context.Context, name string, params domain.Params) (*Result, error) {
	sheet, err := e.LoadSheet(name)
	if err != nil {
		return nil, err
	}
	res, err := e.Render(ctx, sheet, params)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", name, err)
	}
	return res, nil
}

// Transform evaluates a parsed sheet and serializes its result.
func (e *Engine) Transform(ctx context.Context, sheet *etree.Document, params domain.Params) (string, error) {
	res, err := e.Render(ctx, sheet, params)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// TransformBytes parses data and transforms it.
func (e *Engine) TransformBytes(ctx context.Context, data []byte, params domain.Params) (string, error) {
	sheet, err := e.Parse(data)
	if err != nil {
		return "", err
	}
	return e.Transform(ctx, sheet, params)
}

// TransformSheet loads the sheet called name and transforms it.
func (e *Engine) TransformSheet(ctx context.Context, name string, params domain.Params) (string, error) {
	res, err := e.RenderSheet(ctx, name, params)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// Sheets lists the sheets available to the loader.
func (e *Engine) Sheets() ([]string, error) {
	return e.loader.ListSheets()
}

// Loader returns the underlying SheetLoader used by the engine.
func (e *Engine) Loader() ports.SheetLoader {
	return e.loader
}

// ScriptTypes lists the registered script types.
func (e *Engine) ScriptTypes() []string {
	return e.scripts.Types()
}
