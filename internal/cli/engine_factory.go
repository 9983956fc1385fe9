package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/xrlt"
	"github.com/aretw0/xrlt/internal/config"
	"github.com/aretw0/xrlt/internal/logging"
	"github.com/aretw0/xrlt/pkg/adapters/fetch"
	"github.com/aretw0/xrlt/pkg/adapters/memory"
	"github.com/aretw0/xrlt/pkg/adapters/process"
	"github.com/aretw0/xrlt/pkg/adapters/redis"
	"github.com/aretw0/xrlt/pkg/adapters/script"
	"github.com/aretw0/xrlt/pkg/observability"
	"github.com/aretw0/xrlt/pkg/persistence/middleware"
	"github.com/aretw0/xrlt/pkg/ports"
)

// customProcessor names the processor registered from the xslt config section.
const customProcessor = "custom"

// Runtime bundles an engine with the services built around it for one command.
type Runtime struct {
	Config  config.Config
	Engine  *xrlt.Engine
	Logger  *slog.Logger
	Metrics *observability.Metrics

	closers []io.Closer
}

// NewRuntime initializes an engine with standard CLI conventions.
func NewRuntime(cfg config.Config) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Metrics: observability.NewMetrics()}

	logger, err := rt.createLogger()
	if err != nil {
		return nil, err
	}
	rt.Logger = logger

	engineOpts := []xrlt.Option{
		xrlt.WithLogger(logger),
		xrlt.WithHooks(rt.Metrics.Hooks()),
		xrlt.WithIncludeTimeout(cfg.IncludeTimeout),
		xrlt.WithScriptTimeout(cfg.ScriptTimeout),
		xrlt.WithStripTypes(cfg.StripTypes),
	}

	// 1. Scripts
	scriptOpts := []script.Option{script.WithLogger(logger)}
	if cfg.ScriptMaxSteps > 0 {
		scriptOpts = append(scriptOpts, script.WithMaxSteps(cfg.ScriptMaxSteps))
	}
	engineOpts = append(engineOpts, xrlt.WithScriptEvaluator(script.Type, script.New(scriptOpts...)))

	// 2. Transport
	var fetchOpts []fetch.Option
	if cfg.Proxy != "" {
		fetchOpts = append(fetchOpts, fetch.WithProxy(cfg.Proxy))
	}
	fetcher, err := fetch.New(fetchOpts...)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("error creating fetcher: %w", err)
	}
	engineOpts = append(engineOpts, xrlt.WithFetcher(fetcher))

	// 3. Cache
	cache, err := rt.createCache()
	if err != nil {
		rt.Close()
		return nil, err
	}
	if cache != nil {
		engineOpts = append(engineOpts, xrlt.WithResponseCache(cache, cfg.Cache.TTL))
	}

	// 4. Stylesheets
	applier, err := createApplier(cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	engineOpts = append(engineOpts, xrlt.WithStylesheetApplier(applier))

	engine, err := xrlt.New(cfg.Root, engineOpts...)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	rt.Engine = engine
	return rt, nil
}

// Close releases log files and cache connections.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i].Close())
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) createLogger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(r.Config.LogLevel)
	if err != nil {
		return nil, err
	}
	if r.Config.LogFile == "" {
		return logging.New(level), nil
	}
	f, err := os.OpenFile(r.Config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}
	r.closers = append(r.closers, f)
	return logging.New(level, logging.WithJSON(f)), nil
}

func (r *Runtime) createCache() (ports.ResponseCache, error) {
	cache, err := r.createBackend()
	if err != nil || cache == nil {
		return cache, err
	}
	active, fallback, err := r.Config.Cache.Keys()
	if err != nil {
		return nil, err
	}
	if active != nil {
		cache = middleware.Chain(cache, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		}))
	}
	return cache, nil
}

func (r *Runtime) createBackend() (ports.ResponseCache, error) {
	c := r.Config.Cache
	switch c.Backend {
	case "", config.CacheNone:
		return nil, nil
	case config.CacheMemory:
		return memory.NewCache(), nil
	case config.CacheRedis:
		cache := redis.New(c.RedisAddr, c.RedisPassword, c.RedisDB, redis.WithPrefix(c.Prefix))
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := cache.Ping(ctx); err != nil {
			cache.Close()
			return nil, fmt.Errorf("error connecting to redis at %s: %w", c.RedisAddr, err)
		}
		r.closers = append(r.closers, cache)
		r.Logger.Debug("Using redis include cache", "addr", c.RedisAddr)
		return cache, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", c.Backend)
	}
}

func createApplier(cfg config.Config) (*process.Applier, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid root: %w", err)
	}
	opts := []process.ApplierOption{process.WithBaseDir(root)}
	if cfg.Processors != "" {
		procs, err := process.LoadProcessors(cfg.Processors)
		if err != nil {
			return nil, fmt.Errorf("error loading processors: %w", err)
		}
		opts = append(opts, process.WithRegistry(procs))
	}
	if cfg.XSLT.Command != "" {
		opts = append(opts, func(a *process.Applier) {
			a.Register(customProcessor, cfg.XSLT.Command, cfg.XSLT.Args...)
		}, process.WithDefault(customProcessor))
	}
	return process.NewApplier(opts...), nil
}
