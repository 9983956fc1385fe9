package http

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"

	"github.com/aretw0/xrlt"
	"github.com/aretw0/xrlt/internal/logging"
	"github.com/aretw0/xrlt/pkg/domain"
	"github.com/aretw0/xrlt/pkg/observability"
)

// SheetExtension marks the request paths that are transformed.
const SheetExtension = ".xrl"

// privateFiles are configuration files that may sit in the sheet root.
var privateFiles = []string{"xrlt.yaml", "xrlt.yml", "processors.yaml", "processors.yml", "processors.json"}

// Engine defines the interface for the XRLT core used by the server.
type Engine interface {
	RenderSheet(ctx context.Context, name string, params domain.Params) (*xrlt.Result, error)
}

// Server serves transformed sheets and the static files next to them.
type Server struct {
	Engine     Engine
	static     fs.FS
	metrics    *observability.Metrics
	origins    []string
	rateLimit  int
	rateWindow time.Duration
	logger     *slog.Logger
	private    map[string]bool
}

// Option configures the server.
type Option func(*Server)

// WithStatic serves files from fsys for paths that are not sheets.
func WithStatic(fsys fs.FS) Option {
	return func(s *Server) {
		s.static = fsys
	}
}

// WithPrivate hides more file names from the static file server.
// Dot files and the default config file names are always hidden.
func WithPrivate(names ...string) Option {
	return func(s *Server) {
		for _, n := range names {
			if n != "" {
				s.private[strings.ToLower(n)] = true
			}
		}
	}
}

// WithMetrics records request metrics and exposes them on /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithCORS allows cross-origin requests from origins.
func WithCORS(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithRateLimit limits each client IP to requests per window.
func WithRateLimit(requests int, window time.Duration) Option {
	return func(s *Server) {
		s.rateLimit = requests
		s.rateWindow = window
	}
}

// WithLogger sets the logger for failed transforms.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{Engine: engine, logger: logging.NewNop(), private: map[string]bool{}}
	for _, n := range privateFiles {
		s.private[n] = true
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	if s.rateLimit > 0 {
		r.Use(httprate.LimitByIP(s.rateLimit, s.rateWindow))
	}
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	r.Get("/healthz", s.GetHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Get("/*", s.Serve)
	return r
}

// GetHealth reports liveness and the module version.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": strings.TrimSpace(xrlt.Version),
	})
}

// Serve transforms sheet paths and serves everything else from the static files.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request) {
	if s.hidden(r.URL.Path) {
		http.NotFound(w, r)
		return
	}
	if !strings.HasSuffix(r.URL.Path, SheetExtension) {
		if s.static == nil {
			http.NotFound(w, r)
			return
		}
		http.FileServerFS(s.static).ServeHTTP(w, r)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/")
	params := domain.Params{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	res, err := s.Engine.RenderSheet(r.Context(), name, params)
	if err != nil {
		var ie *domain.ImportError
		if errors.Is(err, domain.ErrSheetNotFound) && !errors.As(err, &ie) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("Transform failed", "sheet", name, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	set := map[string]bool{}
	for _, h := range res.Response.Headers {
		if !set[h.Name] {
			w.Header().Del(h.Name)
			set[h.Name] = true
		}
		w.Header().Add(h.Name, h.Value)
	}
	status := res.Response.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(res.Output))
}

// hidden reports whether p names a dot file, a file inside a dot
// directory or a private file.
func (s *Server) hidden(p string) bool {
	segments := strings.Split(strings.Trim(path.Clean("/"+p), "/"), "/")
	for _, seg := range segments {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return s.private[strings.ToLower(segments[len(segments)-1])]
}
