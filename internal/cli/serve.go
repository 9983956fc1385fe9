package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/xrlt/pkg/adapters/file"
	httpAdapter "github.com/aretw0/xrlt/pkg/adapters/http"
)

const shutdownTimeout = 5 * time.Second

// Handler builds the HTTP front end for rt. Static files come from the sheet root.
func Handler(rt *Runtime) http.Handler {
	var static fs.FS = os.DirFS(rt.Config.Root)
	if l, ok := rt.Engine.Loader().(*file.Loader); ok {
		static = l.FS()
	}
	opts := []httpAdapter.Option{
		httpAdapter.WithStatic(static),
		httpAdapter.WithMetrics(rt.Metrics),
		httpAdapter.WithLogger(rt.Logger),
		httpAdapter.WithPrivate(baseName(rt.Config.Processors), baseName(rt.Config.LogFile)),
	}
	if len(rt.Config.CORS) > 0 {
		opts = append(opts, httpAdapter.WithCORS(rt.Config.CORS...))
	}
	if rt.Config.RateLimit.Requests > 0 {
		opts = append(opts, httpAdapter.WithRateLimit(rt.Config.RateLimit.Requests, rt.Config.RateLimit.Window))
	}
	return httpAdapter.NewHandler(rt.Engine, opts...)
}

func baseName(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Base(p)
}

// Serve listens on ln until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, rt *Runtime, ln net.Listener) error {
	srv := &http.Server{
		Handler:           Handler(rt),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		rt.Logger.Info("Starting XRLT server", "address", ln.Addr().String(), "root", rt.Config.Root)
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			rt.Logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("error killing server: %w", err)
			}
		}
		rt.Logger.Info("XRLT server stopped gracefully")
		return nil
	}
}

// ListenAndServe listens on the configured address and calls Serve.
func ListenAndServe(ctx context.Context, rt *Runtime) error {
	ln, err := net.Listen("tcp", rt.Config.Addr)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", rt.Config.Addr, err)
	}
	return Serve(ctx, rt, ln)
}
