package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooksRecordOutcomes(t *testing.T) {
	m := NewMetrics()
	hooks := m.Hooks()

	hooks.OnInclude("http://a", false, time.Millisecond, nil)
	hooks.OnInclude("http://a", true, 0, nil)
	hooks.OnInclude("http://b", false, time.Millisecond, errors.New("down"))
	hooks.OnScript("f", time.Millisecond, nil)
	hooks.OnScript("g", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.includes.WithLabelValues("fetched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.includes.WithLabelValues("cached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.includes.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scripts.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scripts.WithLabelValues("failed")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/sheets/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sheets/a", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sheets/b", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/sheets/{name}", "418")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "xrlt_http_requests_total")
}
