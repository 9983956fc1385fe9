package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/xrlt/pkg/ports"
)

func TestFetch_GetWithQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "go", r.URL.Query().Get("q"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		assert.Equal(t, "xrlt-test", r.Header.Get("User-Agent"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f, err := New(WithUserAgent("xrlt-test"))
	require.NoError(t, err)

	body, err := f.Fetch(context.Background(), ports.FetchRequest{
		URL:    srv.URL + "/search?page=1",
		Query:  url.Values{"q": {"go"}},
		Header: http.Header{"X-Test": {"yes"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestFetch_PostBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		data, _ := io.ReadAll(r.Body)
		w.Write(data)
	}))
	defer srv.Close()

	f, err := New()
	require.NoError(t, err)
	body, err := f.Fetch(context.Background(), ports.FetchRequest{Method: http.MethodPost, URL: srv.URL, Body: `{"a":1}`})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(body))
}

func TestFetch_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	f, _ := New()
	_, err := f.Fetch(context.Background(), ports.FetchRequest{URL: srv.URL})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestFetch_MaxBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"0123456789"`))
	}))
	defer srv.Close()

	f, _ := New(WithMaxBody(4))
	_, err := f.Fetch(context.Background(), ports.FetchRequest{URL: srv.URL})
	assert.ErrorContains(t, err, "exceeds")
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f, _ := New()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, ports.FetchRequest{URL: srv.URL})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProxyDialer(t *testing.T) {
	d, err := ProxyDialer("socks://127.0.0.1:1080")
	require.NoError(t, err)
	assert.NotNil(t, d)

	_, err = ProxyDialer("ftp://127.0.0.1:21")
	assert.Error(t, err)

	f, err := New(WithProxy("socks5://127.0.0.1:1080"))
	require.NoError(t, err)
	assert.NotNil(t, f.client.Transport)
	assert.Equal(t, DefaultTimeout, f.client.Timeout)

	direct, err := New(WithProxy(""))
	require.NoError(t, err)
	assert.Nil(t, direct.client.Transport)
	assert.Equal(t, DefaultTimeout, direct.client.Timeout)
}
