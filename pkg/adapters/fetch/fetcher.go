// Package fetch implements ports.Fetcher over net/http, optionally dialing
// through a SOCKS5 proxy.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/aretw0/xrlt/pkg/ports"
)

// DefaultMaxBody caps the size of an include response.
const DefaultMaxBody = 8 << 20

// DefaultTimeout bounds a whole request, including reading the body.
const DefaultTimeout = 30 * time.Second

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.StatusCode)
}

// Dialer is implemented by net.Dialer and by the dialers of golang.org/x/net/proxy.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Fetcher issues include requests.
type Fetcher struct {
	client    *http.Client
	maxBody   int64
	userAgent string
}

var _ ports.Fetcher = (*Fetcher)(nil)

// Option configures the Fetcher.
type Option func(*Fetcher) error

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) error {
		f.client = c
		return nil
	}
}

// WithProxy routes connections through the proxy at addr (socks5://host:port).
// An empty addr keeps direct connections.
func WithProxy(addr string) Option {
	return func(f *Fetcher) error {
		if addr == "" {
			return nil
		}
		dialer, err := ProxyDialer(addr)
		if err != nil {
			return err
		}
		f.client = &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		}
		return nil
	}
}

// WithMaxBody sets the maximum accepted response size.
func WithMaxBody(n int64) Option {
	return func(f *Fetcher) error {
		f.maxBody = n
		return nil
	}
}

// WithUserAgent sets the User-Agent header of outgoing requests.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) error {
		f.userAgent = ua
		return nil
	}
}

// New creates a Fetcher.
func New(opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		client:  &http.Client{Timeout: DefaultTimeout},
		maxBody: DefaultMaxBody,
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ProxyDialer builds a dialer for the proxy URL. The "socks" scheme is
// accepted as an alias of "socks5".
func ProxyDialer(addr string) (Dialer, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address: %w", err)
	}
	if u.Scheme == "socks" {
		u.Scheme = "socks5"
	}
	direct := &net.Dialer{Timeout: 10 * time.Second}
	d, err := proxy.FromURL(u, direct)
	if err != nil {
		return nil, fmt.Errorf("unsupported proxy %s: %w", addr, err)
	}
	cd, ok := d.(Dialer)
	if !ok {
		return nil, fmt.Errorf("proxy %s cannot dial with a context", addr)
	}
	return cd, nil
}

// Fetch implements ports.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, req ports.FetchRequest) ([]byte, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := req.URL
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if f.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > f.maxBody {
		return nil, fmt.Errorf("response exceeds %d bytes", f.maxBody)
	}
	return data, nil
}
