package ports

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// FetchRequest describes one include request.
type FetchRequest struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	Body   string
}

// CacheKey identifies the request for the response cache.
func (r FetchRequest) CacheKey() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	return r.URL + "?" + r.Query.Encode()
}

// Fetcher retrieves the body of a remote resource.
type Fetcher interface {
	// Fetch issues req and returns the response body.
	// Transport failures and non-2xx statuses are returned as errors.
	Fetch(ctx context.Context, req FetchRequest) ([]byte, error)
}

// ResponseCache defines the storage of include responses.
type ResponseCache interface {
	// Get returns the cached body for key. The boolean reports a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores body under key for ttl. A zero ttl means no expiration.
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
}
