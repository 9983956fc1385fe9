package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/xrlt/pkg/ports"
)

// Fetcher implements ports.Fetcher from canned responses keyed by
// ports.FetchRequest.CacheKey. Unknown keys fail like a network error.
type Fetcher struct {
	mu        sync.Mutex
	responses map[string][]byte
	requests  []ports.FetchRequest
}

// NewFetcher creates a Fetcher serving the given bodies.
func NewFetcher(responses map[string]string) *Fetcher {
	f := &Fetcher{responses: make(map[string][]byte)}
	for k, v := range responses {
		f.responses[k] = []byte(v)
	}
	return f
}

// Fetch returns the canned body for req.
func (f *Fetcher) Fetch(ctx context.Context, req ports.FetchRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	body, ok := f.responses[req.CacheKey()]
	if !ok {
		return nil, fmt.Errorf("no response for %s", req.CacheKey())
	}
	return body, nil
}

// Requests returns the requests received so far.
func (f *Fetcher) Requests() []ports.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.FetchRequest(nil), f.requests...)
}
