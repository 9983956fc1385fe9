package middleware

import "github.com/aretw0/xrlt/pkg/ports"

// Middleware allows wrapping a ResponseCache to add behavior.
type Middleware func(ports.ResponseCache) ports.ResponseCache

// Chain applies mws to cache so that the first middleware is the outermost.
func Chain(cache ports.ResponseCache, mws ...Middleware) ports.ResponseCache {
	for i := len(mws) - 1; i >= 0; i-- {
		cache = mws[i](cache)
	}
	return cache
}
