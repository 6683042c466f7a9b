package cache

import (
	"context"
)

// Cache defines the interface for the client-side caches. The generic type T
// represents the value being cached, e.g. a response envelope keyed by ETag.
type Cache[T any] interface {
	// Get retrieves a value from the cache.
	// Returns the value, whether it was found, and any error.
	Get(ctx context.Context, key string) (T, bool, error)

	// Set stores a value in the cache.
	Set(ctx context.Context, key string, value T) error

	// Invalidate removes a value from the cache.
	Invalidate(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}
