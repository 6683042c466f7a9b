package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
)

// Memory is an in-memory cache implementation using otter.
// The generic type T represents the value being cached.
type Memory[T any] struct {
	cache   *otter.Cache[string, T]
	counter *stats.Counter
}

// NewMemory creates a new in-memory cache. A zero ttl keeps entries until they
// are invalidated, and a zero maxSize leaves the cache unbounded.
func NewMemory[T any](ttl time.Duration, maxSize int) (*Memory[T], error) {
	counter := stats.NewCounter()
	opts := &otter.Options[string, T]{
		MaximumSize:   maxSize,
		StatsRecorder: counter,
	}
	if ttl > 0 {
		opts.ExpiryCalculator = otter.ExpiryCreating[string, T](ttl)
	}

	cache, err := otter.New(opts)
	if err != nil {
		return nil, err
	}

	return &Memory[T]{
		cache:   cache,
		counter: counter,
	}, nil
}

// Get retrieves a value from the cache.
// Returns the value, whether it was found, and any error.
func (m *Memory[T]) Get(ctx context.Context, key string) (T, bool, error) {
	value, ok := m.cache.GetIfPresent(key)
	return value, ok, nil
}

// Set stores a value in the cache.
func (m *Memory[T]) Set(ctx context.Context, key string, value T) error {
	m.cache.Set(key, value)
	return nil
}

// Invalidate removes a value from the cache.
func (m *Memory[T]) Invalidate(ctx context.Context, key string) error {
	m.cache.Invalidate(key)
	return nil
}

// Stats returns the hit and miss counts recorded so far.
func (m *Memory[T]) Stats() (hits, misses uint64) {
	snapshot := m.counter.Snapshot()
	return snapshot.Hits, snapshot.Misses
}

// Close is a no-op for the in-memory cache.
func (m *Memory[T]) Close() error {
	return nil
}
