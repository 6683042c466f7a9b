package cache

import (
	"context"
	"fmt"

	"github.com/cccs/clue-client/internal/storage"
)

// Stored keeps values in a storage.Store, so entries live as long as the
// store's backend does: the process for the session backend, or the shared
// server for valkey. There is no eviction: entries remain until the store is
// cleared.
type Stored[T any] struct {
	store *storage.Store
}

// NewStored creates a cache over store. Callers usually pass a scoped store,
// e.g. session.Scope("cache.etag.").
func NewStored[T any](store *storage.Store) *Stored[T] {
	return &Stored[T]{store: store}
}

// Get retrieves a value from the cache.
func (s *Stored[T]) Get(ctx context.Context, key string) (T, bool, error) {
	value, found, err := storage.GetAs[T](ctx, s.store, key)
	if err != nil {
		var zero T
		return zero, false, fmt.Errorf("failed to read cached value: %w", err)
	}
	return value, found, nil
}

// Set stores a value in the cache.
func (s *Stored[T]) Set(ctx context.Context, key string, value T) error {
	if err := s.store.Set(ctx, key, value); err != nil {
		return fmt.Errorf("failed to store cached value: %w", err)
	}
	return nil
}

// Invalidate removes a value from the cache.
func (s *Stored[T]) Invalidate(ctx context.Context, key string) error {
	if err := s.store.Remove(ctx, key); err != nil {
		return fmt.Errorf("failed to invalidate cached value: %w", err)
	}
	return nil
}

// Clear removes every entry held under the store's prefix.
func (s *Stored[T]) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// Close is a no-op: the store is owned by the caller.
func (s *Stored[T]) Close() error {
	return nil
}
