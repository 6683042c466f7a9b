package storage

import (
	"context"
)

// Backend is a raw string key/value scope. Implementations must be safe for
// concurrent use; writes are last-write-wins.
type Backend interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any existing value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists the stored keys that start with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the backend.
	Close() error
}
