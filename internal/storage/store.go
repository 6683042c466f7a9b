package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Prefix namespaces every key this application writes, keeping it clear of
// unrelated entries sharing the same backend.
const Prefix = "clue.ui."

// Store provides prefixed, JSON-encoded access to a Backend.
type Store struct {
	backend Backend
	prefix  string
}

// New creates a store over backend using the application Prefix.
func New(backend Backend) *Store {
	return &Store{backend: backend, prefix: Prefix}
}

// Scope returns a store sharing the same backend whose keys are nested under
// name, e.g. Scope("cache.") addresses clue.ui.cache.*.
func (s *Store) Scope(name string) *Store {
	return &Store{backend: s.backend, prefix: s.prefix + name}
}

// Prefix is the full key prefix of this store.
func (s *Store) Prefix() string {
	return s.prefix
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

// Set JSON-encodes value and stores it under name.
func (s *Store) Set(ctx context.Context, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", name, err)
	}

	return s.backend.Set(ctx, s.key(name), string(data))
}

// Get returns the decoded value stored under name. A stored value that is not
// valid JSON predates the encoding and is returned as the raw string.
func (s *Store) Get(ctx context.Context, name string) (any, bool, error) {
	raw, found, err := s.backend.Get(ctx, s.key(name))
	if err != nil || !found {
		return nil, found, err
	}

	return decode(raw), true, nil
}

// GetAs decodes the value stored under name into T. When the value is not valid
// JSON and T is a string, the raw value is returned; for any other T the
// decoding failure is returned.
func GetAs[T any](ctx context.Context, s *Store, name string) (T, bool, error) {
	var value T

	raw, found, err := s.backend.Get(ctx, s.key(name))
	if err != nil || !found {
		return value, found, err
	}

	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		if str, ok := any(&value).(*string); ok {
			*str = raw
			return value, true, nil
		}

		return value, true, fmt.Errorf("failed to decode %q: %w", name, err)
	}

	return value, true, nil
}

// Remove deletes the value stored under name.
func (s *Store) Remove(ctx context.Context, name string) error {
	return s.backend.Delete(ctx, s.key(name))
}

// Keys lists the names held by this store, without the prefix.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.backend.Keys(ctx, s.prefix)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, strings.TrimPrefix(key, s.prefix))
	}

	return names, nil
}

// Items returns every decoded value held by this store, keyed by name.
func (s *Store) Items(ctx context.Context) (map[string]any, error) {
	names, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}

	items := make(map[string]any, len(names))
	for _, name := range names {
		value, found, err := s.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		// removed between listing and reading
		if !found {
			continue
		}
		items[name] = value
	}

	return items, nil
}

// Clear removes every key held by this store. Keys outside the prefix are left
// untouched.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.backend.Keys(ctx, s.prefix)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := s.backend.Delete(ctx, key); err != nil {
			return err
		}
	}

	return nil
}

func decode(raw string) any {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}
