package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/maypok86/otter/v2"
)

// Session is a process-scoped backend: values disappear when the process
// exits. It has no size bound and no expiry.
type Session struct {
	cache *otter.Cache[string, string]
}

func NewSession() (*Session, error) {
	cache, err := otter.New(&otter.Options[string, string]{})
	if err != nil {
		return nil, fmt.Errorf("failed to create session storage: %w", err)
	}

	return &Session{cache: cache}, nil
}

func (s *Session) Get(_ context.Context, key string) (string, bool, error) {
	value, ok := s.cache.GetIfPresent(key)
	return value, ok, nil
}

func (s *Session) Set(_ context.Context, key, value string) error {
	s.cache.Set(key, value)
	return nil
}

func (s *Session) Delete(_ context.Context, key string) error {
	s.cache.Invalidate(key)
	return nil
}

func (s *Session) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for key := range s.cache.All() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *Session) Close() error {
	s.cache.InvalidateAll()
	return nil
}
