package storage

import (
	"context"
	"fmt"

	"github.com/cccs/clue-client/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/tink-crypto/tink-go/v2/tink"
)

// OpenDurable opens the durable store described by cfg. When aead is not nil,
// values are encrypted at rest.
func OpenDurable(ctx context.Context, cfg config.StorageConfig, aead tink.AEAD) (*Store, error) {
	dir, err := cfg.ResolveDir()
	if err != nil {
		return nil, err
	}

	sqlite, err := OpenSQLite(ctx, dir)
	if err != nil {
		return nil, err
	}

	var backend Backend = sqlite
	if aead != nil {
		log.Ctx(ctx).Debug().Msg("durable storage encryption enabled")
		backend = NewEncrypted(sqlite, aead)
	}

	return New(backend), nil
}

// OpenSession opens the session-scoped store: in-process memory by default, or
// a shared valkey server.
func OpenSession(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	switch cfg.SessionType {
	case "valkey":
		backend, err := DialValkey(cfg.Valkey)
		if err != nil {
			return nil, err
		}
		return New(backend), nil

	case "memory", "":
		backend, err := NewSession()
		if err != nil {
			return nil, err
		}
		return New(backend), nil

	default:
		return nil, fmt.Errorf("invalid session type %q: must be either \"memory\" or \"valkey\"", cfg.SessionType)
	}
}

// Close releases the store's backend. Scoped stores share the backend of their
// parent, so only close the outermost store.
func (s *Store) Close() error {
	return s.backend.Close()
}
