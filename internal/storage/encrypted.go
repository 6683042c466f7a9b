package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tink-crypto/tink-go/v2/tink"
)

// valuePrefix marks encrypted values, distinguishing them from plaintext
// written before encryption was enabled.
const valuePrefix = "clue-enc:"

// Encrypted seals values with an AEAD before handing them to the wrapped
// backend. Keys stay in the clear so that prefix enumeration keeps working.
type Encrypted struct {
	wrapped Backend
	aead    tink.AEAD
}

func NewEncrypted(wrapped Backend, aead tink.AEAD) *Encrypted {
	return &Encrypted{wrapped: wrapped, aead: aead}
}

// Get decrypts the stored value. Values without the encryption marker are
// legacy plaintext and are returned unchanged.
func (e *Encrypted) Get(ctx context.Context, key string) (string, bool, error) {
	value, found, err := e.wrapped.Get(ctx, key)
	if err != nil || !found {
		return value, found, err
	}

	encoded, sealed := strings.CutPrefix(value, valuePrefix)
	if !sealed {
		log.Ctx(ctx).Debug().Str("key", key).Msg("plaintext value read from encrypted storage")
		return value, true, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false, fmt.Errorf("base64 decode failed for %q: %w", key, err)
	}

	// the key is the associated data, preventing values being swapped
	// between keys
	plaintext, err := e.aead.Decrypt(ciphertext, []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("decryption failed for %q: %w", key, err)
	}

	return string(plaintext), true, nil
}

func (e *Encrypted) Set(ctx context.Context, key, value string) error {
	ciphertext, err := e.aead.Encrypt([]byte(value), []byte(key))
	if err != nil {
		return fmt.Errorf("encrypting value for %q: %w", key, err)
	}

	return e.wrapped.Set(ctx, key, valuePrefix+base64.StdEncoding.EncodeToString(ciphertext))
}

func (e *Encrypted) Delete(ctx context.Context, key string) error {
	return e.wrapped.Delete(ctx, key)
}

func (e *Encrypted) Keys(ctx context.Context, prefix string) ([]string, error) {
	return e.wrapped.Keys(ctx, prefix)
}

func (e *Encrypted) Close() error {
	return e.wrapped.Close()
}
