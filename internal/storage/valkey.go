package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/cccs/clue-client/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/valkey-io/valkey-go"
)

// scanBatch is the COUNT hint given to SCAN when listing keys.
const scanBatch = 100

// Valkey is a shared session backend, allowing several client processes to
// reuse one response cache.
type Valkey struct {
	client valkey.Client
}

// NewValkey wraps an existing client. The backend takes ownership and closes
// the client on Close.
func NewValkey(client valkey.Client) *Valkey {
	return &Valkey{client: client}
}

// DialValkey connects using the supplied configuration.
func DialValkey(cfg config.ValkeyConfig) (*Valkey, error) {
	log.Info().
		Str("address", cfg.Address).
		Bool("tls", cfg.TLS).
		Msg("connecting shared session storage")

	opts := valkey.ClientOption{
		InitAddress: []string{cfg.Address},
		Username:    cfg.Username,
		Password:    cfg.Password,
	}

	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	return NewValkey(client), nil
}

func (v *Valkey) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := v.client.Do(ctx, v.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		// Key not found is not an error in our semantics
		if valkey.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get stored value: %w", err)
	}
	return value, true, nil
}

func (v *Valkey) Set(ctx context.Context, key, value string) error {
	cmd := v.client.B().Set().Key(key).Value(value).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set stored value: %w", err)
	}
	return nil
}

func (v *Valkey) Delete(ctx context.Context, key string) error {
	cmd := v.client.B().Del().Key(key).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to delete stored value: %w", err)
	}
	return nil
}

func (v *Valkey) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := globEscape(prefix) + "*"

	var keys []string
	var cursor uint64
	for {
		cmd := v.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatch).Build()
		entry, err := v.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, entry.Elements...)

		cursor = entry.Cursor
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}

var globReplacer = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
)

// globEscape quotes the characters SCAN MATCH treats as patterns.
func globEscape(s string) string {
	return globReplacer.Replace(s)
}
