// Package credentials persists the result of a Clue login and exposes it to
// the API client.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cccs/clue-client/internal/storage"
	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// ErrNoCredential is returned when no application token is stored.
var ErrNoCredential = errors.New("no stored credential: login required")

// LoginResult is the payload of a successful login.
type LoginResult struct {
	AppToken     string `json:"app_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Provider     string `json:"provider,omitempty"`
}

// keys are removed in this order when the credential is cleared
var keys = []string{
	storage.KeyAppToken,
	storage.KeyRefreshToken,
	storage.KeyProvider,
}

// SaveLoginCredential persists result when it carries an application token,
// writing only the fields that are present, and reports true. Otherwise the
// stored credential is cleared and false is reported: a stored token is the
// only evidence of being logged in.
//
// The writes are sequential; a failure part way through can leave a partial
// credential behind.
func SaveLoginCredential(ctx context.Context, store *storage.Store, result *LoginResult) (bool, error) {
	if result == nil || result.AppToken == "" {
		if err := Clear(ctx, store); err != nil {
			return false, err
		}
		return false, nil
	}

	fields := []struct{ key, value string }{
		{storage.KeyAppToken, result.AppToken},
		{storage.KeyRefreshToken, result.RefreshToken},
		{storage.KeyProvider, result.Provider},
	}

	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := store.Set(ctx, f.key, f.value); err != nil {
			return false, fmt.Errorf("could not save %s: %w", f.key, err)
		}
	}

	return true, nil
}

// Load reads the stored credential. A missing application token results in
// ErrNoCredential.
func Load(ctx context.Context, store *storage.Store) (*LoginResult, error) {
	var result LoginResult

	targets := map[string]*string{
		storage.KeyAppToken:     &result.AppToken,
		storage.KeyRefreshToken: &result.RefreshToken,
		storage.KeyProvider:     &result.Provider,
	}

	for key, target := range targets {
		value, _, err := storage.GetAs[string](ctx, store, key)
		if err != nil {
			return nil, fmt.Errorf("could not read %s: %w", key, err)
		}
		*target = value
	}

	if result.AppToken == "" {
		return nil, ErrNoCredential
	}

	return &result, nil
}

// Clear removes all three credential keys.
func Clear(ctx context.Context, store *storage.Store) error {
	for _, key := range keys {
		if err := store.Remove(ctx, key); err != nil {
			return fmt.Errorf("could not remove %s: %w", key, err)
		}
	}
	return nil
}

// Expiry returns the expiry of token when it is a JWT carrying an "exp"
// claim. The signature is not verified: the server remains the authority, and
// this is only used to tell a user that they will need to log in again.
func Expiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims

	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}

// Source adapts the stored application token to an oauth2.TokenSource, so
// that the API client reads the current credential on every request.
type Source struct {
	store *storage.Store
}

// NewSource creates a token source over the durable store.
func NewSource(store *storage.Store) *Source {
	return &Source{store: store}
}

// Token implements oauth2.TokenSource.
func (s *Source) Token() (*oauth2.Token, error) {
	return s.TokenContext(context.Background())
}

// TokenContext reads the stored token using ctx.
func (s *Source) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	token, _, err := storage.GetAs[string](ctx, s.store, storage.KeyAppToken)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", storage.KeyAppToken, err)
	}
	if token == "" {
		return nil, ErrNoCredential
	}

	t := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	if expiry, ok := Expiry(token); ok {
		t.Expiry = expiry
		if !t.Valid() {
			log.Ctx(ctx).Warn().Time("expiry", expiry).Msg("stored credential has expired, login required")
		}
	}

	return t, nil
}

var _ oauth2.TokenSource = (*Source)(nil)
