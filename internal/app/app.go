// Package app holds the state shared by every client operation: the
// configured API client and the durable and session stores. It is created
// once and passed to whatever needs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cccs/clue-client/internal/api"
	"github.com/cccs/clue-client/internal/api/auth"
	"github.com/cccs/clue-client/internal/cache"
	"github.com/cccs/clue-client/internal/config"
	"github.com/cccs/clue-client/internal/credentials"
	"github.com/cccs/clue-client/internal/encryption"
	"github.com/cccs/clue-client/internal/observe"
	"github.com/cccs/clue-client/internal/storage"
	"github.com/rs/zerolog/log"
)

// App is the client's application state.
type App struct {
	Config config.Config

	// Durable holds credentials and preferences across runs.
	Durable *storage.Store

	// Session holds caches that may be discarded at any time.
	Session *storage.Store

	Client *api.Client

	shutdown ShutdownHooks
}

// New configures telemetry, opens both stores and creates the API client.
// Close releases everything New acquired.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg}

	if err := a.configure(ctx); err != nil {
		// release whatever was opened before the failure
		_ = a.Close(ctx)
		return nil, err
	}

	return a, nil
}

func (a *App) configure(ctx context.Context) error {
	cfg := a.Config

	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}
	a.shutdown.AddContext("telemetry", shutdownTelemetry)

	aead, err := encryption.NewFromConfig(ctx, cfg.Storage.Encryption)
	if err != nil {
		return fmt.Errorf("storage encryption configuration failed: %w", err)
	}

	a.Durable, err = storage.OpenDurable(ctx, cfg.Storage, aead)
	if err != nil {
		return fmt.Errorf("durable storage failed to open: %w", err)
	}
	a.shutdown.Add("durable storage", a.Durable.Close)

	a.Session, err = storage.OpenSession(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("session storage failed to open: %w", err)
	}
	a.shutdown.Add("session storage", a.Session.Close)

	etags := cache.NewInstrumented[api.Envelope](
		cache.NewStored[api.Envelope](a.Session.Scope(storage.ScopeETag)),
		"etag",
	)

	httpClient := &http.Client{
		Transport: observe.HTTPTransport(configureHTTPTransport(cfg.API), cfg.Observe),
		Timeout:   cfg.API.Timeout(),
	}

	a.Client, err = api.NewClient(cfg.API.URL,
		api.WithHTTPClient(httpClient),
		api.WithETagCache(etags),
		api.WithTokenSource(credentials.NewSource(a.Durable)),
		api.WithRetryPolicy(retryPolicy(cfg.API)),
	)
	if err != nil {
		return fmt.Errorf("api client configuration failed: %w", err)
	}

	return nil
}

func retryPolicy(cfg config.APIConfig) api.RetryPolicy {
	policy := api.DefaultRetryPolicy()
	policy.MaxRetries = cfg.RetryMax
	if interval := cfg.RetryInitialInterval(); interval > 0 {
		policy.InitialInterval = interval
	}
	return policy
}

func configureHTTPTransport(cfg config.APIConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}

// Close releases the stores and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	return a.shutdown.Execute(ctx)
}

// Login authenticates with a user name and password and stores the resulting
// credential. A rejected login clears any stored credential; the returned
// error then describes the rejection.
func (a *App) Login(ctx context.Context, request auth.LoginRequest) (bool, error) {
	result, err := auth.Login(ctx, a.Client, request)
	if err != nil {
		return false, err
	}

	return a.saveLogin(ctx, result)
}

// LoginOAuth completes an OAuth flow using the provider's callback
// parameters, storing the resulting credential.
func (a *App) LoginOAuth(ctx context.Context, callback url.Values) (bool, error) {
	result, err := auth.LoginOAuth(ctx, a.Client, callback)
	if err != nil {
		return false, err
	}

	return a.saveLogin(ctx, result)
}

func (a *App) saveLogin(ctx context.Context, result api.Result[credentials.LoginResult]) (bool, error) {
	var login *credentials.LoginResult
	if !result.Failed() {
		login = &result.Data
	}

	saved, err := credentials.SaveLoginCredential(ctx, a.Durable, login)
	if err != nil {
		return false, err
	}

	if err := result.Err(); err != nil {
		return false, err
	}

	if !saved {
		log.Ctx(ctx).Warn().Msg("login succeeded without an application token")
	}

	return saved, nil
}

// Logout removes the stored credential and discards session caches, which may
// hold responses only the logged in user could see.
func (a *App) Logout(ctx context.Context) error {
	if err := credentials.Clear(ctx, a.Durable); err != nil {
		return err
	}

	if err := a.Session.Scope(storage.ScopeCache).Clear(ctx); err != nil {
		return fmt.Errorf("could not clear session cache: %w", err)
	}

	return nil
}

// Status summarizes the stored credential.
type Status struct {
	LoggedIn bool      `json:"logged_in" yaml:"logged_in"`
	Server   string    `json:"server" yaml:"server"`
	Provider string    `json:"provider,omitempty" yaml:"provider,omitempty"`
	Expiry   time.Time `json:"expiry,omitzero" yaml:"expiry,omitempty"`
	Expired  bool      `json:"expired,omitempty" yaml:"expired,omitempty"`
}

// Status reports whether a credential is stored and, when the token is a JWT,
// when it expires.
func (a *App) Status(ctx context.Context) (Status, error) {
	status := Status{Server: a.Config.API.URL}

	login, err := credentials.Load(ctx, a.Durable)
	if errors.Is(err, credentials.ErrNoCredential) {
		return status, nil
	}
	if err != nil {
		return status, err
	}

	status.LoggedIn = true
	status.Provider = login.Provider

	if expiry, ok := credentials.Expiry(login.AppToken); ok {
		status.Expiry = expiry
		status.Expired = time.Now().After(expiry)
	}

	return status, nil
}
