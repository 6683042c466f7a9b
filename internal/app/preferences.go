package app

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/cccs/clue-client/internal/storage"
)

// credentialKeys are managed by login and logout, never as preferences.
var credentialKeys = []string{
	storage.KeyAppToken,
	storage.KeyRefreshToken,
	storage.KeyProvider,
}

// PreferenceKeys are the preferences the client knows about. Other names may
// be stored, but these have defaults.
var PreferenceKeys = []string{
	storage.KeyCompactJSONView,
	storage.KeyFlattenJSONView,
	storage.KeyPageCount,
	storage.KeyShowRaw,
	storage.KeyMaxTimeout,
}

var preferenceDefaults = map[string]any{
	storage.KeyCompactJSONView: true,
	storage.KeyFlattenJSONView: false,
	storage.KeyPageCount:       float64(25),
	storage.KeyShowRaw:         false,
	storage.KeyMaxTimeout:      float64(0),
}

func checkPreference(name string) error {
	if name == "" {
		return fmt.Errorf("preference name must not be empty")
	}
	if slices.Contains(credentialKeys, name) {
		return fmt.Errorf("%q is a credential; use login or logout", name)
	}
	return nil
}

// Preference returns the stored value of name, or its default.
func (a *App) Preference(ctx context.Context, name string) (any, error) {
	if err := checkPreference(name); err != nil {
		return nil, err
	}

	value, found, err := a.Durable.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return preferenceDefaults[name], nil
	}

	return value, nil
}

// SetPreference stores raw as the value of name. Raw is read as JSON when it
// is valid JSON (true, 25, {"a":1}) and stored as a plain string otherwise.
func (a *App) SetPreference(ctx context.Context, name, raw string) error {
	if err := checkPreference(name); err != nil {
		return err
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}

	return a.Durable.Set(ctx, name, value)
}

// Preferences returns every known preference with defaults applied, plus any
// other stored values that are not credentials.
func (a *App) Preferences(ctx context.Context) (map[string]any, error) {
	items, err := a.Durable.Items(ctx)
	if err != nil {
		return nil, err
	}

	prefs := maps.Clone(preferenceDefaults)
	for name, value := range items {
		if slices.Contains(credentialKeys, name) {
			continue
		}
		prefs[name] = value
	}

	return prefs, nil
}

// ResetPreferences removes every stored preference, keeping the credential.
func (a *App) ResetPreferences(ctx context.Context) error {
	names, err := a.Durable.Keys(ctx)
	if err != nil {
		return err
	}

	for _, name := range names {
		if slices.Contains(credentialKeys, name) {
			continue
		}
		if err := a.Durable.Remove(ctx, name); err != nil {
			return err
		}
	}

	return nil
}

// MaxTimeout is the stored default timeout, in seconds, for enrichments and
// actions. Zero means the server decides.
func (a *App) MaxTimeout(ctx context.Context) float64 {
	value, err := a.Preference(ctx, storage.KeyMaxTimeout)
	if err != nil {
		return 0
	}

	if timeout, ok := value.(float64); ok && timeout > 0 {
		return timeout
	}
	return 0
}
