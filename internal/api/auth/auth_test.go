package auth_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/cccs/clue-client/internal/api"
	"github.com/cccs/clue-client/internal/api/auth"
	"github.com/cccs/clue-client/internal/credentials"
	"github.com/cccs/clue-client/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*testhelpers.MockClueServer, *api.Client) {
	t.Helper()

	mock := testhelpers.SetupMockClueServer(t)
	client, err := api.NewClient(mock.URL())
	require.NoError(t, err)

	return mock, client
}

func TestURI(t *testing.T) {
	assert.Equal(t, "/api/v1/auth", auth.URI())
	assert.Equal(t, "/api/v1/auth/login", auth.LoginURI())
}

func TestLogin(t *testing.T) {
	mock, client := setup(t)
	mock.Respond("POST /api/v1/auth/login", http.StatusOK, map[string]string{
		"app_token":     "token",
		"refresh_token": "refresh",
		"provider":      "keycloak",
	})

	result, err := auth.Login(context.Background(), client, auth.LoginRequest{User: "analyst", Password: "pw"})
	require.NoError(t, err)

	assert.Equal(t, credentials.LoginResult{AppToken: "token", RefreshToken: "refresh", Provider: "keycloak"}, result.Data)
	assert.JSONEq(t, `{"user": "analyst", "password": "pw"}`, string(mock.LastRequest(t).Body))
}

func TestLogin_Rejected(t *testing.T) {
	mock, client := setup(t)
	mock.Respond("POST /api/v1/auth/login", http.StatusUnauthorized, nil)

	result, err := auth.Login(context.Background(), client, auth.LoginRequest{User: "analyst", Password: "wrong"})
	require.NoError(t, err)

	assert.True(t, result.Failed())
	assert.Empty(t, result.Data.AppToken)
	assert.NotEmpty(t, result.Envelope.ErrorMessage)
}

func TestLoginOAuth(t *testing.T) {
	mock, client := setup(t)
	mock.Respond("GET /api/v1/auth/login", http.StatusOK, map[string]string{"app_token": "token", "provider": "azure"})

	callback := url.Values{"code": {"abc"}, "state": {"xyz"}}
	result, err := auth.LoginOAuth(context.Background(), client, callback)
	require.NoError(t, err)

	assert.Equal(t, "azure", result.Data.Provider)

	query, err := url.ParseQuery(mock.LastRequest(t).RawQuery)
	require.NoError(t, err)
	assert.Equal(t, callback, query)
}
