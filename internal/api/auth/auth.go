// Package auth binds the /auth resource used to obtain an application token.
package auth

import (
	"context"
	"net/url"

	"github.com/cccs/clue-client/internal/api"
	"github.com/cccs/clue-client/internal/credentials"
)

func URI() string {
	return api.Join(api.URI(), "auth")
}

func LoginURI() string {
	return api.Join(URI(), "login")
}

// LoginRequest is a direct login, either with a user name and password or by
// naming the OAuth provider to start a redirect flow with.
type LoginRequest struct {
	User          string `json:"user,omitempty"`
	Password      string `json:"password,omitempty"`
	OAuthProvider string `json:"oauth_provider,omitempty"`
}

// LoginOAuth completes an OAuth flow by handing the provider's callback
// parameters (code, state and so on) to the server.
func LoginOAuth(ctx context.Context, r api.Requester, callback url.Values, opts ...api.Option) (api.Result[credentials.LoginResult], error) {
	opts = append([]api.Option{api.WithQuery(callback)}, opts...)
	return api.Get[credentials.LoginResult](ctx, r, LoginURI(), opts...)
}

// Login authenticates directly with the server.
func Login(ctx context.Context, r api.Requester, request LoginRequest, opts ...api.Option) (api.Result[credentials.LoginResult], error) {
	return api.Post[credentials.LoginResult](ctx, r, LoginURI(), request, opts...)
}
