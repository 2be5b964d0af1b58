package client

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/coffeestaff/portal/internal/protocol"
)

// OAuthProvider is an identity provider brokered by the backend.
type OAuthProvider struct {
	ID   string
	Name string
}

// OAuthProviders lists the providers the backend supports.
var OAuthProviders = []OAuthProvider{
	{ID: "yandex", Name: "Yandex"},
	{ID: "google", Name: "Google"},
	{ID: "apple", Name: "Apple"},
	{ID: "telegram", Name: "Telegram"},
}

// LookupOAuthProvider returns the provider with the given id.
func LookupOAuthProvider(id string) (OAuthProvider, bool) {
	for _, p := range OAuthProviders {
		if p.ID == id {
			return p, true
		}
	}
	return OAuthProvider{}, false
}

// Credentials is the outcome of a successful login.
type Credentials struct {
	Token  string
	UserID string
}

// Login authenticates with username/password. The token is installed on the
// client on success.
func (c *Client) Login(ctx context.Context, username, password string) (*Credentials, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("username", username)
	mw.WriteField("password", password)
	mw.WriteField("grant_type", "password")
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("login: build form: %w", err)
	}

	var resp protocol.TokenResponse
	err := c.do(ctx, request{
		op:          "login",
		method:      http.MethodPost,
		path:        "/login/token",
		body:        &buf,
		contentType: mw.FormDataContentType(),
		anonymous:   true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("login: backend returned no token")
	}

	c.SetAuthToken(resp.AccessToken)
	return &Credentials{Token: resp.AccessToken, UserID: resp.UserID}, nil
}

// OAuthURL returns the URL that starts the provider's login flow.
func (c *Client) OAuthURL(provider string) string {
	return c.baseURL + "/login/auth/" + url.PathEscape(provider)
}

// LoginOAuth exchanges the provider callback code for a token.
func (c *Client) LoginOAuth(ctx context.Context, provider, code string) (*Credentials, error) {
	var resp protocol.TokenResponse
	err := c.do(ctx, request{
		op:        "login_oauth",
		method:    http.MethodGet,
		path:      "/login/auth/" + url.PathEscape(provider) + "/callback",
		query:     url.Values{"code": {code}},
		anonymous: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("login_oauth: backend returned no token")
	}

	c.SetAuthToken(resp.AccessToken)
	return &Credentials{Token: resp.AccessToken, UserID: resp.UserID}, nil
}

// ValidateToken checks the current token with the backend. A rejected
// token returns false with a nil error.
func (c *Client) ValidateToken(ctx context.Context) (bool, error) {
	err := c.do(ctx, request{
		op:     "validate_token",
		method: http.MethodGet,
		path:   "/validate_token",
	}, nil)
	if err == nil {
		return true, nil
	}
	if IsUnauthorized(err) {
		return false, nil
	}
	return false, err
}

// RefreshToken exchanges the current token for a fresh one.
func (c *Client) RefreshToken(ctx context.Context) (*Credentials, error) {
	var resp protocol.TokenResponse
	err := c.do(ctx, request{
		op:     "refresh_token",
		method: http.MethodPost,
		path:   "/login/refresh",
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("refresh_token: backend returned no token")
	}

	c.SetAuthToken(resp.AccessToken)
	return &Credentials{Token: resp.AccessToken, UserID: resp.UserID}, nil
}

// RefreshIfExpiring refreshes the token when its claims say it expires
// within margin. Tokens without readable claims are left alone.
func (c *Client) RefreshIfExpiring(ctx context.Context, margin time.Duration) (*Credentials, bool, error) {
	info, err := ParseToken(c.AuthToken())
	if err != nil || !info.ExpiresWithin(margin) {
		return nil, false, nil
	}
	creds, err := c.RefreshToken(ctx)
	if err != nil {
		return nil, false, err
	}
	return creds, true, nil
}
