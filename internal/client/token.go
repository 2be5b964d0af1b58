package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo holds the claims the portal reads from a bearer token.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time // zero when the token carries no expiry
}

// ParseToken reads the claims of a JWT without verifying its signature.
// The backend is the only party that validates tokens; the client only
// needs the expiry to decide when to refresh.
func ParseToken(token string) (*TokenInfo, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	info := &TokenInfo{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// Expired reports whether the token is past its expiry.
func (t *TokenInfo) Expired() bool {
	return t.ExpiresWithin(0)
}

// ExpiresWithin reports whether the token expires within margin.
func (t *TokenInfo) ExpiresWithin(margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(t.ExpiresAt)
}
