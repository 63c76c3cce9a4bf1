// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package remotestore

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the authenticated state the credential store hands the sync
// engine: bearer token, refresh token, expiry (unix seconds, 0 = unknown or
// never), and the signed-in user.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	UserID       string `json:"user_id"`
}

// CredentialStore is the external owner of the session. The engine only
// reads the current session and asks for a refreshed copy to be persisted.
type CredentialStore interface {
	Session(ctx context.Context) (*Session, error)
	SetSession(ctx context.Context, session *Session) error
}

// ExpiresWithin reports whether the session's access token expires inside
// the given window. When the session carries no explicit expiry, the exp
// claim of the access token itself is consulted; a token with neither is
// treated as non-expiring.
func (s *Session) ExpiresWithin(d time.Duration) bool {
	expiresAt := s.ExpiresAt
	if expiresAt == 0 {
		expiresAt = tokenExpiry(s.AccessToken)
	}
	if expiresAt == 0 {
		return false
	}
	return time.Unix(expiresAt, 0).Before(time.Now().Add(d))
}

// tokenExpiry reads the exp claim without verifying the signature; the
// engine never trusts the token, it only schedules refreshes around it.
func tokenExpiry(token string) int64 {
	if token == "" {
		return 0
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	return exp.Unix()
}
