// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package remotestore

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestExpiresWithinExplicitExpiry(t *testing.T) {
	soon := &Session{AccessToken: "x", ExpiresAt: time.Now().Add(30 * time.Second).Unix()}
	require.True(t, soon.ExpiresWithin(2*time.Minute))
	require.False(t, soon.ExpiresWithin(10*time.Second))

	later := &Session{AccessToken: "x", ExpiresAt: time.Now().Add(1 * time.Hour).Unix()}
	require.False(t, later.ExpiresWithin(2*time.Minute))
}

func TestExpiresWithinFallsBackToTokenClaim(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(30 * time.Second).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	session := &Session{AccessToken: signed}
	require.True(t, session.ExpiresWithin(2*time.Minute))
	require.False(t, session.ExpiresWithin(5*time.Second))
}

func TestExpiresWithinNeverExpires(t *testing.T) {
	// No expiry anywhere: treated as non-expiring.
	opaque := &Session{AccessToken: "not-a-jwt"}
	require.False(t, opaque.ExpiresWithin(24*time.Hour))

	empty := &Session{}
	require.False(t, empty.ExpiresWithin(24*time.Hour))
}
