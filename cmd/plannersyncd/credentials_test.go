// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Syncronizee/ib-planner-sub000/remotestore"
)

func TestFileCredentialStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileCredentialStore(path)
	ctx := context.Background()

	session := &remotestore.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(1 * time.Hour).Unix(),
		UserID:       "u1",
	}
	require.NoError(t, store.SetSession(ctx, session))

	got, err := store.Session(ctx)
	require.NoError(t, err)
	require.Equal(t, session, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileCredentialStoreMissingFileIsNoSession(t *testing.T) {
	store := NewFileCredentialStore(filepath.Join(t.TempDir(), "absent.json"))

	got, err := store.Session(context.Background())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFileCredentialStoreEmptyTokenIsNoSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"access_token": ""}`), 0o600))

	got, err := NewFileCredentialStore(path).Session(context.Background())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFileCredentialStoreCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "auth", "session.json")
	store := NewFileCredentialStore(path)

	err := store.SetSession(context.Background(), &remotestore.Session{AccessToken: "a"})
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestFileCredentialStoreCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileCredentialStore(path).Session(context.Background())
	require.Error(t, err)
}
