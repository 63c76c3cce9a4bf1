// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PLANNERSYNC_REMOTE_URL", "https://project.example.co")

	cfg, err := loadConfig("")
	require.NoError(t, err)

	require.Equal(t, "https://project.example.co", cfg.Remote.URL)
	require.Equal(t, "planner.db", cfg.Database.Path)
	require.Equal(t, "session.json", cfg.Auth.CredentialsPath)
	require.Equal(t, "@every 5m", cfg.Sync.Schedule)
	require.Equal(t, 200, cfg.Sync.PushLimit)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "127.0.0.1:8787", cfg.Server.Addr)
}

func TestLoadConfigRequiresRemoteURL(t *testing.T) {
	_, err := loadConfig("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "remote.url is required")
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plannersync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /var/lib/planner/planner.db
remote:
  url: https://project.example.co
  api_key: anon-key
sync:
  schedule: "@every 1m"
  push_limit: 50
log:
  level: debug
`), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "/var/lib/planner/planner.db", cfg.Database.Path)
	require.Equal(t, "anon-key", cfg.Remote.APIKey)
	require.Equal(t, "@every 1m", cfg.Sync.Schedule)
	require.Equal(t, 50, cfg.Sync.PushLimit)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plannersync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
remote:
  url: https://file.example.co
`), 0o600))

	t.Setenv("PLANNERSYNC_REMOTE_URL", "https://env.example.co")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "https://env.example.co", cfg.Remote.URL)
}

func TestLoadConfigMissingFileFails(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
