// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/Syncronizee/ib-planner-sub000/localstore"
	"github.com/Syncronizee/ib-planner-sub000/remotestore"
	"github.com/Syncronizee/ib-planner-sub000/syncengine"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := localstore.New(db, logger)
	require.NoError(t, err)

	remote := remotestore.NewClient(remotestore.DefaultConfig("http://127.0.0.1:0", "anon"), logger)
	creds := NewFileCredentialStore(filepath.Join(t.TempDir(), "session.json"))
	engine := syncengine.New(store, remote, creds, nil, logger)
	return newRouter(engine)
}

func TestStatusEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status syncengine.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.False(t, status.Online)
	require.False(t, status.Syncing)
	require.Nil(t, status.LastSyncedAt)
}

func TestSyncEndpointReportsCycleOutcome(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	// No session saved yet, the cycle reports that rather than failing.
	var status syncengine.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Contains(t, status.Error, "no authenticated session")
}

func TestOnlineEndpoint(t *testing.T) {
	router := newTestRouter(t)

	body := strings.NewReader(`{"online": true}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/online", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var status syncengine.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.True(t, status.Online)
}

func TestOnlineEndpointRejectsBadBody(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/online", strings.NewReader("nope")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
