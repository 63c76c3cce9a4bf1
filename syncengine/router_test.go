// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Syncronizee/ib-planner-sub000/localstore"
	"github.com/Syncronizee/ib-planner-sub000/remotestore"
)

func newTestRouter(t *testing.T, fake *fakeRemote, session *remotestore.Session) (*Router, *localstore.Store, *fakeRemote) {
	t.Helper()
	store := openStore(t)

	cfg := remotestore.DefaultConfig(fake.server.URL, "anon-key")
	cfg.Aliases = localstore.RemoteAliases()
	remote := remotestore.NewClient(cfg, quietLogger())
	creds := &memCreds{session: session}

	router := NewRouter(
		NewRemoteQuery(remote, store, creds),
		NewLocalQuery(store),
		quietLogger(),
	)
	return router, store, fake
}

func TestIsOfflineErrorClassification(t *testing.T) {
	require.False(t, IsOfflineError(nil))
	require.False(t, IsOfflineError(errors.New("boom")))
	require.False(t, IsOfflineError(&remotestore.APIError{StatusCode: 500, Message: "oops"}))

	require.True(t, IsOfflineError(context.DeadlineExceeded))
	require.True(t, IsOfflineError(syscall.ECONNREFUSED))
	require.True(t, IsOfflineError(&net.DNSError{Err: "no such host", Name: "example.invalid"}))
	require.True(t, IsOfflineError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	require.True(t, IsOfflineError(fmt.Errorf("fetch tasks: %w", syscall.ENETUNREACH)))
}

func TestRouterPrefersRemoteAndMirrorsLocally(t *testing.T) {
	fake := newFakeRemote(t, allTables()...)
	router, store, _ := newTestRouter(t, fake, testSession())
	ctx := context.Background()

	rec, err := router.Insert(ctx, "tasks", localstore.Record{"user_id": "u1", "title": "on the wire"})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID())

	// The write landed remotely and the local mirror is already clean.
	require.NotNil(t, fake.row("tasks", rec.ID()))
	local, err := store.GetByID(ctx, "tasks", rec.ID(), "u1", false)
	require.NoError(t, err)
	require.False(t, local.IsDirty())
	require.Equal(t, "on the wire", local["title"])

	recs, err := router.Select(ctx, "tasks", "u1", localstore.ListOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestRouterUpdateMirrorsRemoteResult(t *testing.T) {
	fake := newFakeRemote(t, allTables()...)
	router, store, _ := newTestRouter(t, fake, testSession())
	ctx := context.Background()

	rec, err := router.Insert(ctx, "notes", localstore.Record{"user_id": "u1", "title": "v1"})
	require.NoError(t, err)

	_, err = router.Update(ctx, "notes", rec.ID(), "u1", localstore.Record{"title": "v2"})
	require.NoError(t, err)

	require.Equal(t, "v2", fake.row("notes", rec.ID())["title"])
	local, err := store.GetByID(ctx, "notes", rec.ID(), "u1", false)
	require.NoError(t, err)
	require.Equal(t, "v2", local["title"])
	require.False(t, local.IsDirty())
}

func TestRouterDeleteRemovesMirrorWithoutTombstone(t *testing.T) {
	fake := newFakeRemote(t, allTables()...)
	router, store, _ := newTestRouter(t, fake, testSession())
	ctx := context.Background()

	rec, err := router.Insert(ctx, "subjects", localstore.Record{"user_id": "u1", "name": "Physics"})
	require.NoError(t, err)

	require.NoError(t, router.Delete(ctx, "subjects", rec.ID(), "u1"))
	require.Equal(t, 0, fake.count("subjects"))

	gone, err := store.GetByID(ctx, "subjects", rec.ID(), "u1", true)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestRouterFallsBackWhenUnreachable(t *testing.T) {
	fake := newFakeRemote(t, allTables()...)
	router, store, _ := newTestRouter(t, fake, testSession())
	ctx := context.Background()

	// Kill the backend; writes must land locally as dirty rows.
	fake.server.Close()

	rec, err := router.Insert(ctx, "tasks", localstore.Record{"user_id": "u1", "title": "offline draft"})
	require.NoError(t, err)

	local, err := store.GetByID(ctx, "tasks", rec.ID(), "u1", false)
	require.NoError(t, err)
	require.True(t, local.IsDirty())

	recs, err := router.Select(ctx, "tasks", "u1", localstore.ListOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	// Deletes become tombstones for the next sync cycle.
	require.NoError(t, router.Delete(ctx, "tasks", rec.ID(), "u1"))
	tomb, err := store.GetByID(ctx, "tasks", rec.ID(), "u1", true)
	require.NoError(t, err)
	require.True(t, tomb.IsDeleted())
	require.True(t, tomb.IsDirty())
}

func TestRouterFallsBackWithoutSession(t *testing.T) {
	fake := newFakeRemote(t, allTables()...)
	router, store, _ := newTestRouter(t, fake, nil)
	ctx := context.Background()

	rec, err := router.Insert(ctx, "tasks", localstore.Record{"user_id": "u1", "title": "signed out"})
	require.NoError(t, err)

	local, err := store.GetByID(ctx, "tasks", rec.ID(), "u1", false)
	require.NoError(t, err)
	require.True(t, local.IsDirty())
	require.Equal(t, 0, fake.count("tasks"))
}

func TestRouterSurfacesRealAPIErrors(t *testing.T) {
	fake := newFakeRemote(t, allTables()...)
	router, _, _ := newTestRouter(t, fake, testSession())
	ctx := context.Background()

	fake.mu.Lock()
	fake.failUpsert["tasks"] = true
	fake.mu.Unlock()

	// A 500 from the backend is not an offline condition; no local fallback.
	_, err := router.Insert(ctx, "tasks", localstore.Record{"user_id": "u1", "title": "x"})
	require.Error(t, err)
	var apiErr *remotestore.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 500, apiErr.StatusCode)
}

func TestRouterSelectFiltersAndOrders(t *testing.T) {
	fake := newFakeRemote(t, allTables()...)
	router, _, _ := newTestRouter(t, fake, testSession())
	ctx := context.Background()

	base := time.Now().UTC()
	for i, title := range []string{"a", "b", "c"} {
		fake.seed("tasks", map[string]any{
			"id":           fmt.Sprintf("r%d", i),
			"user_id":      "u1",
			"title":        title,
			"is_completed": i == 1,
			"updated_at":   base.Add(time.Duration(i) * time.Minute).Format("2006-01-02T15:04:05.000Z"),
		})
	}
	fake.seed("tasks", map[string]any{
		"id":         "deleted",
		"user_id":    "u1",
		"title":      "gone",
		"updated_at": base.Format("2006-01-02T15:04:05.000Z"),
		"deleted_at": base.Format("2006-01-02T15:04:05.000Z"),
	})

	recs, err := router.Select(ctx, "tasks", "u1", localstore.ListOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 3) // default updated_at desc, soft-deleted excluded
	require.Equal(t, "c", recs[0]["title"])

	recs, err = router.Select(ctx, "tasks", "u1", localstore.ListOptions{
		Where:     localstore.Record{"is_completed": true},
		OrderBy:   "updated_at",
		Ascending: true,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "b", recs[0]["title"])
}
