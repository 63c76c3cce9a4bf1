// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Syncronizee/ib-planner-sub000/localstore"
	"github.com/Syncronizee/ib-planner-sub000/remotestore"
)

// Query is the data-access surface the host application reads and writes
// planner records through. It has one remote-backed and one local-backed
// implementation; the Router picks between them.
type Query interface {
	Select(ctx context.Context, table, userID string, opts localstore.ListOptions) ([]localstore.Record, error)
	Insert(ctx context.Context, table string, data localstore.Record) (localstore.Record, error)
	Update(ctx context.Context, table, id, userID string, patch localstore.Record) (localstore.Record, error)
	Delete(ctx context.Context, table, id, userID string) error
}

// IsOfflineError classifies transport-level failures that mean the backend
// is unreachable, as opposed to real API errors. An HTTP response of any
// status is never offline-like.
func IsOfflineError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	// url.Error means the round trip itself failed; a decoded API error
	// never takes this shape.
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// Router tries the remote query first and falls back to the local one when
// the failure is offline-like or there is no session to authenticate with.
// Local-backed writes are dirty-tracked, so whatever lands locally during an
// outage is reconciled by the next sync cycle.
type Router struct {
	remote Query
	local  Query
	logger *slog.Logger
}

// NewRouter builds the remote-first router.
func NewRouter(remote, local Query, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{remote: remote, local: local, logger: logger}
}

func (r *Router) fallback(op string, err error) bool {
	if IsOfflineError(err) || errors.Is(err, ErrNotAuthenticated) {
		r.logger.Debug("remote unreachable, using local store", "op", op, "error", err)
		return true
	}
	return false
}

func (r *Router) Select(ctx context.Context, table, userID string, opts localstore.ListOptions) ([]localstore.Record, error) {
	recs, err := r.remote.Select(ctx, table, userID, opts)
	if err != nil && r.fallback("select", err) {
		return r.local.Select(ctx, table, userID, opts)
	}
	return recs, err
}

func (r *Router) Insert(ctx context.Context, table string, data localstore.Record) (localstore.Record, error) {
	rec, err := r.remote.Insert(ctx, table, data)
	if err != nil && r.fallback("insert", err) {
		return r.local.Insert(ctx, table, data)
	}
	return rec, err
}

func (r *Router) Update(ctx context.Context, table, id, userID string, patch localstore.Record) (localstore.Record, error) {
	rec, err := r.remote.Update(ctx, table, id, userID, patch)
	if err != nil && r.fallback("update", err) {
		return r.local.Update(ctx, table, id, userID, patch)
	}
	return rec, err
}

func (r *Router) Delete(ctx context.Context, table, id, userID string) error {
	err := r.remote.Delete(ctx, table, id, userID)
	if err != nil && r.fallback("delete", err) {
		return r.local.Delete(ctx, table, id, userID)
	}
	return err
}

// LocalQuery serves queries straight from the local store. Writes are
// dirty-tracked and deletes are tombstones, so the sync engine picks them up
// on the next cycle.
type LocalQuery struct {
	store *localstore.Store
}

// NewLocalQuery wraps a store.
func NewLocalQuery(store *localstore.Store) *LocalQuery {
	return &LocalQuery{store: store}
}

func (q *LocalQuery) Select(ctx context.Context, table, userID string, opts localstore.ListOptions) ([]localstore.Record, error) {
	return q.store.List(ctx, table, userID, opts)
}

func (q *LocalQuery) Insert(ctx context.Context, table string, data localstore.Record) (localstore.Record, error) {
	return q.store.Create(ctx, table, data)
}

func (q *LocalQuery) Update(ctx context.Context, table, id, userID string, patch localstore.Record) (localstore.Record, error) {
	return q.store.Update(ctx, table, id, userID, patch)
}

func (q *LocalQuery) Delete(ctx context.Context, table, id, userID string) error {
	return q.store.SoftDelete(ctx, table, id, userID)
}

// RemoteQuery serves queries from the backend and mirrors every successful
// write into the local store as a clean row, so the local copy tracks what
// the remote already confirmed.
type RemoteQuery struct {
	remote *remotestore.Client
	store  *localstore.Store
	creds  remotestore.CredentialStore
}

// NewRemoteQuery wraps a remote client with its local mirror.
func NewRemoteQuery(remote *remotestore.Client, store *localstore.Store, creds remotestore.CredentialStore) *RemoteQuery {
	return &RemoteQuery{remote: remote, store: store, creds: creds}
}

func (q *RemoteQuery) session(ctx context.Context) (*remotestore.Session, error) {
	session, err := q.creds.Session(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil || session.AccessToken == "" {
		return nil, ErrNotAuthenticated
	}
	return session, nil
}

func (q *RemoteQuery) Select(ctx context.Context, table, userID string, opts localstore.ListOptions) ([]localstore.Record, error) {
	session, err := q.session(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.remote.FetchByUser(ctx, table, userID, session.AccessToken)
	if err != nil {
		return nil, err
	}

	recs := make([]localstore.Record, 0, len(rows))
	for _, row := range rows {
		rec := localstore.Record(row)
		if !opts.IncludeDeleted && rec.IsDeleted() {
			continue
		}
		if !matchesWhere(rec, opts.Where) {
			continue
		}
		recs = append(recs, rec)
	}
	sortRecords(recs, opts)
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}
	return recs, nil
}

func (q *RemoteQuery) Insert(ctx context.Context, table string, data localstore.Record) (localstore.Record, error) {
	session, err := q.session(ctx)
	if err != nil {
		return nil, err
	}

	row := data.Clone()
	if row.ID() == "" {
		row["id"] = uuid.NewString()
	}
	now := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = now
	}
	row["updated_at"] = now

	stored, err := q.remote.Upsert(ctx, table, row, session.AccessToken)
	if err != nil {
		return nil, err
	}
	return q.mirror(ctx, table, stored)
}

func (q *RemoteQuery) Update(ctx context.Context, table, id, userID string, patch localstore.Record) (localstore.Record, error) {
	session, err := q.session(ctx)
	if err != nil {
		return nil, err
	}

	row := patch.Clone()
	row["id"] = id
	row["user_id"] = userID
	row["updated_at"] = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	stored, err := q.remote.Upsert(ctx, table, row, session.AccessToken)
	if err != nil {
		return nil, err
	}
	return q.mirror(ctx, table, stored)
}

// Delete removes the row remotely and hard-deletes the local mirror: the
// remote side already confirmed, so no tombstone is needed.
func (q *RemoteQuery) Delete(ctx context.Context, table, id, userID string) error {
	session, err := q.session(ctx)
	if err != nil {
		return err
	}
	if err := q.remote.Delete(ctx, table, id, userID, session.AccessToken); err != nil {
		return err
	}
	if err := q.store.HardDelete(ctx, table, id, userID); err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return fmt.Errorf("failed to remove local mirror: %w", err)
	}
	return nil
}

func (q *RemoteQuery) mirror(ctx context.Context, table string, row map[string]any) (localstore.Record, error) {
	rec := localstore.Record(row).Clone()
	rec["remote_id"] = rec.ID()
	mirrored, err := q.store.UpsertRemote(ctx, table, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to mirror remote write: %w", err)
	}
	return mirrored, nil
}

func matchesWhere(rec localstore.Record, where map[string]any) bool {
	for column, want := range where {
		if fmt.Sprint(rec[column]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// sortRecords orders by the requested column, defaulting to updated_at
// descending. ISO-8601 timestamps sort correctly as strings.
func sortRecords(recs []localstore.Record, opts localstore.ListOptions) {
	column := opts.OrderBy
	ascending := opts.Ascending
	if column == "" {
		column = "updated_at"
		ascending = false
	}
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := fmt.Sprint(recs[i][column]), fmt.Sprint(recs[j][column])
		if ascending {
			return a < b
		}
		return a > b
	})
}
