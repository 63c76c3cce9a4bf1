// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

// Package syncengine reconciles the local planner store with the shared
// backend. Cycles are push-then-pull over every sync table, serialized by a
// queue so concurrent triggers (manual, reconnect, timer) never interleave,
// with last-writer-wins conflict resolution and status broadcast to
// observers on every transition.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Syncronizee/ib-planner-sub000/localstore"
	"github.com/Syncronizee/ib-planner-sub000/remotestore"
)

var (
	// ErrNotAuthenticated means no usable session; the cycle was skipped.
	ErrNotAuthenticated = errors.New("no authenticated session, sync skipped")
	// ErrOffline means the engine is offline; the cycle was deferred.
	ErrOffline = errors.New("offline, sync deferred until reconnect")
)

// MissingTableError reports a push that could not land because the remote
// table is not provisioned. Other tables keep syncing; the count tells the
// caller how many local changes are stuck behind it.
type MissingTableError struct {
	Table   string
	Pending int
}

func (e *MissingTableError) Error() string {
	return fmt.Sprintf("remote table %q not provisioned, %d local changes stuck", e.Table, e.Pending)
}

// Config tunes the orchestrator.
type Config struct {
	Tables           []string      // logical tables to sync, in order
	PushLimit        int           // max dirty rows pushed per table per cycle
	RefreshThreshold time.Duration // refresh the session when it expires within this window
}

// DefaultConfig syncs every registered table with the store's push batch
// bound and a two minute refresh window.
func DefaultConfig() *Config {
	return &Config{
		Tables:           localstore.TableNames(),
		PushLimit:        localstore.DefaultPushLimit,
		RefreshThreshold: 2 * time.Minute,
	}
}

// Engine is the sync orchestrator and the engine's public surface for the
// host application.
type Engine struct {
	store  *localstore.Store
	remote *remotestore.Client
	creds  remotestore.CredentialStore
	queue  *Queue
	config *Config
	logger *slog.Logger

	mu        sync.RWMutex
	status    Status
	subs      []subscriber
	nextSubID int
}

// New assembles an engine. The credential store stays the owner of the
// session; the engine only reads it and asks for refreshed copies to be
// persisted.
func New(store *localstore.Store, remote *remotestore.Client, creds remotestore.CredentialStore, config *Config, logger *slog.Logger) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		remote: remote,
		creds:  creds,
		queue:  NewQueue(),
		config: config,
		logger: logger,
	}
}

// Initialize loads the persisted last-sync time and pending-change count for
// the current session's user, if any.
func (e *Engine) Initialize(ctx context.Context) error {
	session, err := e.creds.Session(ctx)
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	if session == nil || session.UserID == "" {
		return nil
	}

	last, err := e.store.LastSyncAt(ctx, session.UserID)
	if err != nil {
		return err
	}
	pending, err := e.store.PendingChanges(ctx, session.UserID)
	if err != nil {
		return err
	}

	e.updateStatus(func(st *Status) {
		if t := parseTimestamp(last); !t.IsZero() {
			st.LastSyncedAt = &t
		}
		st.PendingChanges = pending
	})
	return nil
}

// Status returns the current status snapshot.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// PendingChanges counts dirty rows for a user across all tables.
func (e *Engine) PendingChanges(ctx context.Context, userID string) (int, error) {
	return e.store.PendingChanges(ctx, userID)
}

// SetOnline flips the online flag. Transitioning to online triggers an
// immediate sync attempt when a session exists; the attempt runs through
// the queue like any other and its outcome is the returned status.
func (e *Engine) SetOnline(ctx context.Context, online bool) Status {
	e.mu.RLock()
	was := e.status.Online
	e.mu.RUnlock()

	snapshot := e.updateStatus(func(st *Status) {
		st.Online = online
	}, EventProgress)

	if online && !was {
		if session, err := e.creds.Session(ctx); err == nil && session != nil && session.UserID != "" {
			return e.SyncNow(ctx)
		}
	}
	return snapshot
}

// SyncNow enqueues one full push-then-pull cycle and waits for it. It never
// fails outright: the returned status carries the cycle's error, if any.
func (e *Engine) SyncNow(ctx context.Context) Status {
	var final Status
	_ = e.queue.Do(func() error {
		final = e.runCycle(ctx)
		if final.Error != "" {
			return errors.New(final.Error)
		}
		return nil
	})
	return final
}

// runCycle executes one sync cycle and finalizes status. Partial progress
// survives a failure: rows already marked synced stay synced.
func (e *Engine) runCycle(ctx context.Context) Status {
	e.updateStatus(func(st *Status) {
		st.Syncing = true
	}, EventProgress)

	session := e.freshSession(ctx)

	var failure error
	var userID string
	switch {
	case session == nil || session.UserID == "":
		failure = ErrNotAuthenticated
	case !e.Status().Online:
		failure = ErrOffline
	default:
		userID = session.UserID
		failure = e.syncTables(ctx, session)
	}

	pending := 0
	if userID != "" {
		if p, err := e.store.PendingChanges(ctx, userID); err == nil {
			pending = p
		}
	}

	if failure != nil {
		e.logger.Error("sync cycle failed", "error", failure)
		return e.updateStatus(func(st *Status) {
			st.Syncing = false
			st.Error = failure.Error()
			if userID != "" {
				st.PendingChanges = pending
			}
		}, EventProgress, EventError)
	}

	now := time.Now().UTC()
	if err := e.store.SetLastSyncAt(ctx, userID, now.Format("2006-01-02T15:04:05.000Z")); err != nil {
		e.logger.Warn("failed to persist last sync time", "error", err)
	}
	return e.updateStatus(func(st *Status) {
		st.Syncing = false
		st.Error = ""
		st.LastSyncedAt = &now
		st.PendingChanges = pending
	}, EventProgress, EventComplete)
}

// freshSession returns the current session, refreshed when it is about to
// expire. A failed refresh is not fatal: the cycle proceeds with the stale
// token and lets the remote reject it if it must.
func (e *Engine) freshSession(ctx context.Context) *remotestore.Session {
	session, err := e.creds.Session(ctx)
	if err != nil {
		e.logger.Warn("failed to read session", "error", err)
		return nil
	}
	if session == nil || session.RefreshToken == "" || !session.ExpiresWithin(e.config.RefreshThreshold) {
		return session
	}

	refreshed, err := e.remote.RefreshSession(ctx, session.RefreshToken)
	if err != nil {
		e.logger.Warn("session refresh failed, continuing with stale token", "error", err)
		return session
	}
	if refreshed.UserID == "" {
		refreshed.UserID = session.UserID
	}
	if err := e.creds.SetSession(ctx, refreshed); err != nil {
		e.logger.Warn("failed to persist refreshed session", "error", err)
	}
	return refreshed
}

// syncTables pushes every table, then pulls every table. Tables are
// independent: a failure in one is collected and the rest proceed. A
// missing remote table is fatal only for that table's push and a plain
// skip for its pull.
func (e *Engine) syncTables(ctx context.Context, session *remotestore.Session) error {
	var errs []error
	for _, table := range e.config.Tables {
		if err := e.pushTable(ctx, table, session); err != nil {
			errs = append(errs, err)
		}
	}
	for _, table := range e.config.Tables {
		if err := e.pullTable(ctx, table, session); err != nil {
			if remotestore.IsTableNotFound(err) {
				e.logger.Info("remote table not provisioned, skipping pull", "table", table)
				continue
			}
			errs = append(errs, fmt.Errorf("pull %s: %w", table, err))
		}
	}
	return errors.Join(errs...)
}

// pushTable pushes up to PushLimit dirty rows: remote deletes for
// tombstones, drift-tolerant upserts for everything else, each marked
// synced on success. A row-level failure aborts the table's remaining rows.
func (e *Engine) pushTable(ctx context.Context, table string, session *remotestore.Session) error {
	dirty, err := e.store.DirtyRecords(ctx, table, session.UserID, e.config.PushLimit)
	if err != nil {
		return fmt.Errorf("push %s: %w", table, err)
	}
	for i, rec := range dirty {
		if err := e.pushRecord(ctx, table, rec, session); err != nil {
			if remotestore.IsTableNotFound(err) {
				return &MissingTableError{Table: table, Pending: len(dirty) - i}
			}
			return fmt.Errorf("push %s %s: %w", table, rec.ID(), err)
		}
	}
	return nil
}

func (e *Engine) pushRecord(ctx context.Context, table string, rec localstore.Record, session *remotestore.Session) error {
	if rec.IsDeleted() {
		if err := e.remote.Delete(ctx, table, rec.RemoteID(), session.UserID, session.AccessToken); err != nil {
			return err
		}
		return e.store.MarkSynced(ctx, table, rec.ID(), rec.RemoteID())
	}

	stored, err := e.remote.Upsert(ctx, table, pushPayload(rec), session.AccessToken)
	if err != nil {
		return err
	}
	remoteID := rec.RemoteID()
	if id, ok := stored["id"].(string); ok && id != "" {
		remoteID = id
	}
	return e.store.MarkSynced(ctx, table, rec.ID(), remoteID)
}

// pushPayload strips local bookkeeping from a record and addresses it by
// its remote id, the idempotency key for re-upserts.
func pushPayload(rec localstore.Record) map[string]any {
	payload := make(map[string]any, len(rec))
	for column, value := range rec {
		switch column {
		case "is_dirty", "synced_at", "remote_id":
			continue
		}
		payload[column] = value
	}
	payload["id"] = rec.RemoteID()
	return payload
}

// pullTable fetches the user's remote rows, reconciles each against the
// local copy, then prunes clean local rows the remote no longer has.
func (e *Engine) pullTable(ctx context.Context, table string, session *remotestore.Session) error {
	remoteRows, err := e.remote.FetchByUser(ctx, table, session.UserID, session.AccessToken)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(remoteRows))
	for _, row := range remoteRows {
		remoteID, _ := row["id"].(string)
		if remoteID == "" {
			e.logger.Warn("skipping remote row without id", "table", table)
			continue
		}
		seen[remoteID] = true
		if err := e.applyRemoteRow(ctx, table, remoteID, row, session.UserID); err != nil {
			return err
		}
	}

	return e.pruneTable(ctx, table, session.UserID, seen)
}

// applyRemoteRow overwrites the local copy with the remote one unless the
// local copy is dirty and wins conflict resolution.
func (e *Engine) applyRemoteRow(ctx context.Context, table, remoteID string, row map[string]any, userID string) error {
	local, err := e.store.GetByRemoteID(ctx, table, remoteID, userID)
	if err != nil {
		return err
	}
	if local != nil && local.IsDirty() {
		if Resolve(local, localstore.Record(row)) == WinnerLocal {
			return nil
		}
	}

	rec := localstore.Record(row).Clone()
	rec["remote_id"] = remoteID
	if local != nil {
		rec["id"] = local.ID()
	} else {
		rec["id"] = remoteID
	}
	if _, err := e.store.UpsertRemote(ctx, table, rec); err != nil {
		return err
	}
	return nil
}

// pruneTable propagates remote-side deletions: any clean local row whose id
// the remote fetch did not return is hard-deleted. Dirty rows are never
// touched, so an unsynced local creation cannot be erased.
func (e *Engine) pruneTable(ctx context.Context, table, userID string, seen map[string]bool) error {
	locals, err := e.store.List(ctx, table, userID, localstore.ListOptions{IncludeDeleted: true})
	if err != nil {
		return err
	}
	for _, rec := range locals {
		if rec.IsDirty() {
			continue
		}
		if seen[rec.RemoteID()] || seen[rec.ID()] {
			continue
		}
		if err := e.store.HardDelete(ctx, table, rec.ID(), userID); err != nil {
			return err
		}
	}
	return nil
}
