// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package syncengine

import "time"

// Status is the engine's observable state. It is mutated only by the
// orchestrator and broadcast to subscribers on every transition.
type Status struct {
	Online         bool       `json:"online"`
	Syncing        bool       `json:"syncing"`
	LastSyncedAt   *time.Time `json:"last_synced_at"`
	PendingChanges int        `json:"pending_changes"`
	Error          string     `json:"error,omitempty"`
}

// EventKind selects which transitions a subscriber is told about.
type EventKind string

const (
	// EventProgress fires when the engine enters or leaves the online or
	// syncing state.
	EventProgress EventKind = "progress"
	// EventComplete fires after a successful sync cycle.
	EventComplete EventKind = "complete"
	// EventError fires on any sync failure.
	EventError EventKind = "error"
	// EventStatus fires with a snapshot after every status transition.
	EventStatus EventKind = "status"
)

type subscriber struct {
	id   int
	kind EventKind
	fn   func(Status)
}

// Subscribe registers a callback for one event kind and returns a cancel
// function. Callbacks run synchronously on the goroutine driving the
// transition; keep them short.
func (e *Engine) Subscribe(kind EventKind, fn func(Status)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSubID++
	id := e.nextSubID
	e.subs = append(e.subs, subscriber{id: id, kind: kind, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i := range e.subs {
			if e.subs[i].id == id {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// emit notifies subscribers of the given kinds with a status snapshot. The
// subscriber list is copied under the lock; callbacks run outside it.
func (e *Engine) emit(snapshot Status, kinds ...EventKind) {
	e.mu.RLock()
	subs := make([]subscriber, len(e.subs))
	copy(subs, e.subs)
	e.mu.RUnlock()

	for _, kind := range kinds {
		for _, sub := range subs {
			if sub.kind == kind {
				sub.fn(snapshot)
			}
		}
	}
}

// updateStatus applies fn to the status under the lock, then broadcasts the
// snapshot to the given kinds plus the catch-all status kind.
func (e *Engine) updateStatus(fn func(*Status), kinds ...EventKind) Status {
	e.mu.Lock()
	fn(&e.status)
	snapshot := e.status
	e.mu.Unlock()

	e.emit(snapshot, append(kinds, EventStatus)...)
	return snapshot
}
