// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package syncengine

import "sync"

// Queue serializes units of work: each call chains behind whatever is
// currently running, regardless of whether the prior unit succeeded or
// failed, so at most one sync cycle touches the local store at a time even
// when the manual trigger, a connectivity flip, and the periodic timer all
// fire together.
type Queue struct {
	mu   sync.Mutex
	tail chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Do runs fn after every previously enqueued unit has finished, and returns
// fn's own outcome. Callers block until their unit completes; cycles run to
// completion and are never cancelled mid-flight.
func (q *Queue) Do(fn func() error) error {
	q.mu.Lock()
	prev := q.tail
	done := make(chan struct{})
	q.tail = done
	q.mu.Unlock()

	if prev != nil {
		<-prev
	}
	defer close(done)

	return fn()
}
