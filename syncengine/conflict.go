// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"time"

	"github.com/Syncronizee/ib-planner-sub000/localstore"
)

// Winner identifies which side of a local/remote record pair persists.
type Winner int

const (
	WinnerLocal Winner = iota
	WinnerRemote
)

// Resolve decides, for one local/remote pair of the same record, which
// side's data should persist locally. Last-writer-wins on updated_at, with
// one tie-break: at equal timestamps the remote copy wins unless the local
// copy is soft-deleted and the remote is not, so a local delete racing a
// timestamp tie is not silently resurrected. The winning side replaces the
// record wholesale; there is no field-level merge.
func Resolve(local, remote localstore.Record) Winner {
	localTime := parseTimestamp(local["updated_at"])
	remoteTime := parseTimestamp(remote["updated_at"])

	if remoteTime.After(localTime) {
		return WinnerRemote
	}
	if localTime.After(remoteTime) {
		return WinnerLocal
	}
	if local.IsDeleted() && !remote.IsDeleted() {
		return WinnerLocal
	}
	return WinnerRemote
}

// timestampLayouts covers the ISO-8601 variants both sides produce.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
}

// parseTimestamp parses an updated_at value; anything missing or unparsable
// collapses to the epoch so the other side wins deterministically.
func parseTimestamp(value any) time.Time {
	s, ok := value.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
