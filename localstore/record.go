// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package localstore

// Record is one row of a sync table, keyed by column name. Values are plain
// Go types: string, int64, float64, bool (for declared bool columns),
// decoded JSON values (for declared JSON columns), or nil.
type Record map[string]any

// ID returns the client-assigned record identifier.
func (r Record) ID() string { return stringValue(r, "id") }

// UserID returns the owning user.
func (r Record) UserID() string { return stringValue(r, "user_id") }

// RemoteID returns the identifier the record is known by remotely, falling
// back to the local id when the remote never reassigned one.
func (r Record) RemoteID() string {
	if rid := stringValue(r, "remote_id"); rid != "" {
		return rid
	}
	return r.ID()
}

// UpdatedAt returns the raw updated_at timestamp string.
func (r Record) UpdatedAt() string { return stringValue(r, "updated_at") }

// IsDirty reports whether the record has local changes pending sync.
func (r Record) IsDirty() bool { return truthy(r["is_dirty"]) }

// IsDeleted reports whether the record carries a tombstone.
func (r Record) IsDeleted() bool { return stringValue(r, "deleted_at") != "" }

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
