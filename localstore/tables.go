// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package localstore

// TableSpec declares one synchronized table: its name, the columns that
// carry JSON documents, the columns that carry booleans (stored as 0/1 in
// SQLite), and the alternate names the remote backend has been known to use.
type TableSpec struct {
	Name          string   // logical table name, identical locally and remotely
	JSONColumns   []string // columns (de)serialized as JSON documents
	BoolColumns   []string // columns stored as INTEGER 0/1, exposed as bool
	RemoteAliases []string // historical remote-side names for this table
}

// SyncTables is the closed set of tables the engine synchronizes. Order
// matters only for deterministic iteration; tables are otherwise independent.
var SyncTables = []TableSpec{
	{
		Name:          "subjects",
		JSONColumns:   []string{"criteria"},
		BoolColumns:   []string{"is_hl", "is_archived"},
		RemoteAliases: []string{"subject"},
	},
	{
		Name:          "tasks",
		JSONColumns:   []string{"subtasks", "tags"},
		BoolColumns:   []string{"is_completed"},
		RemoteAliases: []string{"task", "todos"},
	},
	{
		Name:          "assessments",
		JSONColumns:   []string{"criteria_scores"},
		BoolColumns:   []string{"is_submitted"},
		RemoteAliases: []string{"assessment"},
	},
	{
		Name:          "notes",
		JSONColumns:   []string{"attachments"},
		BoolColumns:   []string{"is_pinned"},
		RemoteAliases: []string{"note"},
	},
	{
		Name:          "study_sessions",
		JSONColumns:   nil,
		BoolColumns:   []string{"is_focused"},
		RemoteAliases: []string{"study_session", "sessions"},
	},
}

// metaColumns are managed by the store itself and never settable through a
// caller-supplied patch.
var metaColumns = map[string]bool{
	"is_dirty":  true,
	"synced_at": true,
}

// SpecFor returns the table spec for a logical table name.
func SpecFor(table string) (*TableSpec, bool) {
	for i := range SyncTables {
		if SyncTables[i].Name == table {
			return &SyncTables[i], true
		}
	}
	return nil, false
}

// TableNames returns the logical names of all sync tables.
func TableNames() []string {
	names := make([]string, len(SyncTables))
	for i := range SyncTables {
		names[i] = SyncTables[i].Name
	}
	return names
}

// RemoteAliases returns the alias configuration for the remote table
// resolver, keyed by logical table name.
func RemoteAliases() map[string][]string {
	aliases := make(map[string][]string, len(SyncTables))
	for i := range SyncTables {
		aliases[SyncTables[i].Name] = SyncTables[i].RemoteAliases
	}
	return aliases
}

func (t *TableSpec) isJSONColumn(name string) bool {
	for _, c := range t.JSONColumns {
		if c == name {
			return true
		}
	}
	return false
}

func (t *TableSpec) isBoolColumn(name string) bool {
	for _, c := range t.BoolColumns {
		if c == name {
			return true
		}
	}
	return false
}
