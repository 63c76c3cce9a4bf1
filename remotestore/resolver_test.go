// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package remotestore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSingularize(t *testing.T) {
	cases := map[string]string{
		"subjects":       "subject",
		"tasks":          "task",
		"notes":          "note",
		"categories":     "category",
		"statuses":       "status",
		"study_sessions": "study_session",
		"data":           "data",
	}
	for plural, singular := range cases {
		require.Equal(t, singular, singularize(plural), "singularize(%s)", plural)
	}
}

func TestCandidatesOrderAndDedup(t *testing.T) {
	r := NewTableResolver(map[string][]string{
		"tasks": {"task", "todos", "tasks"},
	})

	// Unresolved: logical name first, then aliases, then the singular guess
	// (already covered by the alias here).
	require.Equal(t, []string{"tasks", "task", "todos"}, r.Candidates("tasks"))

	// Once resolved, the cached name leads.
	r.Remember("tasks", "todos")
	require.Equal(t, []string{"todos", "tasks", "task"}, r.Candidates("tasks"))

	actual, ok := r.Resolved("tasks")
	require.True(t, ok)
	require.Equal(t, "todos", actual)
}

func TestCandidatesWithoutAliases(t *testing.T) {
	r := NewTableResolver(nil)
	require.Equal(t, []string{"notes", "note"}, r.Candidates("notes"))

	_, ok := r.Resolved("notes")
	require.False(t, ok)
}
