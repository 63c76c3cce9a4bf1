// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package remotestore

import (
	"strings"
	"sync"
)

// TableResolver maps a logical table name to whatever name the remote
// backend actually accepts. The remote schema has drifted through renames,
// so for an unresolved table the candidates are tried in order: the name
// that worked last, the logical name itself, configured aliases, and a
// naive singularization. The first name that does not come back
// table-not-found is cached for the process lifetime.
type TableResolver struct {
	mu       sync.RWMutex
	resolved map[string]string
	aliases  map[string][]string
}

// NewTableResolver builds a resolver seeded with per-table alias
// configuration (logical name -> historical remote names).
func NewTableResolver(aliases map[string][]string) *TableResolver {
	return &TableResolver{
		resolved: make(map[string]string),
		aliases:  aliases,
	}
}

// Candidates returns the remote names to try for a logical table, most
// likely first, deduplicated.
func (r *TableResolver) Candidates(logical string) []string {
	r.mu.RLock()
	cached, ok := r.resolved[logical]
	r.mu.RUnlock()

	var candidates []string
	if ok {
		candidates = append(candidates, cached)
	}
	candidates = append(candidates, logical)
	candidates = append(candidates, r.aliases[logical]...)
	if singular := singularize(logical); singular != logical {
		candidates = append(candidates, singular)
	}

	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Remember caches the remote name that worked for a logical table.
func (r *TableResolver) Remember(logical, actual string) {
	r.mu.Lock()
	r.resolved[logical] = actual
	r.mu.Unlock()
}

// Resolved returns the cached remote name for a logical table, if any.
func (r *TableResolver) Resolved(logical string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	actual, ok := r.resolved[logical]
	return actual, ok
}

// singularize applies the naming-drift heuristics observed in the remote
// schema: "ies" -> "y", trailing "ses" -> "s", otherwise strip a trailing
// "s". It is a guess of last resort, not an English inflector.
func singularize(name string) string {
	switch {
	case strings.HasSuffix(name, "ies"):
		return strings.TrimSuffix(name, "ies") + "y"
	case strings.HasSuffix(name, "ses"):
		return strings.TrimSuffix(name, "es")
	case strings.HasSuffix(name, "s"):
		return strings.TrimSuffix(name, "s")
	default:
		return name
	}
}
