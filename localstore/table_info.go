// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// tableInfo holds the live column layout of one table, read once from SQLite
// and cached for the process lifetime (the schema only changes via Migrate,
// which runs before any Store is handed out).
type tableInfo struct {
	Table   string
	Columns []string
	byName  map[string]bool
}

// HasColumn reports whether the table declares the named column.
func (t *tableInfo) HasColumn(name string) bool {
	return t.byName[strings.ToLower(name)]
}

// tableInfoProvider caches PRAGMA table_info results per table.
type tableInfoProvider struct {
	mu    sync.RWMutex
	cache map[string]*tableInfo
}

func newTableInfoProvider() *tableInfoProvider {
	return &tableInfoProvider{cache: make(map[string]*tableInfo)}
}

// Get retrieves column information for a table, using the cache when warm.
func (p *tableInfoProvider) Get(ctx context.Context, q querier, table string) (*tableInfo, error) {
	key := strings.ToLower(table)

	p.mu.RLock()
	if info, ok := p.cache[key]; ok {
		p.mu.RUnlock()
		return info, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if info, ok := p.cache[key]; ok {
		return info, nil
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", key))
	if err != nil {
		return nil, fmt.Errorf("failed to get table info for %s: %w", table, err)
	}
	defer rows.Close()

	info := &tableInfo{Table: key, byName: make(map[string]bool)}
	for rows.Next() {
		var cid, notNull, pk int
		var name, declaredType string
		var defaultValue any
		if err := rows.Scan(&cid, &name, &declaredType, &notNull, &defaultValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		info.Columns = append(info.Columns, name)
		info.byName[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate column info: %w", err)
	}
	if len(info.Columns) == 0 {
		return nil, fmt.Errorf("table %s does not exist", table)
	}

	p.cache[key] = info
	return info, nil
}
