// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// timestamp returns the current time in the ISO-8601 shape SQLite's
// strftime('%Y-%m-%dT%H:%M:%fZ','now') produces, so local and
// trigger-written values collate identically.
func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// encodeValue converts a record value into its storage representation for
// the given column: JSON columns become serialized TEXT, bool columns become
// 0/1 INTEGER, everything else passes through.
func encodeValue(spec *TableSpec, column string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch {
	case spec.isJSONColumn(column):
		if s, ok := value.(string); ok {
			return s, nil // already serialized
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize JSON column %s: %w", column, err)
		}
		return string(data), nil
	case spec.isBoolColumn(column):
		return boolToInt(value), nil
	default:
		return value, nil
	}
}

// decodeValue converts a scanned SQLite value back into its record
// representation for the given column.
func decodeValue(spec *TableSpec, column string, value any) any {
	if b, ok := value.([]byte); ok {
		value = string(b)
	}
	if value == nil {
		return nil
	}
	switch {
	case spec.isJSONColumn(column):
		s, ok := value.(string)
		if !ok || s == "" {
			return value
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return s // tolerate legacy non-JSON content
		}
		return decoded
	case spec.isBoolColumn(column) || column == "is_dirty":
		return truthy(value)
	default:
		return value
	}
}

// boolToInt normalizes the many shapes a boolean arrives in (bool, JSON
// float64, SQLite int64) into 0/1.
func boolToInt(value any) int {
	if truthy(value) {
		return 1
	}
	return 0
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v == "1" || v == "true"
	default:
		return false
	}
}

// stringValue extracts a non-null string column from a record, tolerating
// sql.NullString left over from scans.
func stringValue(rec Record, column string) string {
	switch v := rec[column].(type) {
	case string:
		return v
	case sql.NullString:
		if v.Valid {
			return v.String
		}
	}
	return ""
}
