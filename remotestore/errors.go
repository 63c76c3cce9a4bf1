// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package remotestore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// APIError is the structured error body the backend returns for a failed
// query, classified far enough to distinguish "schema not provisioned" and
// "schema drift" from real failures.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("remote error (status %d): %s", e.StatusCode, e.Message)
}

// Error codes the backend emits. 42P01/42703 are the SQL states for missing
// relation/column; the PGRST codes are the API layer's schema-cache variants
// of the same conditions.
const (
	codeUndefinedTable   = "42P01"
	codeUndefinedColumn  = "42703"
	codeTableNotInCache  = "PGRST205"
	codeColumnNotInCache = "PGRST204"
	codeRowNotFound      = "PGRST116"
)

// IsTableNotFound reports whether err means the remote table (under the name
// just tried) does not exist.
func IsTableNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case codeUndefinedTable, codeTableNotInCache:
		return true
	}
	return strings.Contains(apiErr.Message, "relation") &&
		strings.Contains(apiErr.Message, "does not exist")
}

// IsColumnNotFound reports whether err means the payload referenced a column
// the remote schema does not have.
func IsColumnNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case codeUndefinedColumn, codeColumnNotInCache:
		return true
	}
	return false
}

// IsRowNotFound reports whether err means the targeted row does not exist.
// Deletes treat this as success.
func IsRowNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == codeRowNotFound || apiErr.StatusCode == 404 && !IsTableNotFound(err)
}

// Message shapes for a missing column:
//
//	column "foo" of relation "tasks" does not exist
//	Could not find the 'foo' column of 'tasks' in the schema cache
var (
	sqlColumnRe   = regexp.MustCompile(`column "([A-Za-z0-9_]+)"`)
	cacheColumnRe = regexp.MustCompile(`'([A-Za-z0-9_]+)' column`)
)

// OffendingColumn extracts the column name from a column-not-found error,
// or empty when it cannot be determined.
func OffendingColumn(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return ""
	}
	if m := sqlColumnRe.FindStringSubmatch(apiErr.Message); m != nil {
		return m[1]
	}
	if m := cacheColumnRe.FindStringSubmatch(apiErr.Message); m != nil {
		return m[1]
	}
	return ""
}
