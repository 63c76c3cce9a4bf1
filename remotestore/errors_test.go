// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package remotestore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableNotFoundClassification(t *testing.T) {
	require.True(t, IsTableNotFound(&APIError{Code: "42P01", Message: `relation "public.tasks" does not exist`}))
	require.True(t, IsTableNotFound(&APIError{Code: "PGRST205", Message: `Could not find the table 'public.tasks' in the schema cache`}))
	require.True(t, IsTableNotFound(&APIError{StatusCode: 404, Message: `relation "notes" does not exist`}))

	require.False(t, IsTableNotFound(&APIError{Code: "42703", Message: `column "x" does not exist`}))
	require.False(t, IsTableNotFound(errors.New("connection refused")))
}

func TestTableNotFoundSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("fetch tasks: %w", &APIError{Code: "PGRST205", Message: "missing"})
	require.True(t, IsTableNotFound(err))
}

func TestColumnNotFoundAndExtraction(t *testing.T) {
	sqlErr := &APIError{Code: "42703", Message: `column "local_notes" of relation "tasks" does not exist`}
	require.True(t, IsColumnNotFound(sqlErr))
	require.Equal(t, "local_notes", OffendingColumn(sqlErr))

	cacheErr := &APIError{Code: "PGRST204", Message: `Could not find the 'attachment_meta' column of 'notes' in the schema cache`}
	require.True(t, IsColumnNotFound(cacheErr))
	require.Equal(t, "attachment_meta", OffendingColumn(cacheErr))

	require.Equal(t, "", OffendingColumn(&APIError{Code: "42703", Message: "mystery failure"}))
	require.False(t, IsColumnNotFound(errors.New("timeout")))
}

func TestRowNotFoundClassification(t *testing.T) {
	require.True(t, IsRowNotFound(&APIError{Code: "PGRST116", Message: "JSON object requested, multiple (or no) rows returned"}))
	require.False(t, IsRowNotFound(&APIError{StatusCode: 404, Code: "PGRST205", Message: "Could not find the table 'x' in the schema cache"}))
	require.False(t, IsRowNotFound(&APIError{StatusCode: 500, Message: "boom"}))
}
