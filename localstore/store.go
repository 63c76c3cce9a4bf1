// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

// Package localstore provides generic CRUD persistence for the planner's
// sync tables on top of an embedded SQLite database. It owns soft deletion,
// dirty tracking, and per-column type coercion; the sync engine drives it
// but never bypasses it.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a targeted row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownTable is returned for a table outside the sync set.
	ErrUnknownTable = errors.New("unknown sync table")
)

// identifierRe is the allowlist for column names interpolated into SQL
// (order-by and equality filters). Everything else is bound as a parameter.
var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// querier is implemented by both *sql.DB and *sql.Tx so Store methods run
// unchanged inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides CRUD over the sync tables.
type Store struct {
	db     *sql.DB
	q      querier
	info   *tableInfoProvider
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database at path, applies pending
// migrations, and returns a ready store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing database handle, applying pending migrations first.
func New(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db, q: db, info: newTableInfoProvider(), logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn against a store view bound to a single transaction. Any
// error (or panic unwinding) rolls the whole unit back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	txStore := &Store{db: s.db, q: tx, info: s.info, logger: s.logger}
	if err := fn(txStore); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// ListOptions narrow a List call. Where holds equality filters; OrderBy
// must be a plain identifier (validated, defaults to updated_at descending).
type ListOptions struct {
	Where          Record
	OrderBy        string
	Ascending      bool
	Limit          int
	IncludeDeleted bool
}

// List returns the user's records in a table matching the options.
func (s *Store) List(ctx context.Context, table, userID string, opts ListOptions) ([]Record, error) {
	spec, ok := SpecFor(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	conds := []string{"user_id = ?"}
	args := []any{userID}
	for column, value := range opts.Where {
		if !identifierRe.MatchString(column) {
			return nil, fmt.Errorf("invalid filter column %q", column)
		}
		encoded, err := writeValue(spec, column, value)
		if err != nil {
			return nil, err
		}
		conds = append(conds, column+" = ?")
		args = append(args, encoded)
	}
	if !opts.IncludeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}

	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = "updated_at"
	}
	if !identifierRe.MatchString(orderBy) {
		return nil, fmt.Errorf("invalid order-by column %q", orderBy)
	}
	dir := "DESC"
	if opts.Ascending {
		dir = "ASC"
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY %s %s",
		table, strings.Join(conds, " AND "), orderBy, dir)
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()
	return scanRecords(rows, spec)
}

// GetByID returns a single record or nil when absent. An empty userID skips
// the ownership filter (used only by engine internals).
func (s *Store) GetByID(ctx context.Context, table, id, userID string, includeDeleted bool) (Record, error) {
	spec, ok := SpecFor(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	conds := []string{"id = ?"}
	args := []any{id}
	if userID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, userID)
	}
	if !includeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT 1", table, strings.Join(conds, " AND "))
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s row: %w", table, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows, spec)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// GetByRemoteID looks a record up by the identifier the remote knows it by,
// falling back to the local id. Tombstoned rows are included so pull-side
// conflict checks can see them.
func (s *Store) GetByRemoteID(ctx context.Context, table, remoteID, userID string) (Record, error) {
	spec, ok := SpecFor(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	query := fmt.Sprintf(
		"SELECT * FROM %s WHERE user_id = ? AND (remote_id = ? OR id = ?) LIMIT 1", table)
	rows, err := s.q.QueryContext(ctx, query, userID, remoteID, remoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s row by remote id: %w", table, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows, spec)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// Create inserts a new record, assigning an id when missing and stamping the
// bookkeeping columns. The stored row is re-read and returned.
func (s *Store) Create(ctx context.Context, table string, data Record) (Record, error) {
	spec, ok := SpecFor(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	rec := data.Clone()
	if rec.UserID() == "" {
		return nil, fmt.Errorf("create %s: user_id is required", table)
	}

	id := rec.ID()
	if id == "" {
		id = uuid.New().String()
		rec["id"] = id
	}
	if stringValue(rec, "remote_id") == "" {
		rec["remote_id"] = id
	}
	now := timestamp()
	if stringValue(rec, "created_at") == "" {
		rec["created_at"] = now
	}
	rec["updated_at"] = now
	rec["deleted_at"] = nil
	rec["synced_at"] = nil
	rec["is_dirty"] = true

	if err := s.insert(ctx, table, spec, rec); err != nil {
		return nil, err
	}

	stored, err := s.GetByID(ctx, table, id, rec.UserID(), true)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("create %s: %w after insert", table, ErrNotFound)
	}
	return stored, nil
}

// Update applies an equality patch to one record, re-stamping updated_at and
// marking it dirty. A zero-field patch is a plain read.
func (s *Store) Update(ctx context.Context, table, id, userID string, patch Record) (Record, error) {
	spec, ok := SpecFor(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	if len(patch) == 0 {
		rec, err := s.GetByID(ctx, table, id, userID, true)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("update %s %s: %w", table, id, ErrNotFound)
		}
		return rec, nil
	}

	info, err := s.info.Get(ctx, s.q, table)
	if err != nil {
		return nil, err
	}

	sets := make([]string, 0, len(patch)+3)
	args := make([]any, 0, len(patch)+3)
	for column, value := range patch {
		if column == "id" || column == "user_id" || metaColumns[column] {
			continue
		}
		if !identifierRe.MatchString(column) || !info.HasColumn(column) {
			return nil, fmt.Errorf("update %s: unknown column %q", table, column)
		}
		encoded, err := writeValue(spec, column, value)
		if err != nil {
			return nil, err
		}
		sets = append(sets, column+" = ?")
		args = append(args, encoded)
	}
	sets = append(sets, "updated_at = ?", "is_dirty = 1", "synced_at = NULL")
	args = append(args, timestamp(), id, userID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND user_id = ?", table, strings.Join(sets, ", "))
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s %s: %w", table, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("update %s %s: %w", table, id, ErrNotFound)
	}

	return s.GetByID(ctx, table, id, userID, true)
}

// SoftDelete tombstones a record so the deletion itself can be synced.
func (s *Store) SoftDelete(ctx context.Context, table, id, userID string) error {
	if _, ok := SpecFor(table); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	now := timestamp()
	query := fmt.Sprintf(
		"UPDATE %s SET deleted_at = ?, updated_at = ?, is_dirty = 1, synced_at = NULL WHERE id = ? AND user_id = ?", table)
	res, err := s.q.ExecContext(ctx, query, now, now, id, userID)
	if err != nil {
		return fmt.Errorf("failed to soft-delete %s %s: %w", table, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("soft-delete %s %s: %w", table, id, ErrNotFound)
	}
	return nil
}

// HardDelete physically removes a row. Only the pull-phase pruning step and
// tombstone cleanup should call this.
func (s *Store) HardDelete(ctx context.Context, table, id, userID string) error {
	if _, ok := SpecFor(table); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", table)
	args := []any{id}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to hard-delete %s %s: %w", table, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("hard-delete %s %s: %w", table, id, ErrNotFound)
	}
	return nil
}

// DefaultPushLimit bounds one push batch when the caller does not say.
const DefaultPushLimit = 200

// DirtyRecords returns up to limit locally-modified rows, oldest first, so
// a bounded push batch drains in modification order.
func (s *Store) DirtyRecords(ctx context.Context, table, userID string, limit int) ([]Record, error) {
	spec, ok := SpecFor(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if limit <= 0 {
		limit = DefaultPushLimit
	}
	query := fmt.Sprintf(
		"SELECT * FROM %s WHERE user_id = ? AND is_dirty = 1 ORDER BY updated_at ASC LIMIT ?", table)
	rows, err := s.q.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dirty %s rows: %w", table, err)
	}
	defer rows.Close()
	return scanRecords(rows, spec)
}

// MarkSynced clears the dirty flag, stamps synced_at, and records a newly
// assigned remote id when the remote returned one.
func (s *Store) MarkSynced(ctx context.Context, table, id, remoteID string) error {
	if _, ok := SpecFor(table); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	var (
		query string
		args  []any
	)
	if remoteID != "" {
		query = fmt.Sprintf("UPDATE %s SET synced_at = ?, is_dirty = 0, remote_id = ? WHERE id = ?", table)
		args = []any{timestamp(), remoteID, id}
	} else {
		query = fmt.Sprintf("UPDATE %s SET synced_at = ?, is_dirty = 0 WHERE id = ?", table)
		args = []any{timestamp(), id}
	}
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark %s %s synced: %w", table, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read mark-synced result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("mark-synced %s %s: %w", table, id, ErrNotFound)
	}
	return nil
}

// UpsertRemote writes a remote-origin record verbatim, except it always
// lands clean: is_dirty false, synced_at now, created_at preserved from the
// existing row (or defaulted) when the remote omitted it.
func (s *Store) UpsertRemote(ctx context.Context, table string, rec Record) (Record, error) {
	spec, ok := SpecFor(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	row := rec.Clone()
	id := row.ID()
	if id == "" {
		return nil, fmt.Errorf("upsert %s: record has no id", table)
	}

	existing, err := s.GetByID(ctx, table, id, "", true)
	if err != nil {
		return nil, err
	}
	if stringValue(row, "created_at") == "" {
		if existing != nil {
			row["created_at"] = existing["created_at"]
		} else {
			row["created_at"] = timestamp()
		}
	}
	if stringValue(row, "remote_id") == "" {
		row["remote_id"] = id
	}
	row["is_dirty"] = false
	row["synced_at"] = timestamp()

	if err := s.replace(ctx, table, spec, row); err != nil {
		return nil, err
	}
	stored, err := s.GetByID(ctx, table, id, "", true)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("upsert %s: %w after write", table, ErrNotFound)
	}
	return stored, nil
}

// PendingChanges counts dirty rows for the user across every sync table.
func (s *Store) PendingChanges(ctx context.Context, userID string) (int, error) {
	total := 0
	for _, table := range TableNames() {
		var count int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE user_id = ? AND is_dirty = 1", table)
		if err := s.q.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
			return 0, fmt.Errorf("failed to count dirty %s rows: %w", table, err)
		}
		total += count
	}
	return total, nil
}

// LastSyncAt returns the persisted last-sync timestamp for a user, or empty
// when the user has never completed a cycle.
func (s *Store) LastSyncAt(ctx context.Context, userID string) (string, error) {
	var ts string
	err := s.q.QueryRowContext(ctx,
		`SELECT last_sync_at FROM sync_state WHERE user_id = ?`, userID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read last sync time: %w", err)
	}
	return ts, nil
}

// SetLastSyncAt upserts the per-user last-sync timestamp.
func (s *Store) SetLastSyncAt(ctx context.Context, userID, ts string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sync_state (user_id, last_sync_at) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_sync_at = excluded.last_sync_at
	`, userID, ts)
	if err != nil {
		return fmt.Errorf("failed to persist last sync time: %w", err)
	}
	return nil
}

// insert writes a new row using only columns present in both the record and
// the live schema.
func (s *Store) insert(ctx context.Context, table string, spec *TableSpec, rec Record) error {
	columns, args, err := s.columnArgs(ctx, table, spec, rec)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders(len(columns)))
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// replace writes a full-row upsert keyed on id.
func (s *Store) replace(ctx context.Context, table string, spec *TableSpec, rec Record) error {
	columns, args, err := s.columnArgs(ctx, table, spec, rec)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders(len(columns)))
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	return nil
}

// columnArgs walks the live schema in declaration order and pairs each
// column present in the record with its encoded value. Record keys outside
// the schema are dropped, mirroring the drift tolerance of the push path.
func (s *Store) columnArgs(ctx context.Context, table string, spec *TableSpec, rec Record) ([]string, []any, error) {
	info, err := s.info.Get(ctx, s.q, table)
	if err != nil {
		return nil, nil, err
	}
	var columns []string
	var args []any
	for _, column := range info.Columns {
		value, ok := rec[column]
		if !ok {
			continue
		}
		encoded, err := writeValue(spec, column, value)
		if err != nil {
			return nil, nil, err
		}
		columns = append(columns, column)
		args = append(args, encoded)
	}
	if len(columns) == 0 {
		return nil, nil, fmt.Errorf("no writable columns for %s", table)
	}
	return columns, args, nil
}

// writeValue encodes a record value for storage, treating the engine's own
// dirty flag as a boolean regardless of table declarations.
func writeValue(spec *TableSpec, column string, value any) (any, error) {
	if column == "is_dirty" {
		return boolToInt(value), nil
	}
	return encodeValue(spec, column, value)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func scanRecords(rows *sql.Rows, spec *TableSpec) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	var records []Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec := make(Record, len(columns))
		for i, column := range columns {
			rec[column] = decodeValue(spec, column, values[i])
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return records, nil
}
