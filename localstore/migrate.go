// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"database/sql"
	"fmt"
)

// syncColumns is the engine-managed column block shared by every sync table.
const syncColumns = `
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	remote_id   TEXT,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	deleted_at  TEXT,
	synced_at   TEXT,
	is_dirty    INTEGER NOT NULL DEFAULT 1`

type migration struct {
	name       string
	statements []string
}

// migrations is append-only. Never edit an applied entry; add a new one.
var migrations = []migration{
	{
		name: "0001_sync_state",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS sync_state (
				user_id      TEXT PRIMARY KEY,
				last_sync_at TEXT NOT NULL
			)`,
		},
	},
	{
		name: "0002_subjects",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS subjects (` + syncColumns + `,
				name         TEXT,
				level        TEXT,
				color        TEXT,
				target_grade INTEGER,
				criteria     TEXT,
				is_hl        INTEGER NOT NULL DEFAULT 0,
				is_archived  INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_subjects_user ON subjects(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_subjects_dirty ON subjects(user_id, is_dirty)`,
		},
	},
	{
		name: "0003_tasks",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS tasks (` + syncColumns + `,
				subject_id   TEXT,
				title        TEXT,
				description  TEXT,
				due_at       TEXT,
				priority     INTEGER,
				subtasks     TEXT,
				tags         TEXT,
				is_completed INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_dirty ON tasks(user_id, is_dirty)`,
		},
	},
	{
		name: "0004_assessments",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS assessments (` + syncColumns + `,
				subject_id      TEXT,
				title           TEXT,
				kind            TEXT,
				due_at          TEXT,
				score           REAL,
				max_score       REAL,
				criteria_scores TEXT,
				is_submitted    INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_assessments_user ON assessments(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_assessments_dirty ON assessments(user_id, is_dirty)`,
		},
	},
	{
		name: "0005_notes",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS notes (` + syncColumns + `,
				subject_id  TEXT,
				title       TEXT,
				body        TEXT,
				attachments TEXT,
				is_pinned   INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_notes_user ON notes(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_notes_dirty ON notes(user_id, is_dirty)`,
		},
	},
	{
		name: "0006_study_sessions",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS study_sessions (` + syncColumns + `,
				subject_id   TEXT,
				started_at   TEXT,
				ended_at     TEXT,
				duration_min INTEGER,
				focus        TEXT,
				is_focused   INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_study_sessions_user ON study_sessions(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_study_sessions_dirty ON study_sessions(user_id, is_dirty)`,
		},
	},
}

// Migrate brings the database schema up to date. Applied migrations are
// recorded in an append-only table, unique by name, so re-running is a no-op.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS migrations (
		name       TEXT NOT NULL UNIQUE,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		var applied int
		err := db.QueryRow(`SELECT COUNT(*) FROM migrations WHERE name = ?`, m.name).Scan(&applied)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", m.name, err)
		}
		if applied > 0 {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", m.name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range m.statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO migrations (name, applied_at) VALUES (?, ?)`, m.name, timestamp()); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", m.name, err)
	}
	committed = true
	return nil
}
