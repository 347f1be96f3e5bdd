package store

import (
	"context"
	"database/sql"
	"fmt"
)

type Migration struct {
	Version int
	UpSQL   string
	DownSQL string
}

var migrations = []Migration{
	{
		Version: 1,
		UpSQL: `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_submissions (
	submission_id TEXT PRIMARY KEY,
	payload_json TEXT NOT NULL,
	created_at TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_attempt_at TEXT,
	state TEXT NOT NULL DEFAULT 'pending' CHECK(state IN ('pending','syncing','failed')),
	last_error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS pending_submissions_state
ON pending_submissions(state, created_at);

CREATE TABLE IF NOT EXISTS draft_reports (
	draft_id TEXT PRIMARY KEY,
	payload_json TEXT NOT NULL,
	last_modified_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS draft_reports_last_modified
ON draft_reports(last_modified_at DESC);

CREATE TABLE IF NOT EXISTS evidence_media (
	media_id TEXT PRIMARY KEY,
	submission_id TEXT,
	draft_id TEXT,
	position INTEGER NOT NULL DEFAULT 0,
	name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	bytes BLOB NOT NULL,
	thumbnail_bytes BLOB,
	captured_at TEXT NOT NULL,
	latitude REAL,
	longitude REAL,
	accuracy REAL,
	CHECK((submission_id IS NULL) != (draft_id IS NULL)),
	FOREIGN KEY(submission_id) REFERENCES pending_submissions(submission_id) ON DELETE CASCADE,
	FOREIGN KEY(draft_id) REFERENCES draft_reports(draft_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS evidence_media_submission
ON evidence_media(submission_id, position);

CREATE INDEX IF NOT EXISTS evidence_media_draft
ON evidence_media(draft_id, position);

CREATE TABLE IF NOT EXISTS sync_queue (
	queue_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL CHECK(kind IN ('incident','evidence','update')),
	action TEXT NOT NULL CHECK(action IN ('create','update','delete')),
	data BLOB,
	created_at TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS sync_queue_order
ON sync_queue(priority DESC, created_at ASC);

CREATE TABLE IF NOT EXISTS cached_incidents (
	incident_id INTEGER PRIMARY KEY,
	doc TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cached_water (
	reading_id INTEGER PRIMARY KEY,
	doc TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cached_sites (
	site_id INTEGER PRIMARY KEY,
	doc TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_prefs (
	pref_key TEXT PRIMARY KEY,
	pref_value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`,
		DownSQL: `
DROP TABLE IF EXISTS user_prefs;
DROP TABLE IF EXISTS cached_sites;
DROP TABLE IF EXISTS cached_water;
DROP TABLE IF EXISTS cached_incidents;
DROP TABLE IF EXISTS sync_queue;
DROP TABLE IF EXISTS evidence_media;
DROP TABLE IF EXISTS draft_reports;
DROP TABLE IF EXISTS pending_submissions;
DROP TABLE IF EXISTS schema_migrations;
`,
	},
}

// ApplyMigrations is idempotent: applied versions are skipped, missing ones
// run inside their own transaction.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func RollbackAll(ctx context.Context, db *sql.DB) error {
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin rollback tx %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("rollback migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit rollback %d: %w", m.Version, err)
		}
	}
	return nil
}
