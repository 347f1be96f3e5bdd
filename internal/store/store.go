package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/galamseywatch/fieldkit/internal/model"
)

var (
	ErrDuplicate = errors.New("duplicate")
	ErrNotFound  = errors.New("not found")
	// ErrUnavailable means the persistence layer could not be opened at all.
	// Callers must not treat it as an empty store.
	ErrUnavailable = errors.New("store unavailable")
	// ErrStateConflict means a submission was not in the state the transition
	// requires (e.g. a second pass trying to claim a syncing submission).
	ErrStateConflict = errors.New("state conflict")
)

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create db dir: %v", ErrUnavailable, err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrUnavailable, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("%w: ping sqlite: %v", ErrUnavailable, err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("%w: chmod db path: %v", ErrUnavailable, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// ---- pending submissions ----

// AddPendingSubmission inserts the submission and its evidence atomically.
// Fails with ErrDuplicate if the id already exists.
func (s *Store) AddPendingSubmission(ctx context.Context, sub model.PendingSubmission) error {
	if sub.ID == "" {
		return fmt.Errorf("submission id is required")
	}
	if sub.State == "" {
		sub.State = model.SubmissionPending
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	payloadJSON, err := json.Marshal(sub.Payload)
	if err != nil {
		return fmt.Errorf("encode submission payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add submission tx: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO pending_submissions(submission_id, payload_json, created_at, attempts, last_attempt_at, state, last_error)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, sub.ID, string(payloadJSON), ts(sub.CreatedAt), sub.Attempts, nullableTS(sub.LastAttemptAt), string(sub.State), sub.LastError)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		if isUniqueErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	for i, media := range sub.Evidence {
		if err := insertMedia(ctx, tx, &sub.ID, nil, i, media); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add submission: %w", err)
	}
	return nil
}

func (s *Store) GetPendingSubmission(ctx context.Context, id string) (model.PendingSubmission, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT submission_id, payload_json, created_at, attempts, last_attempt_at, state, last_error
FROM pending_submissions
WHERE submission_id = ?
`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		return model.PendingSubmission{}, err
	}
	sub.Evidence, err = s.listMedia(ctx, `submission_id`, id)
	if err != nil {
		return model.PendingSubmission{}, err
	}
	return sub, nil
}

func (s *Store) ListPendingSubmissions(ctx context.Context) ([]model.PendingSubmission, error) {
	return s.listSubmissions(ctx, ``, nil)
}

// ListSubmissionsByState supports the state index lookup of the pending
// collection without loading evidence for the other states.
func (s *Store) ListSubmissionsByState(ctx context.Context, state model.SubmissionState) ([]model.PendingSubmission, error) {
	return s.listSubmissions(ctx, `WHERE state = ?`, []any{string(state)})
}

// SnapshotSyncable returns the immutable snapshot a sync pass works from:
// pending-state submissions under the attempt cap, in insertion order.
func (s *Store) SnapshotSyncable(ctx context.Context, maxAttempts int) ([]model.PendingSubmission, error) {
	return s.listSubmissions(ctx, `WHERE state = ? AND attempts < ?`, []any{string(model.SubmissionPending), maxAttempts})
}

func (s *Store) listSubmissions(ctx context.Context, where string, args []any) ([]model.PendingSubmission, error) {
	query := `
SELECT submission_id, payload_json, created_at, attempts, last_attempt_at, state, last_error
FROM pending_submissions
` + where + `
ORDER BY created_at ASC, submission_id ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	out := make([]model.PendingSubmission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter submissions: %w", err)
	}
	for i := range out {
		out[i].Evidence, err = s.listMedia(ctx, `submission_id`, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MarkSubmissionSyncing claims a submission for delivery: pending -> syncing,
// attempts incremented, last_attempt_at stamped. Claiming a submission that is
// not pending fails with ErrStateConflict, which is what keeps a submission
// from being picked up by two passes.
func (s *Store) MarkSubmissionSyncing(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE pending_submissions
SET state = ?, attempts = attempts + 1, last_attempt_at = ?
WHERE submission_id = ? AND state = ?
`, string(model.SubmissionSyncing), ts(at), id, string(model.SubmissionPending))
	if err != nil {
		return fmt.Errorf("mark submission syncing: %w", err)
	}
	return oneRowOr(res, s.submissionExists(ctx, id))
}

// RevertSubmissionPending returns a failed attempt to the retry pool.
func (s *Store) RevertSubmissionPending(ctx context.Context, id, lastError string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE pending_submissions
SET state = ?, last_error = ?
WHERE submission_id = ? AND state = ?
`, string(model.SubmissionPending), lastError, id, string(model.SubmissionSyncing))
	if err != nil {
		return fmt.Errorf("revert submission pending: %w", err)
	}
	return oneRowOr(res, s.submissionExists(ctx, id))
}

// MarkSubmissionFailed freezes a submission at the attempt cap. Failed
// submissions are retained and never auto-retried.
func (s *Store) MarkSubmissionFailed(ctx context.Context, id, lastError string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE pending_submissions
SET state = ?, last_error = ?
WHERE submission_id = ? AND state = ?
`, string(model.SubmissionFailed), lastError, id, string(model.SubmissionSyncing))
	if err != nil {
		return fmt.Errorf("mark submission failed: %w", err)
	}
	return oneRowOr(res, s.submissionExists(ctx, id))
}

// ResetFailedSubmission is the explicit user-initiated path back from failed:
// state returns to pending and the attempt counter restarts.
func (s *Store) ResetFailedSubmission(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE pending_submissions
SET state = ?, attempts = 0, last_error = ''
WHERE submission_id = ? AND state = ?
`, string(model.SubmissionPending), id, string(model.SubmissionFailed))
	if err != nil {
		return fmt.Errorf("reset failed submission: %w", err)
	}
	return oneRowOr(res, s.submissionExists(ctx, id))
}

func (s *Store) DeletePendingSubmission(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_submissions WHERE submission_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected delete submission: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPendingSubmissions is the visible pending counter: pending-state only.
func (s *Store) CountPendingSubmissions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_submissions WHERE state = ?`, string(model.SubmissionPending)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending submissions: %w", err)
	}
	return n, nil
}

func (s *Store) submissionExists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM pending_submissions WHERE submission_id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check submission: %w", err)
	}
	return ErrStateConflict
}

func scanSubmission(scanner interface{ Scan(dest ...any) error }) (model.PendingSubmission, error) {
	var (
		sub           model.PendingSubmission
		payloadJSON   string
		createdAt     string
		lastAttemptAt sql.NullString
		state         string
	)
	if err := scanner.Scan(&sub.ID, &payloadJSON, &createdAt, &sub.Attempts, &lastAttemptAt, &state, &sub.LastError); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PendingSubmission{}, ErrNotFound
		}
		return model.PendingSubmission{}, fmt.Errorf("scan submission: %w", err)
	}
	if err := json.Unmarshal([]byte(payloadJSON), &sub.Payload); err != nil {
		return model.PendingSubmission{}, fmt.Errorf("decode submission payload: %w", err)
	}
	var err error
	sub.CreatedAt, err = parseTS(createdAt)
	if err != nil {
		return model.PendingSubmission{}, fmt.Errorf("parse submission created_at: %w", err)
	}
	if lastAttemptAt.Valid {
		v, err := parseTS(lastAttemptAt.String)
		if err != nil {
			return model.PendingSubmission{}, fmt.Errorf("parse submission last_attempt_at: %w", err)
		}
		sub.LastAttemptAt = &v
	}
	sub.State = model.SubmissionState(state)
	return sub, nil
}

// ---- evidence media ----

func insertMedia(ctx context.Context, tx *sql.Tx, submissionID, draftID *string, position int, media model.StoredMedia) error {
	if media.ID == "" {
		return fmt.Errorf("media id is required")
	}
	if media.CapturedAt.IsZero() {
		media.CapturedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
INSERT INTO evidence_media(media_id, submission_id, draft_id, position, name, mime_type, size_bytes, bytes, thumbnail_bytes, captured_at, latitude, longitude, accuracy)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, media.ID, nullableStr(submissionID), nullableStr(draftID), position, media.Name, media.MimeType, media.SizeBytes,
		media.Bytes, media.ThumbnailBytes, ts(media.CapturedAt),
		nullableF64(media.Latitude), nullableF64(media.Longitude), nullableF64(media.Accuracy))
	if err != nil {
		if isUniqueErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

func (s *Store) listMedia(ctx context.Context, ownerCol, ownerID string) ([]model.StoredMedia, error) {
	query := fmt.Sprintf(`
SELECT media_id, name, mime_type, size_bytes, bytes, thumbnail_bytes, captured_at, latitude, longitude, accuracy
FROM evidence_media
WHERE %s = ?
ORDER BY position ASC`, ownerCol)
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	out := make([]model.StoredMedia, 0)
	for rows.Next() {
		var (
			media      model.StoredMedia
			capturedAt string
			lat, lng   sql.NullFloat64
			accuracy   sql.NullFloat64
		)
		if err := rows.Scan(&media.ID, &media.Name, &media.MimeType, &media.SizeBytes, &media.Bytes, &media.ThumbnailBytes, &capturedAt, &lat, &lng, &accuracy); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		media.CapturedAt, err = parseTS(capturedAt)
		if err != nil {
			return nil, fmt.Errorf("parse media captured_at: %w", err)
		}
		if lat.Valid {
			v := lat.Float64
			media.Latitude = &v
		}
		if lng.Valid {
			v := lng.Float64
			media.Longitude = &v
		}
		if accuracy.Valid {
			v := accuracy.Float64
			media.Accuracy = &v
		}
		out = append(out, media)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter media: %w", err)
	}
	return out, nil
}

// ---- draft reports ----

// PutDraft upserts the draft and replaces its evidence set atomically.
func (s *Store) PutDraft(ctx context.Context, draft model.DraftReport) error {
	if draft.ID == "" {
		return fmt.Errorf("draft id is required")
	}
	if draft.LastModifiedAt.IsZero() {
		draft.LastModifiedAt = time.Now().UTC()
	}
	payloadJSON, err := json.Marshal(draft.Payload)
	if err != nil {
		return fmt.Errorf("encode draft payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put draft tx: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO draft_reports(draft_id, payload_json, last_modified_at)
VALUES (?, ?, ?)
ON CONFLICT(draft_id) DO UPDATE SET
	payload_json=excluded.payload_json,
	last_modified_at=excluded.last_modified_at
`, draft.ID, string(payloadJSON), ts(draft.LastModifiedAt))
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("upsert draft: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM evidence_media WHERE draft_id = ?`, draft.ID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear draft media: %w", err)
	}
	for i, media := range draft.Evidence {
		if err := insertMedia(ctx, tx, nil, &draft.ID, i, media); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put draft: %w", err)
	}
	return nil
}

func (s *Store) GetDraft(ctx context.Context, id string) (model.DraftReport, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT draft_id, payload_json, last_modified_at
FROM draft_reports
WHERE draft_id = ?
`, id)
	draft, err := scanDraft(row)
	if err != nil {
		return model.DraftReport{}, err
	}
	draft.Evidence, err = s.listMedia(ctx, `draft_id`, id)
	if err != nil {
		return model.DraftReport{}, err
	}
	return draft, nil
}

func (s *Store) ListDrafts(ctx context.Context) ([]model.DraftReport, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT draft_id, payload_json, last_modified_at
FROM draft_reports
ORDER BY last_modified_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	out := make([]model.DraftReport, 0)
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, draft)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter drafts: %w", err)
	}
	for i := range out {
		out[i].Evidence, err = s.listMedia(ctx, `draft_id`, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM draft_reports WHERE draft_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected delete draft: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDraft(scanner interface{ Scan(dest ...any) error }) (model.DraftReport, error) {
	var (
		draft       model.DraftReport
		payloadJSON string
		modifiedAt  string
	)
	if err := scanner.Scan(&draft.ID, &payloadJSON, &modifiedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.DraftReport{}, ErrNotFound
		}
		return model.DraftReport{}, fmt.Errorf("scan draft: %w", err)
	}
	if err := json.Unmarshal([]byte(payloadJSON), &draft.Payload); err != nil {
		return model.DraftReport{}, fmt.Errorf("decode draft payload: %w", err)
	}
	var err error
	draft.LastModifiedAt, err = parseTS(modifiedAt)
	if err != nil {
		return model.DraftReport{}, fmt.Errorf("parse draft last_modified_at: %w", err)
	}
	return draft, nil
}

// ---- sync queue ----

func (s *Store) AddSyncQueueItem(ctx context.Context, item model.SyncQueueItem) error {
	if item.ID == "" {
		return fmt.Errorf("queue id is required")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sync_queue(queue_id, kind, action, data, created_at, priority)
VALUES (?, ?, ?, ?, ?, ?)
`, item.ID, string(item.Kind), string(item.Action), item.Data, ts(item.CreatedAt), item.Priority)
	if err != nil {
		if isUniqueErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert queue item: %w", err)
	}
	return nil
}

// ListSyncQueue returns items in consumption order: descending priority,
// FIFO within a priority band.
func (s *Store) ListSyncQueue(ctx context.Context) ([]model.SyncQueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT queue_id, kind, action, data, created_at, priority
FROM sync_queue
ORDER BY priority DESC, created_at ASC, queue_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list sync queue: %w", err)
	}
	defer rows.Close()

	out := make([]model.SyncQueueItem, 0)
	for rows.Next() {
		var (
			item         model.SyncQueueItem
			kind, action string
			createdAt    string
		)
		if err := rows.Scan(&item.ID, &kind, &action, &item.Data, &createdAt, &item.Priority); err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		item.Kind = model.QueueKind(kind)
		item.Action = model.QueueAction(action)
		item.CreatedAt, err = parseTS(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse queue created_at: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter sync queue: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteSyncQueueItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE queue_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete queue item: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected delete queue item: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ClearSyncQueue(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue`); err != nil {
		return fmt.Errorf("clear sync queue: %w", err)
	}
	return nil
}

// ---- cached read models ----

func (s *Store) ReplaceCachedIncidents(ctx context.Context, incidents []model.CachedIncident) error {
	return replaceCachedDocs(ctx, s.db, `cached_incidents`, `incident_id`, len(incidents), func(i int) (int64, any) {
		return incidents[i].ID, incidents[i]
	})
}

func (s *Store) CachedIncidents(ctx context.Context) ([]model.CachedIncident, error) {
	return listCachedDocs[model.CachedIncident](ctx, s.db, `cached_incidents`, `incident_id`)
}

func (s *Store) ReplaceCachedWaterReadings(ctx context.Context, readings []model.CachedWaterReading) error {
	return replaceCachedDocs(ctx, s.db, `cached_water`, `reading_id`, len(readings), func(i int) (int64, any) {
		return readings[i].ID, readings[i]
	})
}

func (s *Store) CachedWaterReadings(ctx context.Context) ([]model.CachedWaterReading, error) {
	return listCachedDocs[model.CachedWaterReading](ctx, s.db, `cached_water`, `reading_id`)
}

func (s *Store) ReplaceCachedMiningSites(ctx context.Context, sites []model.CachedMiningSite) error {
	return replaceCachedDocs(ctx, s.db, `cached_sites`, `site_id`, len(sites), func(i int) (int64, any) {
		return sites[i].ID, sites[i]
	})
}

func (s *Store) CachedMiningSites(ctx context.Context) ([]model.CachedMiningSite, error) {
	return listCachedDocs[model.CachedMiningSite](ctx, s.db, `cached_sites`, `site_id`)
}

func replaceCachedDocs(ctx context.Context, db *sql.DB, table, idCol string, n int, rowAt func(int) (int64, any)) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace %s tx: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear %s: %w", table, err)
	}
	for i := 0; i < n; i++ {
		id, doc := rowAt(i)
		docJSON, err := json.Marshal(doc)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("encode %s doc: %w", table, err)
		}
		query := fmt.Sprintf(`INSERT INTO %s(%s, doc) VALUES (?, ?) ON CONFLICT(%s) DO UPDATE SET doc=excluded.doc`, table, idCol, idCol)
		if _, err := tx.ExecContext(ctx, query, id, string(docJSON)); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert %s doc: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace %s: %w", table, err)
	}
	return nil
}

func listCachedDocs[T any](ctx context.Context, db *sql.DB, table, idCol string) ([]T, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT doc FROM %s ORDER BY %s ASC`, table, idCol))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var docJSON string
		if err := rows.Scan(&docJSON); err != nil {
			return nil, fmt.Errorf("scan %s doc: %w", table, err)
		}
		var doc T
		if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
			return nil, fmt.Errorf("decode %s doc: %w", table, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter %s: %w", table, err)
	}
	return out, nil
}

// ---- user preferences ----

func (s *Store) SetUserPref(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("pref key is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO user_prefs(pref_key, pref_value, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(pref_key) DO UPDATE SET
	pref_value=excluded.pref_value,
	updated_at=excluded.updated_at
`, key, value, ts(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("set user pref: %w", err)
	}
	return nil
}

func (s *Store) GetUserPref(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT pref_value FROM user_prefs WHERE pref_key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get user pref: %w", err)
	}
	return value, nil
}

// ClearAll wipes every collection while leaving the schema intact.
func (s *Store) ClearAll(ctx context.Context) error {
	tables := []string{"evidence_media", "pending_submissions", "draft_reports", "sync_queue", "cached_incidents", "cached_water", "cached_sites", "user_prefs"}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear tx: %w", err)
	}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}

// ---- helpers ----

func oneRowOr(res sql.Result, fallback error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fallback
	}
	return nil
}

func nullableTS(v *time.Time) any {
	if v == nil {
		return nil
	}
	return ts(*v)
}

func nullableStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableF64(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
