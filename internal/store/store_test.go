package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/galamseywatch/fieldkit/internal/model"
)

func newTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	st, err := Open(ctx, filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	if err := ApplyMigrations(ctx, st.DB()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return st, ctx
}

func submissionForTest(id string, createdAt time.Time) model.PendingSubmission {
	return model.PendingSubmission{
		ID: id,
		Payload: model.IncidentPayload{
			Title:        "excavators at " + id,
			Description:  "active digging near the river",
			Latitude:     6.2,
			Longitude:    -1.66,
			Region:       "Ashanti",
			Severity:     model.SeverityHigh,
			IncidentType: model.IncidentIllegalMining,
			ReportedBy:   "observer",
		},
		CreatedAt: createdAt,
		State:     model.SubmissionPending,
	}
}

func TestOpenUnavailableWrapsError(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	// The parent path component is a regular file, so the db dir cannot exist.
	_, err := Open(ctx, filepath.Join(blocker, "nested.db"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestAddAndGetPendingSubmissionRoundTrip(t *testing.T) {
	st, ctx := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	sub := submissionForTest("sub-1", now)
	acc := 12.5
	sub.Payload.LocationAccuracy = &acc
	sub.Evidence = []model.StoredMedia{{
		ID:         "m-1",
		Name:       "site.jpg",
		MimeType:   "image/jpeg",
		SizeBytes:  3,
		Bytes:      []byte{0x01, 0x02, 0x03},
		CapturedAt: now,
	}}
	if err := st.AddPendingSubmission(ctx, sub); err != nil {
		t.Fatalf("add submission: %v", err)
	}

	got, err := st.GetPendingSubmission(ctx, "sub-1")
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if got.Payload.Title != sub.Payload.Title {
		t.Fatalf("title mismatch: %q", got.Payload.Title)
	}
	if got.Payload.LocationAccuracy == nil || *got.Payload.LocationAccuracy != acc {
		t.Fatalf("accuracy not preserved: %v", got.Payload.LocationAccuracy)
	}
	if got.State != model.SubmissionPending || got.Attempts != 0 {
		t.Fatalf("unexpected state=%s attempts=%d", got.State, got.Attempts)
	}
	if len(got.Evidence) != 1 {
		t.Fatalf("expected 1 evidence item, got %d", len(got.Evidence))
	}
	ev := got.Evidence[0]
	if ev.MimeType != "image/jpeg" || string(ev.Bytes) != string(sub.Evidence[0].Bytes) {
		t.Fatalf("evidence not preserved byte for byte")
	}

	if err := st.AddPendingSubmission(ctx, sub); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestSnapshotSyncableOrderAndCap(t *testing.T) {
	st, ctx := newTestStore(t)
	base := time.Now().UTC().Truncate(time.Millisecond)

	// Insert out of creation order to prove ordering comes from created_at.
	for i, id := range []string{"c", "a", "b"} {
		offsets := map[string]time.Duration{"a": 0, "b": time.Second, "c": 2 * time.Second}
		sub := submissionForTest(id, base.Add(offsets[id]))
		if err := st.AddPendingSubmission(ctx, sub); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	capped := submissionForTest("d", base.Add(3*time.Second))
	capped.Attempts = 3
	if err := st.AddPendingSubmission(ctx, capped); err != nil {
		t.Fatalf("add capped: %v", err)
	}

	snap, err := st.SnapshotSyncable(ctx, 3)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 3 {
		t.Fatalf("expected 3 syncable, got %d", len(snap))
	}
	for i, want := range []string{"a", "b", "c"} {
		if snap[i].ID != want {
			t.Fatalf("order[%d] = %s, want %s", i, snap[i].ID, want)
		}
	}
}

func TestSubmissionStateMachine(t *testing.T) {
	st, ctx := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := st.AddPendingSubmission(ctx, submissionForTest("s1", now)); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := st.MarkSubmissionSyncing(ctx, "s1", now); err != nil {
		t.Fatalf("mark syncing: %v", err)
	}
	// Claiming twice must fail: the first pass owns it.
	if err := st.MarkSubmissionSyncing(ctx, "s1", now); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict on double claim, got %v", err)
	}
	if err := st.MarkSubmissionSyncing(ctx, "missing", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	got, err := st.GetPendingSubmission(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != model.SubmissionSyncing || got.Attempts != 1 || got.LastAttemptAt == nil {
		t.Fatalf("claim did not stamp: state=%s attempts=%d", got.State, got.Attempts)
	}

	if err := st.RevertSubmissionPending(ctx, "s1", "http 503"); err != nil {
		t.Fatalf("revert: %v", err)
	}
	got, _ = st.GetPendingSubmission(ctx, "s1")
	if got.State != model.SubmissionPending || got.LastError != "http 503" {
		t.Fatalf("revert mismatch: state=%s err=%q", got.State, got.LastError)
	}
	// Attempts never decrease on revert.
	if got.Attempts != 1 {
		t.Fatalf("attempts reset on revert: %d", got.Attempts)
	}

	if err := st.MarkSubmissionSyncing(ctx, "s1", now); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if err := st.MarkSubmissionFailed(ctx, "s1", "http 500"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ = st.GetPendingSubmission(ctx, "s1")
	if got.State != model.SubmissionFailed || got.Attempts != 2 {
		t.Fatalf("fail mismatch: state=%s attempts=%d", got.State, got.Attempts)
	}

	// Failed submissions are invisible to the snapshot and the counter.
	snap, err := st.SnapshotSyncable(ctx, 3)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 0 {
		t.Fatalf("failed submission leaked into snapshot")
	}
	n, err := st.CountPendingSubmissions(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("failed submission counted as pending: %d", n)
	}

	if err := st.ResetFailedSubmission(ctx, "s1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, _ = st.GetPendingSubmission(ctx, "s1")
	if got.State != model.SubmissionPending || got.Attempts != 0 || got.LastError != "" {
		t.Fatalf("reset mismatch: state=%s attempts=%d err=%q", got.State, got.Attempts, got.LastError)
	}
	// Reset only applies to failed submissions.
	if err := st.ResetFailedSubmission(ctx, "s1"); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict resetting a pending submission, got %v", err)
	}
}

func TestDeletePendingSubmissionCascadesEvidence(t *testing.T) {
	st, ctx := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	sub := submissionForTest("s1", now)
	sub.Evidence = []model.StoredMedia{{ID: "m1", Name: "a.jpg", MimeType: "image/jpeg", SizeBytes: 1, Bytes: []byte{0xFF}, CapturedAt: now}}
	if err := st.AddPendingSubmission(ctx, sub); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := st.DeletePendingSubmission(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.DeletePendingSubmission(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	var n int
	if err := st.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM evidence_media`).Scan(&n); err != nil {
		t.Fatalf("count media: %v", err)
	}
	if n != 0 {
		t.Fatalf("evidence not cascaded: %d rows remain", n)
	}
}

func TestDraftUpsertReplacesEvidence(t *testing.T) {
	st, ctx := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	draft := model.DraftReport{
		ID:             "d1",
		Payload:        model.IncidentPayload{Title: "first pass"},
		Evidence:       []model.StoredMedia{{ID: "m1", Name: "a.jpg", MimeType: "image/jpeg", SizeBytes: 1, Bytes: []byte{0x01}, CapturedAt: now}},
		LastModifiedAt: now,
	}
	if err := st.PutDraft(ctx, draft); err != nil {
		t.Fatalf("put draft: %v", err)
	}

	draft.Payload.Title = "second pass"
	draft.Evidence = []model.StoredMedia{
		{ID: "m2", Name: "b.jpg", MimeType: "image/jpeg", SizeBytes: 1, Bytes: []byte{0x02}, CapturedAt: now},
		{ID: "m3", Name: "c.jpg", MimeType: "image/jpeg", SizeBytes: 1, Bytes: []byte{0x03}, CapturedAt: now},
	}
	draft.LastModifiedAt = now.Add(time.Second)
	if err := st.PutDraft(ctx, draft); err != nil {
		t.Fatalf("put draft again: %v", err)
	}

	got, err := st.GetDraft(ctx, "d1")
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if got.Payload.Title != "second pass" {
		t.Fatalf("draft not updated: %q", got.Payload.Title)
	}
	if len(got.Evidence) != 2 {
		t.Fatalf("expected replaced evidence set of 2, got %d", len(got.Evidence))
	}

	drafts, err := st.ListDrafts(ctx)
	if err != nil {
		t.Fatalf("list drafts: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("upsert created extra drafts: %d", len(drafts))
	}

	if err := st.DeleteDraft(ctx, "d1"); err != nil {
		t.Fatalf("delete draft: %v", err)
	}
	if _, err := st.GetDraft(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSyncQueueOrdering(t *testing.T) {
	st, ctx := newTestStore(t)
	base := time.Now().UTC().Truncate(time.Millisecond)

	items := []model.SyncQueueItem{
		{ID: "low-old", Kind: model.QueueKindIncident, Action: model.QueueActionCreate, Data: []byte(`{}`), CreatedAt: base, Priority: 0},
		{ID: "high", Kind: model.QueueKindUpdate, Action: model.QueueActionUpdate, Data: []byte(`{}`), CreatedAt: base.Add(time.Second), Priority: 5},
		{ID: "low-new", Kind: model.QueueKindEvidence, Action: model.QueueActionCreate, Data: []byte(`{}`), CreatedAt: base.Add(2 * time.Second), Priority: 0},
	}
	for _, item := range items {
		if err := st.AddSyncQueueItem(ctx, item); err != nil {
			t.Fatalf("add queue item %s: %v", item.ID, err)
		}
	}

	got, err := st.ListSyncQueue(ctx)
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	want := []string{"high", "low-old", "low-new"}
	if len(got) != len(want) {
		t.Fatalf("queue length %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("queue[%d] = %s, want %s", i, got[i].ID, want[i])
		}
	}

	if err := st.DeleteSyncQueueItem(ctx, "high"); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	if err := st.ClearSyncQueue(ctx); err != nil {
		t.Fatalf("clear queue: %v", err)
	}
	got, err = st.ListSyncQueue(ctx)
	if err != nil {
		t.Fatalf("list after clear: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("queue not cleared: %d", len(got))
	}
}

func TestCachedReadModelsReplaceWholesale(t *testing.T) {
	st, ctx := newTestStore(t)

	first := []model.CachedIncident{
		{ID: 1, Title: "one", Region: "Ashanti", Severity: model.SeverityLow, IncidentType: model.IncidentIllegalMining},
		{ID: 2, Title: "two", Region: "Western", Severity: model.SeverityHigh, IncidentType: model.IncidentWaterPollution},
	}
	if err := st.ReplaceCachedIncidents(ctx, first); err != nil {
		t.Fatalf("replace incidents: %v", err)
	}
	second := []model.CachedIncident{
		{ID: 3, Title: "three", Region: "Central", Severity: model.SeverityMedium, IncidentType: model.IncidentDeforestation},
	}
	if err := st.ReplaceCachedIncidents(ctx, second); err != nil {
		t.Fatalf("replace incidents again: %v", err)
	}

	got, err := st.CachedIncidents(ctx)
	if err != nil {
		t.Fatalf("cached incidents: %v", err)
	}
	if len(got) != 1 || got[0].ID != 3 || got[0].Title != "three" {
		t.Fatalf("replace was not wholesale: %+v", got)
	}

	ph := 5.8
	if err := st.ReplaceCachedWaterReadings(ctx, []model.CachedWaterReading{
		{ID: 10, WaterBodyName: "Pra River", Region: "Western", PHLevel: &ph, QualityStatus: "poor", MeasuredBy: "field team"},
	}); err != nil {
		t.Fatalf("replace water: %v", err)
	}
	water, err := st.CachedWaterReadings(ctx)
	if err != nil {
		t.Fatalf("cached water: %v", err)
	}
	if len(water) != 1 || water[0].PHLevel == nil || *water[0].PHLevel != ph {
		t.Fatalf("water reading not preserved: %+v", water)
	}

	if err := st.ReplaceCachedMiningSites(ctx, []model.CachedMiningSite{
		{ID: 20, Name: "Obuasi East", Region: "Ashanti", Status: "active"},
	}); err != nil {
		t.Fatalf("replace sites: %v", err)
	}
	sites, err := st.CachedMiningSites(ctx)
	if err != nil {
		t.Fatalf("cached sites: %v", err)
	}
	if len(sites) != 1 || sites[0].Name != "Obuasi East" {
		t.Fatalf("mining site not preserved: %+v", sites)
	}
}

func TestUserPrefsAndClearAll(t *testing.T) {
	st, ctx := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	if err := st.SetUserPref(ctx, "language", "tw"); err != nil {
		t.Fatalf("set pref: %v", err)
	}
	if err := st.SetUserPref(ctx, "language", "en"); err != nil {
		t.Fatalf("overwrite pref: %v", err)
	}
	v, err := st.GetUserPref(ctx, "language")
	if err != nil {
		t.Fatalf("get pref: %v", err)
	}
	if v != "en" {
		t.Fatalf("pref = %q, want en", v)
	}
	if _, err := st.GetUserPref(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := st.AddPendingSubmission(ctx, submissionForTest("s1", now)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := st.ClearAll(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	subs, err := st.ListPendingSubmissions(ctx)
	if err != nil {
		t.Fatalf("list after clear: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("submissions survived clear: %d", len(subs))
	}
	if _, err := st.GetUserPref(ctx, "language"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("prefs survived clear: %v", err)
	}
}
