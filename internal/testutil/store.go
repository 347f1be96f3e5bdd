package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/galamseywatch/fieldkit/internal/model"
	"github.com/galamseywatch/fieldkit/internal/store"
)

func NewStore(t *testing.T) (*store.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "fieldkit-test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	if err := store.ApplyMigrations(ctx, st.DB()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return st, ctx
}

func NewCache(t *testing.T) (*store.CacheStore, context.Context) {
	t.Helper()
	ctx := context.Background()
	cs, err := store.OpenCache(ctx, filepath.Join(t.TempDir(), "fieldkit-cache-test.db"))
	if err != nil {
		t.Fatalf("open test cache: %v", err)
	}
	t.Cleanup(func() {
		_ = cs.Close()
	})
	return cs, ctx
}

// Payload builds a valid report payload with distinguishing title.
func Payload(title string) model.IncidentPayload {
	return model.IncidentPayload{
		Title:        title,
		Description:  "excavator activity near the river bank",
		Latitude:     6.2,
		Longitude:    -1.66,
		Region:       "Ashanti",
		District:     "Amansie West",
		Severity:     model.SeverityHigh,
		IncidentType: model.IncidentIllegalMining,
		ReportedBy:   "Field Observer",
	}
}

// SeedSubmission inserts one pending submission and returns it.
func SeedSubmission(t *testing.T, st *store.Store, ctx context.Context, id string) model.PendingSubmission {
	t.Helper()
	sub := model.PendingSubmission{
		ID:        id,
		Payload:   Payload("submission " + id),
		CreatedAt: time.Now().UTC(),
		State:     model.SubmissionPending,
	}
	if err := st.AddPendingSubmission(ctx, sub); err != nil {
		t.Fatalf("seed submission %s: %v", id, err)
	}
	return sub
}

// SeedSubmissionWithEvidence inserts a pending submission carrying one
// stored media item.
func SeedSubmissionWithEvidence(t *testing.T, st *store.Store, ctx context.Context, id string, media model.StoredMedia) model.PendingSubmission {
	t.Helper()
	sub := model.PendingSubmission{
		ID:        id,
		Payload:   Payload("submission " + id),
		Evidence:  []model.StoredMedia{media},
		CreatedAt: time.Now().UTC(),
		State:     model.SubmissionPending,
	}
	if err := st.AddPendingSubmission(ctx, sub); err != nil {
		t.Fatalf("seed submission %s: %v", id, err)
	}
	return sub
}
