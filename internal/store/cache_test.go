package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestCache(t *testing.T) (*CacheStore, context.Context) {
	t.Helper()
	ctx := context.Background()
	cs, err := OpenCache(ctx, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() {
		_ = cs.Close()
	})
	return cs, ctx
}

func TestCachePutGetOverwrite(t *testing.T) {
	cs, ctx := newTestCache(t)

	entry := CachedResponse{
		Key:         "GET /api/incidents",
		Generation:  "gen-1",
		Status:      200,
		ContentType: "application/json",
		Body:        []byte(`[{"id":1}]`),
		StoredAt:    time.Now().UTC(),
	}
	if err := cs.Put(ctx, entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := cs.Get(ctx, entry.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != 200 || got.ContentType != "application/json" || string(got.Body) != string(entry.Body) {
		t.Fatalf("entry mismatch: %+v", got)
	}

	entry.Body = []byte(`[{"id":1},{"id":2}]`)
	entry.Generation = "gen-2"
	if err := cs.Put(ctx, entry); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = cs.Get(ctx, entry.Key)
	if err != nil {
		t.Fatalf("get after overwrite: %v", err)
	}
	if string(got.Body) != string(entry.Body) || got.Generation != "gen-2" {
		t.Fatalf("overwrite not applied: %+v", got)
	}

	if _, err := cs.Get(ctx, "GET /missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCacheSweepGenerations(t *testing.T) {
	cs, ctx := newTestCache(t)
	now := time.Now().UTC()

	entries := []CachedResponse{
		{Key: "GET /a", Generation: "old", Status: 200, ContentType: "text/html", Body: []byte("a"), StoredAt: now},
		{Key: "GET /b", Generation: "old", Status: 200, ContentType: "text/html", Body: []byte("b"), StoredAt: now},
		{Key: "GET /c", Generation: "new", Status: 200, ContentType: "text/html", Body: []byte("c"), StoredAt: now},
	}
	for _, e := range entries {
		if err := cs.Put(ctx, e); err != nil {
			t.Fatalf("put %s: %v", e.Key, err)
		}
	}

	swept, err := cs.SweepGenerations(ctx, "new")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 2 {
		t.Fatalf("swept %d rows, want 2", swept)
	}
	n, err := cs.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count after sweep = %d, want 1", n)
	}
	if _, err := cs.Get(ctx, "GET /c"); err != nil {
		t.Fatalf("kept generation entry lost: %v", err)
	}
	if _, err := cs.Get(ctx, "GET /a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old generation entry survived sweep: %v", err)
	}
}
