package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CacheStore is the interceptor's response cache. It lives in its own database
// file: the interception layer runs in a separate process and never opens the
// foreground store.
type CacheStore struct {
	db *sql.DB
}

// CachedResponse is one content-addressed entry keyed by request identity.
type CachedResponse struct {
	Key         string
	Generation  string
	Status      int
	ContentType string
	Body        []byte
	StoredAt    time.Time
}

func OpenCache(ctx context.Context, path string) (*CacheStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create cache dir: %v", ErrUnavailable, err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open cache sqlite: %v", ErrUnavailable, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("%w: ping cache sqlite: %v", ErrUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS response_cache (
	cache_key TEXT PRIMARY KEY,
	generation TEXT NOT NULL,
	status INTEGER NOT NULL,
	content_type TEXT NOT NULL,
	body BLOB NOT NULL,
	stored_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS response_cache_generation
ON response_cache(generation);
`); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("%w: create response_cache: %v", ErrUnavailable, err)
	}
	return &CacheStore{db: db}, nil
}

func (c *CacheStore) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *CacheStore) Put(ctx context.Context, entry CachedResponse) error {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, `
INSERT INTO response_cache(cache_key, generation, status, content_type, body, stored_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(cache_key) DO UPDATE SET
	generation=excluded.generation,
	status=excluded.status,
	content_type=excluded.content_type,
	body=excluded.body,
	stored_at=excluded.stored_at
`, entry.Key, entry.Generation, entry.Status, entry.ContentType, entry.Body, ts(entry.StoredAt))
	if err != nil {
		return fmt.Errorf("put cached response: %w", err)
	}
	return nil
}

func (c *CacheStore) Get(ctx context.Context, key string) (CachedResponse, error) {
	row := c.db.QueryRowContext(ctx, `
SELECT cache_key, generation, status, content_type, body, stored_at
FROM response_cache
WHERE cache_key = ?
`, key)
	var (
		entry    CachedResponse
		storedAt string
	)
	if err := row.Scan(&entry.Key, &entry.Generation, &entry.Status, &entry.ContentType, &entry.Body, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CachedResponse{}, ErrNotFound
		}
		return CachedResponse{}, fmt.Errorf("scan cached response: %w", err)
	}
	var err error
	entry.StoredAt, err = parseTS(storedAt)
	if err != nil {
		return CachedResponse{}, fmt.Errorf("parse cached stored_at: %w", err)
	}
	return entry, nil
}

func (c *CacheStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM response_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cached responses: %w", err)
	}
	return n, nil
}

// SweepGenerations deletes every entry not belonging to the given generation.
// One-shot generational eviction, no per-item TTL.
func (c *CacheStore) SweepGenerations(ctx context.Context, keep string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM response_cache WHERE generation != ?`, keep)
	if err != nil {
		return 0, fmt.Errorf("sweep cache generations: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected sweep: %w", err)
	}
	return rows, nil
}
