package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsMatchContract(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxSyncAttempts != 3 {
		t.Fatalf("max attempts %d", cfg.MaxSyncAttempts)
	}
	if cfg.SyncPacing != 500*time.Millisecond {
		t.Fatalf("pacing %s", cfg.SyncPacing)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Fatalf("interval %s", cfg.SyncInterval)
	}
	if cfg.DraftDebounce != 2*time.Second {
		t.Fatalf("debounce %s", cfg.DraftDebounce)
	}
	if cfg.MaxEvidence != 5 {
		t.Fatalf("max evidence %d", cfg.MaxEvidence)
	}
	if cfg.DBPath == cfg.CachePath {
		t.Fatalf("store and cache must be separate files")
	}
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "remote_base_url: https://monitor.example.org\nmax_sync_attempts: 5\nsync_interval: 1m\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RemoteBaseURL != "https://monitor.example.org" {
		t.Fatalf("remote url %q", cfg.RemoteBaseURL)
	}
	if cfg.MaxSyncAttempts != 5 {
		t.Fatalf("attempts %d", cfg.MaxSyncAttempts)
	}
	if cfg.SyncInterval != time.Minute {
		t.Fatalf("interval %s", cfg.SyncInterval)
	}
	// Untouched fields keep their defaults.
	if cfg.SyncPacing != 500*time.Millisecond {
		t.Fatalf("pacing lost its default: %s", cfg.SyncPacing)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file must fall back to defaults: %v", err)
	}
	if cfg.MaxSyncAttempts != 3 {
		t.Fatalf("defaults not applied")
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("malformed yaml must fail")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("remote_base_url: https://file.example.org\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FIELDKIT_REMOTE_URL", "https://env.example.org")
	t.Setenv("FIELDKIT_SYNC_INTERVAL", "45s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RemoteBaseURL != "https://env.example.org" {
		t.Fatalf("env override lost: %q", cfg.RemoteBaseURL)
	}
	if cfg.SyncInterval != 45*time.Second {
		t.Fatalf("interval override lost: %s", cfg.SyncInterval)
	}
}
