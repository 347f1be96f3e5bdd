package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Foreground store and interceptor cache live in separate database files;
	// the two execution contexts never share a handle.
	DBPath    string `yaml:"db_path"`
	CachePath string `yaml:"cache_path"`

	// Interceptor daemon listen address and the remote incident service it
	// fronts.
	ListenAddr    string `yaml:"listen_addr"`
	RemoteBaseURL string `yaml:"remote_base_url"`

	// Sync policy. Defaults are the contract values.
	MaxSyncAttempts int           `yaml:"max_sync_attempts"`
	SyncPacing      time.Duration `yaml:"sync_pacing"`
	SyncInterval    time.Duration `yaml:"sync_interval"`

	// Composer policy.
	DraftDebounce time.Duration `yaml:"draft_debounce"`
	NavigateDelay time.Duration `yaml:"navigate_delay"`
	MaxEvidence   int           `yaml:"max_evidence"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

func DefaultConfig() Config {
	return Config{
		DBPath:          defaultDBPath(),
		CachePath:       defaultCachePath(),
		ListenAddr:      "127.0.0.1:8793",
		RemoteBaseURL:   "http://localhost:3000",
		MaxSyncAttempts: 3,
		SyncPacing:      500 * time.Millisecond,
		SyncInterval:    30 * time.Second,
		DraftDebounce:   2 * time.Second,
		NavigateDelay:   2 * time.Second,
		MaxEvidence:     5,
		ConnectTimeout:  3 * time.Second,
	}
}

// Load layers an optional YAML file over the defaults, then environment
// overrides over both. A missing file is not an error; an unreadable or
// malformed one is.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = defaultConfigPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FIELDKIT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FIELDKIT_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("FIELDKIT_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FIELDKIT_REMOTE_URL"); v != "" {
		cfg.RemoteBaseURL = v
	}
	if v := os.Getenv("FIELDKIT_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SyncInterval = d
		}
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "fieldkit.yaml"
	}
	return filepath.Join(home, ".config", "fieldkit", "config.yaml")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "fieldkit.db"
	}
	return filepath.Join(home, ".local", "state", "fieldkit", "reports.db")
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "fieldkit-cache.db"
	}
	return filepath.Join(home, ".local", "state", "fieldkit", "cache.db")
}
