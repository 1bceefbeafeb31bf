// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all client configuration.
type Config struct {
	// Home is the directory for settings, identity and the local index.
	Home string

	// Logging
	LogLevel  string
	LogFormat string

	// Index storage ("memory", "sqlite" or "postgres", default: "sqlite")
	IndexBackend string
	DatabaseURL  string
	IndexPath    string

	// Browser cache tuning
	CacheTTL      time.Duration
	SweepInterval time.Duration

	// Scanner
	ScanHashes bool

	// Metrics endpoint (empty disables it)
	MetricsAddr string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	home := envOr("PEERBEAM_HOME", defaultHome())

	cfg := &Config{
		Home:          home,
		LogLevel:      envOr("PEERBEAM_LOG_LEVEL", "info"),
		LogFormat:     envOr("PEERBEAM_LOG_FORMAT", "console"),
		IndexBackend:  envOr("PEERBEAM_INDEX_BACKEND", "sqlite"),
		DatabaseURL:   envOr("PEERBEAM_DATABASE_URL", ""),
		IndexPath:     envOr("PEERBEAM_INDEX_PATH", filepath.Join(home, "index.db")),
		CacheTTL:      envDuration("PEERBEAM_CACHE_TTL", 0),
		SweepInterval: envDuration("PEERBEAM_SWEEP_INTERVAL", 0),
		ScanHashes:    envBool("PEERBEAM_SCAN_HASHES", true),
		MetricsAddr:   envOr("PEERBEAM_METRICS_ADDR", ""),
	}

	if cfg.IndexBackend == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("PEERBEAM_DATABASE_URL is required for the postgres backend")
	}

	return cfg, nil
}

func defaultHome() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "peerbeam")
	}
	return ".peerbeam"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
