// Package storage opens the configured index store backend.
package storage

import (
	"context"
	"fmt"

	"github.com/peerbeam/peerbeam/pkg/index"
	"github.com/peerbeam/peerbeam/pkg/index/postgres"
	"github.com/peerbeam/peerbeam/pkg/index/sqlite"
)

// Options selects and configures an index store backend.
type Options struct {
	// Backend is one of "memory", "sqlite" or "postgres".
	Backend string
	// DSN is the sqlite file path or the postgres connection URL.
	DSN string
}

// Open creates an index store for the given backend.
func Open(ctx context.Context, opts Options) (index.Store, error) {
	switch opts.Backend {
	case "memory", "":
		return index.NewMemoryStore(), nil
	case "sqlite":
		if opts.DSN == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		return sqlite.Open(opts.DSN)
	case "postgres":
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires a database URL")
		}
		store, err := postgres.New(opts.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown index backend: %s", opts.Backend)
	}
}
