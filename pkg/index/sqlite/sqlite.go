// Package sqlite provides a SQLite-backed folder index store, the local
// on-disk counterpart of the postgres backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/peerbeam/peerbeam/internal/metrics"
	"github.com/peerbeam/peerbeam/pkg/index"
	"github.com/peerbeam/peerbeam/pkg/models"
	"github.com/peerbeam/peerbeam/pkg/paths"
)

// Store is a SQLite index store.
type Store struct {
	db *sql.DB
}

var _ index.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS index_files (
	folder      TEXT NOT NULL,
	path        TEXT NOT NULL,
	name        TEXT NOT NULL,
	parent_path TEXT NOT NULL,
	size        INTEGER NOT NULL DEFAULT 0,
	mod_time    TIMESTAMP NOT NULL,
	is_dir      BOOLEAN NOT NULL DEFAULT 0,
	hash        TEXT NOT NULL DEFAULT '',
	block_count INTEGER NOT NULL DEFAULT 0,
	version     INTEGER NOT NULL DEFAULT 1,
	deleted     BOOLEAN NOT NULL DEFAULT 0,
	PRIMARY KEY (folder, path)
);
CREATE INDEX IF NOT EXISTS idx_index_files_parent
	ON index_files (folder, parent_path);
`

// Open creates the parent directory if needed, opens the database and
// ensures the schema.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode allows simultaneous readers and writers
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, err
	}
	// Synchronous NORMAL is safe against app crashes, faster than FULL
	if _, err := db.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListChildren returns the live records directly under parent, ordered by name.
func (s *Store) ListChildren(ctx context.Context, folder, parent string) ([]models.FileRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordIndexQuery("list_children", time.Since(start)) }()

	parent = paths.Normalize(parent)
	rows, err := s.db.QueryContext(ctx,
		`SELECT folder, path, name, size, mod_time, is_dir, hash, block_count, version
		 FROM index_files WHERE folder = ? AND parent_path = ? AND NOT deleted
		 ORDER BY name`, folder, parent)
	if err != nil {
		return nil, fmt.Errorf("query children: %w", err)
	}
	defer rows.Close()

	var recs []models.FileRecord
	for rows.Next() {
		var r models.FileRecord
		if err := rows.Scan(&r.Folder, &r.Path, &r.Name, &r.Size, &r.ModTime,
			&r.IsDir, &r.Hash, &r.BlockCount, &r.Version); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// GetFile returns the live record at path, or index.ErrNotFound.
func (s *Store) GetFile(ctx context.Context, folder, path string) (models.FileRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordIndexQuery("get_file", time.Since(start)) }()

	path = paths.Normalize(path)
	var r models.FileRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT folder, path, name, size, mod_time, is_dir, hash, block_count, version
		 FROM index_files WHERE folder = ? AND path = ? AND NOT deleted`,
		folder, path).
		Scan(&r.Folder, &r.Path, &r.Name, &r.Size, &r.ModTime,
			&r.IsDir, &r.Hash, &r.BlockCount, &r.Version)
	if err == sql.ErrNoRows {
		return models.FileRecord{}, index.ErrNotFound
	}
	if err != nil {
		return models.FileRecord{}, fmt.Errorf("query file: %w", err)
	}
	return r, nil
}

// UpsertFile inserts or replaces the record identified by (Folder, Path).
// Re-upserting a tombstoned path revives it.
func (s *Store) UpsertFile(ctx context.Context, rec models.FileRecord) error {
	start := time.Now()
	defer func() { metrics.RecordIndexQuery("upsert_file", time.Since(start)) }()

	rec.Path = paths.Normalize(rec.Path)
	if rec.Name == "" {
		rec.Name = paths.Name(rec.Path)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO index_files (folder, path, name, parent_path, size, mod_time, is_dir, hash, block_count, version, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT (folder, path) DO UPDATE SET
			name = excluded.name,
			size = excluded.size,
			mod_time = excluded.mod_time,
			is_dir = excluded.is_dir,
			hash = excluded.hash,
			block_count = excluded.block_count,
			version = excluded.version,
			deleted = 0`,
		rec.Folder, rec.Path, rec.Name, paths.ParentOf(rec.Path),
		rec.Size, rec.ModTime, rec.IsDir, rec.Hash, rec.BlockCount, rec.Version)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// MarkDeleted tombstones the record at path.
func (s *Store) MarkDeleted(ctx context.Context, folder, path string) error {
	start := time.Now()
	defer func() { metrics.RecordIndexQuery("mark_deleted", time.Since(start)) }()

	path = paths.Normalize(path)
	result, err := s.db.ExecContext(ctx,
		`UPDATE index_files
		 SET deleted = 1, version = version + 1, hash = '', block_count = 0
		 WHERE folder = ? AND path = ? AND NOT deleted`,
		folder, path)
	if err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return index.ErrNotFound
	}
	return nil
}

// FileCount returns the number of live records in the folder.
func (s *Store) FileCount(ctx context.Context, folder string) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordIndexQuery("file_count", time.Since(start)) }()

	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM index_files WHERE folder = ? AND NOT deleted`,
		folder).Scan(&count)
	return count, err
}
