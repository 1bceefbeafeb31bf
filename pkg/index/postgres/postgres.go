// Package postgres provides a PostgreSQL-backed folder index store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/peerbeam/peerbeam/internal/logging"
	"github.com/peerbeam/peerbeam/internal/metrics"
	"github.com/peerbeam/peerbeam/pkg/index"
	"github.com/peerbeam/peerbeam/pkg/models"
	"github.com/peerbeam/peerbeam/pkg/paths"
	"go.uber.org/zap"
)

// Store is a PostgreSQL index store shared by several folders.
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
	size        BIGINT NOT NULL DEFAULT 0,
	mod_time    TIMESTAMPTZ NOT NULL,
	is_dir      BOOLEAN NOT NULL DEFAULT FALSE,
	hash        TEXT NOT NULL DEFAULT '',
	block_count INTEGER NOT NULL DEFAULT 0,
	version     BIGINT NOT NULL DEFAULT 1,
	deleted     BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (folder, path)
);
CREATE INDEX IF NOT EXISTS idx_index_files_parent
	ON index_files (folder, parent_path) WHERE NOT deleted;
`

// New creates a new PostgreSQL index store.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// EnsureSchema creates the index tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ListChildren returns the live records directly under parent, ordered by name.
func (s *Store) ListChildren(ctx context.Context, folder, parent string) ([]models.FileRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordIndexQuery("list_children", time.Since(start)) }()

	parent = paths.Normalize(parent)
	rows, err := s.db.QueryContext(ctx,
		`SELECT folder, path, name, size, mod_time, is_dir, hash, block_count, version
		 FROM index_files WHERE folder = $1 AND parent_path = $2 AND NOT deleted
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
		 FROM index_files WHERE folder = $1 AND path = $2 AND NOT deleted`,
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
		`INSERT INTO index_files (folder, path, name, parent_path, size, mod_time, is_dir, hash, block_count, version, deleted, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, NOW())
		 ON CONFLICT (folder, path) DO UPDATE SET
			name = EXCLUDED.name,
			size = EXCLUDED.size,
			mod_time = EXCLUDED.mod_time,
			is_dir = EXCLUDED.is_dir,
			hash = EXCLUDED.hash,
			block_count = EXCLUDED.block_count,
			version = EXCLUDED.version,
			deleted = FALSE,
			updated_at = NOW()`,
		rec.Folder, rec.Path, rec.Name, paths.ParentOf(rec.Path),
		rec.Size, rec.ModTime, rec.IsDir, rec.Hash, rec.BlockCount, rec.Version)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	logging.Debug("upserted index record",
		zap.String("folder", rec.Folder),
		zap.String("path", rec.Path),
		zap.Bool("is_dir", rec.IsDir))
	return nil
}

// MarkDeleted tombstones the record at path.
func (s *Store) MarkDeleted(ctx context.Context, folder, path string) error {
	start := time.Now()
	defer func() { metrics.RecordIndexQuery("mark_deleted", time.Since(start)) }()

	path = paths.Normalize(path)
	result, err := s.db.ExecContext(ctx,
		`UPDATE index_files
		 SET deleted = TRUE, version = version + 1, hash = '', block_count = 0, updated_at = NOW()
		 WHERE folder = $1 AND path = $2 AND NOT deleted`,
		folder, path)
	if err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return index.ErrNotFound
	}

	logging.Debug("tombstoned index record",
		zap.String("folder", folder),
		zap.String("path", path))
	return nil
}

// FileCount returns the number of live records in the folder.
func (s *Store) FileCount(ctx context.Context, folder string) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordIndexQuery("file_count", time.Since(start)) }()

	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM index_files WHERE folder = $1 AND NOT deleted`,
		folder).Scan(&count)
	return count, err
}
