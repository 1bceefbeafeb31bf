// Package index defines the folder index boundary: the read queries the
// browser consumes, the write surface index engines maintain, and the
// folder change notifications connecting the two.
package index

import (
	"context"
	"errors"

	"github.com/peerbeam/peerbeam/pkg/models"
)

// ErrNotFound is returned when a path has no live record in the index.
var ErrNotFound = errors.New("index: not found")

// Repository is the read side of a folder index. Both queries exclude
// records marked deleted. Implementations must be safe for concurrent use.
type Repository interface {
	// ListChildren returns the immediate children of the parent directory.
	// A missing or empty directory yields an empty slice, not an error.
	ListChildren(ctx context.Context, folder, parent string) ([]models.FileRecord, error)

	// GetFile returns the record at path, or ErrNotFound.
	GetFile(ctx context.Context, folder, path string) (models.FileRecord, error)
}

// Store is a Repository plus the write surface used by index engines.
type Store interface {
	Repository

	// UpsertFile inserts or replaces the record identified by (Folder, Path).
	UpsertFile(ctx context.Context, rec models.FileRecord) error

	// MarkDeleted tombstones the record at path. The record stays in the
	// store for version exchange but disappears from reads.
	MarkDeleted(ctx context.Context, folder, path string) error

	// FileCount returns the number of live records in the folder.
	FileCount(ctx context.Context, folder string) (int64, error)

	// Close releases the store's resources.
	Close() error
}
