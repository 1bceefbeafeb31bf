package index

import (
	"context"
	"sort"
	"sync"

	"github.com/peerbeam/peerbeam/pkg/models"
	"github.com/peerbeam/peerbeam/pkg/paths"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and live
// local browsing where no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	folders map[string]map[string]models.FileRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		folders: make(map[string]map[string]models.FileRecord),
	}
}

// ListChildren returns the live records directly under parent, sorted by path.
func (s *MemoryStore) ListChildren(ctx context.Context, folder, parent string) ([]models.FileRecord, error) {
	parent = paths.Normalize(parent)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.FileRecord
	for _, rec := range s.folders[folder] {
		if rec.Deleted || rec.Path == paths.Root {
			continue
		}
		if paths.ParentOf(rec.Path) == parent {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// GetFile returns the live record at path, or ErrNotFound.
func (s *MemoryStore) GetFile(ctx context.Context, folder, path string) (models.FileRecord, error) {
	path = paths.Normalize(path)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.folders[folder][path]
	if !ok || rec.Deleted {
		return models.FileRecord{}, ErrNotFound
	}
	return rec, nil
}

// UpsertFile inserts or replaces the record identified by (Folder, Path).
func (s *MemoryStore) UpsertFile(ctx context.Context, rec models.FileRecord) error {
	rec.Path = paths.Normalize(rec.Path)
	if rec.Name == "" {
		rec.Name = paths.Name(rec.Path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	folder, ok := s.folders[rec.Folder]
	if !ok {
		folder = make(map[string]models.FileRecord)
		s.folders[rec.Folder] = folder
	}
	folder[rec.Path] = rec
	return nil
}

// MarkDeleted tombstones the record at path.
func (s *MemoryStore) MarkDeleted(ctx context.Context, folder, path string) error {
	path = paths.Normalize(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.folders[folder][path]
	if !ok || rec.Deleted {
		return ErrNotFound
	}
	rec.Deleted = true
	rec.Version++
	rec.Hash = ""
	rec.BlockCount = 0
	s.folders[folder][path] = rec
	return nil
}

// FileCount returns the number of live records in the folder.
func (s *MemoryStore) FileCount(ctx context.Context, folder string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, rec := range s.folders[folder] {
		if !rec.Deleted {
			n++
		}
	}
	return n, nil
}

// Close releases nothing; it exists to satisfy Store.
func (s *MemoryStore) Close() error {
	return nil
}
