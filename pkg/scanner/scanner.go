// Package scanner maintains a folder's index from a local directory tree.
// A scan walks the tree, upserts changed records and tombstones vanished
// ones; Watch keeps scanning whenever the tree changes on disk. The browser
// never sees the scanner directly; the two meet through the index store and
// its change broadcaster.
package scanner

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/peerbeam/peerbeam/internal/logging"
	"github.com/peerbeam/peerbeam/internal/metrics"
	"github.com/peerbeam/peerbeam/pkg/index"
	"github.com/peerbeam/peerbeam/pkg/models"
	"github.com/peerbeam/peerbeam/pkg/paths"
)

// DefaultDebounce is how long the watcher waits after the last filesystem
// event before rescanning.
const DefaultDebounce = 200 * time.Millisecond

// Config configures a Scanner.
type Config struct {
	// Folder is the folder ID the scanned records belong to. Required.
	Folder string

	// Dir is the local directory backing the folder. Required.
	Dir string

	// Store is the index to maintain. Required.
	Store index.Store

	// Changes, when set, receives one published change per scan that
	// modified the index.
	Changes *index.Broadcaster

	// SkipHashes disables content hashing. Change detection then relies on
	// size and modification time alone.
	SkipHashes bool

	// Debounce overrides DefaultDebounce for Watch.
	Debounce time.Duration
}

// Scanner scans one local directory into one folder's index.
type Scanner struct {
	folder     string
	dir        string
	store      index.Store
	changes    *index.Broadcaster
	skipHashes bool
	debounce   time.Duration
}

// Result summarizes one scan.
type Result struct {
	// Indexed is the number of live records on disk.
	Indexed int
	// Updated is the number of records inserted or replaced.
	Updated int
	// Removed is the number of records tombstoned.
	Removed int
}

// Changed reports whether the scan modified the index.
func (r Result) Changed() bool {
	return r.Updated > 0 || r.Removed > 0
}

// New creates a Scanner.
func New(cfg Config) (*Scanner, error) {
	if cfg.Folder == "" {
		return nil, errors.New("scanner: folder is required")
	}
	if cfg.Dir == "" {
		return nil, errors.New("scanner: dir is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("scanner: store is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Scanner{
		folder:     cfg.Folder,
		dir:        filepath.Clean(cfg.Dir),
		store:      cfg.Store,
		changes:    cfg.Changes,
		skipHashes: cfg.SkipHashes,
		debounce:   cfg.Debounce,
	}, nil
}

// Scan walks the directory and reconciles the index with it: new and changed
// entries are upserted with a bumped version, entries no longer on disk are
// tombstoned. A change is published when anything was modified.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	start := time.Now()

	desired, err := s.walkDisk()
	if err != nil {
		return Result{}, err
	}
	existing, err := s.walkIndex(ctx)
	if err != nil {
		return Result{}, err
	}

	var res Result
	res.Indexed = len(desired)

	for path, rec := range desired {
		old, seen := existing[path]
		if seen && unchanged(old, rec) {
			continue
		}
		if seen {
			rec.Version = old.Version + 1
		} else {
			rec.Version = 1
		}
		if err := s.store.UpsertFile(ctx, rec); err != nil {
			return res, fmt.Errorf("upsert %q: %w", path, err)
		}
		res.Updated++
	}

	for path := range existing {
		if _, ok := desired[path]; ok {
			continue
		}
		if err := s.store.MarkDeleted(ctx, s.folder, path); err != nil {
			return res, fmt.Errorf("tombstone %q: %w", path, err)
		}
		res.Removed++
	}

	metrics.RecordScan(time.Since(start), res.Indexed)
	logging.Info("scan complete",
		zap.String("folder", s.folder),
		zap.Int("indexed", res.Indexed),
		zap.Int("updated", res.Updated),
		zap.Int("removed", res.Removed),
		zap.Duration("took", time.Since(start)))

	if res.Changed() && s.changes != nil {
		s.changes.Publish(index.Change{Folder: s.folder})
	}
	return res, nil
}

// walkDisk builds the desired index state from the directory tree. Walk
// callbacks run concurrently, so the result map is mutex guarded. Unreadable
// entries are skipped with a warning.
func (s *Scanner) walkDisk() (map[string]models.FileRecord, error) {
	desired := make(map[string]models.FileRecord)
	var mu sync.Mutex

	conf := &fastwalk.Config{}
	err := fastwalk.Walk(conf, s.dir, func(fullPath string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("scan: skipping entry",
				zap.String("path", fullPath),
				zap.Error(err))
			return nil
		}
		if fullPath == s.dir {
			return nil
		}

		rel, err := filepath.Rel(s.dir, fullPath)
		if err != nil {
			return nil
		}
		virtual := paths.Normalize(filepath.ToSlash(rel))

		info, err := d.Info()
		if err != nil {
			logging.Warn("scan: skipping entry",
				zap.String("path", fullPath),
				zap.Error(err))
			return nil
		}

		rec := models.FileRecord{
			Folder:  s.folder,
			Path:    virtual,
			Name:    paths.Name(virtual),
			IsDir:   d.IsDir(),
			ModTime: info.ModTime(),
		}
		if !d.IsDir() {
			rec.Size = info.Size()
			rec.BlockCount = models.BlocksFor(info.Size())
			if !s.skipHashes {
				hash, err := hashFile(fullPath)
				if err != nil {
					logging.Warn("scan: skipping unreadable file",
						zap.String("path", fullPath),
						zap.Error(err))
					return nil
				}
				rec.Hash = hash
			}
		}

		mu.Lock()
		desired[virtual] = rec
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", s.dir, err)
	}
	return desired, nil
}

// walkIndex enumerates the folder's live records by descending the index
// from the root. Directories that vanished on disk are still found here,
// children included, so they all get tombstoned.
func (s *Scanner) walkIndex(ctx context.Context) (map[string]models.FileRecord, error) {
	existing := make(map[string]models.FileRecord)

	queue := []string{paths.Root}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		recs, err := s.store.ListChildren(ctx, s.folder, dir)
		if err != nil {
			return nil, fmt.Errorf("list index %q: %w", dir, err)
		}
		for _, rec := range recs {
			existing[rec.Path] = rec
			if rec.IsDir {
				queue = append(queue, rec.Path)
			}
		}
	}
	return existing, nil
}

// Watch scans once, then watches the tree and rescans after each debounced
// burst of filesystem events. It blocks until ctx is done.
func (s *Scanner) Watch(ctx context.Context) error {
	if _, err := s.Scan(ctx); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := s.addWatches(w); err != nil {
		return err
	}

	var pending bool
	var last time.Time
	ticker := time.NewTicker(s.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Write) {
				pending = true
				last = time.Now()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watch error",
				zap.String("folder", s.folder),
				zap.Error(err))

		case <-ticker.C:
			if !pending || time.Since(last) < s.debounce {
				continue
			}
			pending = false
			if _, err := s.Scan(ctx); err != nil {
				logging.Error("rescan failed",
					zap.String("folder", s.folder),
					zap.Error(err))
				continue
			}
			// New subdirectories need their own watches.
			if err := s.addWatches(w); err != nil {
				logging.Warn("re-adding watches failed",
					zap.String("folder", s.folder),
					zap.Error(err))
			}
		}
	}
}

// addWatches registers the directory and every subdirectory with the
// watcher. Re-adding an already watched path is a no-op.
func (s *Scanner) addWatches(w *fsnotify.Watcher) error {
	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watch %q: %w", s.dir, err)
	}

	conf := &fastwalk.Config{}
	return fastwalk.Walk(conf, s.dir, func(fullPath string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || fullPath == s.dir {
			return nil
		}
		if err := w.Add(fullPath); err != nil {
			logging.Warn("watch subdir failed",
				zap.String("path", fullPath),
				zap.Error(err))
		}
		return nil
	})
}

// unchanged reports whether the on-disk record matches the indexed one.
// Modification times compare at second precision so that database round
// trips do not force rewrites.
func unchanged(old, cur models.FileRecord) bool {
	if old.IsDir != cur.IsDir || old.Size != cur.Size {
		return false
	}
	if old.ModTime.Unix() != cur.ModTime.Unix() {
		return false
	}
	if cur.Hash != "" && old.Hash != "" && !strings.EqualFold(old.Hash, cur.Hash) {
		return false
	}
	return true
}

// hashFile returns the hex SHA-256 of the file contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
