// Package browser presents a synchronized folder's index as a navigable
// virtual file tree. Listings and file records are served from expiring
// caches; a background worker warms the caches around the paths a user is
// likely to visit next and sweeps out expired entries.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/peerbeam/peerbeam/internal/logging"
	"github.com/peerbeam/peerbeam/internal/metrics"
	"github.com/peerbeam/peerbeam/pkg/index"
	"github.com/peerbeam/peerbeam/pkg/models"
	"github.com/peerbeam/peerbeam/pkg/paths"
)

// ErrNotDirectory is returned when navigating to a path that exists but is
// not a directory.
var ErrNotDirectory = errors.New("browser: not a directory")

const (
	// DefaultCacheTTL bounds the life of cached listings and file records.
	DefaultCacheTTL = 10 * time.Minute
	// DefaultSweepInterval is the period between cache cleanups.
	DefaultSweepInterval = time.Minute

	closeGrace = 2 * time.Second
)

// Config configures a Browser. The zero values of the optional fields select
// the documented defaults.
type Config struct {
	// Folder is the ID of the folder whose index to browse. Required.
	Folder string

	// Repository serves listing and file queries. Required.
	Repository index.Repository

	// Changes optionally delivers folder change notifications. A change for
	// Folder drops both caches and re-warms the current path.
	Changes index.ChangeSource

	// Ordering sorts directory listings. Defaults to AlphabeticalDirsFirst.
	Ordering Ordering

	// CacheTTL is how long cached entries stay valid. Defaults to
	// DefaultCacheTTL.
	CacheTTL time.Duration

	// SweepInterval is how often expired entries are cleaned up. Defaults to
	// DefaultSweepInterval.
	SweepInterval time.Duration

	// IncludeParent prefixes listings of non-root directories with the
	// synthetic ".." entry.
	IncludeParent bool

	// ParentAtRoot lists the ".." entry in the root directory too. Only
	// meaningful together with IncludeParent.
	ParentAtRoot bool
}

func (cfg Config) withDefaults() (Config, error) {
	if strings.TrimSpace(cfg.Folder) == "" {
		return cfg, errors.New("browser: folder is required")
	}
	if cfg.Repository == nil {
		return cfg, errors.New("browser: repository is required")
	}
	if cfg.CacheTTL < 0 {
		return cfg, fmt.Errorf("browser: negative cache TTL %v", cfg.CacheTTL)
	}
	if cfg.SweepInterval < 0 {
		return cfg, fmt.Errorf("browser: negative sweep interval %v", cfg.SweepInterval)
	}
	if cfg.Ordering == nil {
		cfg.Ordering = AlphabeticalDirsFirst
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return cfg, nil
}

// Browser is a stateful view into one folder's index. It tracks a current
// directory, serves listings and file records through its caches, and keeps
// them warm in the background. Safe for concurrent use; create one per
// browsing session and Close it when done.
type Browser struct {
	folder        string
	repo          index.Repository
	includeParent bool
	parentAtRoot  bool

	listings *ttlCache
	files    *ttlCache
	queue    *preloadQueue

	mu            sync.Mutex
	currentPath   string
	ordering      Ordering
	onPathChanged func()

	unsubscribe func()
	wake        chan struct{}
	stopped     chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once
}

// New creates a Browser positioned at the root of the folder and schedules
// the first warm-up around it.
func New(cfg Config) (*Browser, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Browser{
		folder:        cfg.Folder,
		repo:          cfg.Repository,
		includeParent: cfg.IncludeParent,
		parentAtRoot:  cfg.ParentAtRoot,
		listings:      newTTLCache("listing", cfg.CacheTTL),
		files:         newTTLCache("file", cfg.CacheTTL),
		queue:         newPreloadQueue(),
		currentPath:   paths.Root,
		ordering:      cfg.Ordering,
		wake:          make(chan struct{}, 1),
		stopped:       make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}

	if cfg.Changes != nil {
		b.unsubscribe = cfg.Changes.SubscribeChanges(b.handleChange)
	}
	go b.run(cfg.SweepInterval)
	b.requestPreload(paths.Root)
	return b, nil
}

// NewAtPath creates a Browser and navigates it to path. The path must name
// an existing directory.
func NewAtPath(ctx context.Context, cfg Config, path string) (*Browser, error) {
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := b.NavigateToPath(ctx, path); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// NewAtNearestPath creates a Browser positioned at path, or at the root when
// path is blank. It suits restoring a browsing session whose last position
// may be stale.
func NewAtNearestPath(ctx context.Context, cfg Config, path string) (*Browser, error) {
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := b.NavigateToNearest(ctx, path); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// Folder returns the ID of the browsed folder.
func (b *Browser) Folder() string {
	return b.folder
}

// CurrentPath returns the path of the current directory.
func (b *Browser) CurrentPath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentPath
}

// CurrentPathName returns the base name of the current directory.
func (b *Browser) CurrentPathName() string {
	return paths.Name(b.CurrentPath())
}

// CurrentPathInfo returns the record of the current directory.
func (b *Browser) CurrentPathInfo(ctx context.Context) (models.FileRecord, error) {
	return b.FileInfo(ctx, b.CurrentPath())
}

// IsRoot reports whether the browser is at the root of the folder.
func (b *Browser) IsRoot() bool {
	return paths.IsRoot(b.CurrentPath())
}

// ListFiles returns the listing of the current directory.
func (b *Browser) ListFiles(ctx context.Context) ([]models.FileRecord, error) {
	return b.ListFilesAt(ctx, b.CurrentPath())
}

// ListFilesAt returns the listing of the directory at dir, loading it into
// the cache on a miss. With IncludeParent set, listings of non-root
// directories start with the synthetic ".." entry, followed by the
// directory's records in the browser's ordering. The returned slice is the
// caller's to keep.
func (b *Browser) ListFilesAt(ctx context.Context, dir string) ([]models.FileRecord, error) {
	recs, err := b.listingAt(ctx, paths.Normalize(dir))
	if err != nil {
		return nil, err
	}
	out := make([]models.FileRecord, len(recs))
	copy(out, recs)
	return out, nil
}

// listingAt returns the cached listing itself. Cached listings are never
// mutated after they are stored, so internal readers can share them.
func (b *Browser) listingAt(ctx context.Context, dir string) ([]models.FileRecord, error) {
	v, err := b.listings.get(ctx, dir, b.loadListing)
	if err != nil {
		return nil, err
	}
	return v.([]models.FileRecord), nil
}

func (b *Browser) loadListing(ctx context.Context, dir string) (any, error) {
	logging.Debug("loading listing",
		zap.String("folder", b.folder),
		zap.String("path", dir))

	recs, err := b.repo.ListChildren(ctx, b.folder, dir)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", dir, err)
	}
	for _, rec := range recs {
		b.files.put(rec.Path, rec)
	}

	b.mu.Lock()
	ord := b.ordering
	b.mu.Unlock()
	sortListing(recs, ord)

	if b.includeParent && (!paths.IsRoot(dir) || b.parentAtRoot) {
		recs = append([]models.FileRecord{models.ParentRecord(b.folder)}, recs...)
	}
	return recs, nil
}

// FileInfo returns the record at path, loading it into the cache on a miss.
// The root resolves to a synthetic directory record that never touches the
// cache. A missing path reports index.ErrNotFound.
func (b *Browser) FileInfo(ctx context.Context, path string) (models.FileRecord, error) {
	path = paths.Normalize(path)
	if paths.IsRoot(path) {
		return models.RootRecord(b.folder), nil
	}
	v, err := b.files.get(ctx, path, b.loadFile)
	if err != nil {
		return models.FileRecord{}, err
	}
	return v.(models.FileRecord), nil
}

func (b *Browser) loadFile(ctx context.Context, path string) (any, error) {
	return b.repo.GetFile(ctx, b.folder, path)
}

// SetOrdering switches the listing order and re-sorts every cached listing
// without invalidating it. Synthetic ".." entries keep their place at the
// head. A nil ordering is ignored.
func (b *Browser) SetOrdering(ord Ordering) {
	if ord == nil {
		return
	}
	b.mu.Lock()
	b.ordering = ord
	b.mu.Unlock()

	b.listings.updateValues(func(v any) any {
		recs := v.([]models.FileRecord)
		sorted := make([]models.FileRecord, len(recs))
		copy(sorted, recs)
		sortListing(sorted, ord)
		return sorted
	})
}

// NavigateToPath makes the directory at path current and schedules a warm-up
// around it. The path must resolve to a directory; on failure the current
// path is left unchanged and the error reports index.ErrNotFound or
// ErrNotDirectory.
func (b *Browser) NavigateToPath(ctx context.Context, path string) error {
	path = paths.Normalize(path)

	if !paths.IsRoot(path) {
		info, err := b.FileInfo(ctx, path)
		if err != nil {
			metrics.RecordNavigation(false)
			return fmt.Errorf("navigate to %q: %w", path, err)
		}
		if !info.IsDir {
			metrics.RecordNavigation(false)
			return fmt.Errorf("navigate to %q: %w", path, ErrNotDirectory)
		}
		// Commit the path as the index spells it.
		path = info.Path
	}

	b.mu.Lock()
	b.currentPath = path
	b.mu.Unlock()

	logging.Debug("navigated",
		zap.String("folder", b.folder),
		zap.String("path", path))
	metrics.RecordNavigation(true)

	b.requestPreload(path)
	return nil
}

// NavigateTo navigates into the directory named by rec. The synthetic ".."
// entry navigates to the parent of the current directory.
func (b *Browser) NavigateTo(ctx context.Context, rec models.FileRecord) error {
	if !rec.IsDir {
		return fmt.Errorf("navigate to %q: %w", rec.Path, ErrNotDirectory)
	}
	if rec.Folder != b.folder {
		return fmt.Errorf("navigate to %q: record belongs to folder %q, browsing %q",
			rec.Path, rec.Folder, b.folder)
	}
	if rec.IsParent() {
		return b.NavigateToPath(ctx, paths.ParentOf(b.CurrentPath()))
	}
	return b.NavigateToPath(ctx, rec.Path)
}

// NavigateToNearest navigates to path, treating a blank path as "stay at the
// root". It suits restoring a saved browsing position.
func (b *Browser) NavigateToNearest(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	return b.NavigateToPath(ctx, path)
}

// OnPathChanged registers fn to run whenever a warm-up round completes and
// the preload queue drains empty. Only one listener is kept; registering a
// new one replaces the previous, and nil clears it. The listener runs on the
// worker goroutine and must not block.
func (b *Browser) OnPathChanged(fn func()) {
	b.mu.Lock()
	b.onPathChanged = fn
	b.mu.Unlock()
}

func (b *Browser) notifyPathChanged() {
	b.mu.Lock()
	fn := b.onPathChanged
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// handleChange reacts to index changes for the browsed folder: both caches
// are dropped and the current path is queued for a fresh warm-up. Changes to
// other folders are ignored.
func (b *Browser) handleChange(change index.Change) {
	if change.Folder != b.folder {
		return
	}
	logging.Debug("index changed, dropping caches",
		zap.String("folder", b.folder))
	b.listings.invalidateAll()
	b.files.invalidateAll()
	b.requestPreload(b.CurrentPath())
}

// requestPreload queues path for warming and nudges the worker.
func (b *Browser) requestPreload(path string) {
	b.queue.request(path)
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Close detaches the browser from its change source, stops the worker and
// waits briefly for it to finish. Safe to call more than once.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		logging.Debug("closing browser", zap.String("folder", b.folder))
		if b.unsubscribe != nil {
			b.unsubscribe()
		}
		b.cancel()
		select {
		case <-b.stopped:
		case <-time.After(closeGrace):
			logging.Warn("browser worker did not stop in time",
				zap.String("folder", b.folder))
		}
	})
	return nil
}

// run is the worker loop: it drains the preload queue when woken and sweeps
// expired cache entries on a fixed interval.
func (b *Browser) run(sweepInterval time.Duration) {
	defer close(b.stopped)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.listings.sweep()
			b.files.sweep()
		case <-b.wake:
			b.drain()
		}
	}
}

// drain warms queued paths, freshest first, until the queue is empty. Each
// completed warm-up removes its path again so that re-requests arriving
// mid-warm-up coalesce into it. When the queue drains empty the path changed
// listener fires, once.
func (b *Browser) drain() {
	for {
		if b.ctx.Err() != nil {
			return
		}
		path, ok := b.queue.popFreshest()
		if !ok {
			return
		}

		logging.Debug("preload begin",
			zap.String("folder", b.folder),
			zap.String("path", path))
		start := time.Now()
		err := b.warm(b.ctx, path)
		metrics.RecordPreload(time.Since(start), err == nil)
		if err != nil {
			logging.Warn("preload failed",
				zap.String("folder", b.folder),
				zap.String("path", path),
				zap.Error(err))
		} else {
			logging.Debug("preload end",
				zap.String("folder", b.folder),
				zap.String("path", path),
				zap.Duration("took", time.Since(start)))
		}

		b.queue.remove(path)
		if b.queue.isEmpty() {
			b.notifyPathChanged()
		}
	}
}

// warm populates the caches the way a user browsing around path would read
// them: the path's own record, the parent's record and listing, the path's
// own listing, and the listings one level down. Already cached entries make
// the corresponding steps free.
func (b *Browser) warm(ctx context.Context, path string) error {
	if _, err := b.FileInfo(ctx, path); err != nil {
		return err
	}

	if !paths.IsRoot(path) {
		parent := paths.ParentOf(path)
		if _, err := b.FileInfo(ctx, parent); err != nil {
			return err
		}
		if _, err := b.listingAt(ctx, parent); err != nil {
			return err
		}
	}

	recs, err := b.listingAt(ctx, path)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if rec.IsParent() || !rec.IsDir {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := b.listingAt(ctx, rec.Path); err != nil {
			return err
		}
	}
	return nil
}
