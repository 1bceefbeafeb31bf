// Package fuse mounts one folder's synchronized index as a read-only
// filesystem. Directory listings and attributes are answered from the
// browser's caches; the index carries metadata only, so opening a file for
// reading yields no content.
package fuse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/peerbeam/peerbeam/internal/logging"
	"github.com/peerbeam/peerbeam/pkg/browser"
	"github.com/peerbeam/peerbeam/pkg/index"
	"github.com/peerbeam/peerbeam/pkg/models"
	"github.com/peerbeam/peerbeam/pkg/paths"
)

// Config holds mount configuration.
type Config struct {
	// Browser serves every lookup and listing. Required.
	Browser *browser.Browser

	// AllowOther lets other users access the mount.
	AllowOther bool

	// Debug enables FUSE protocol tracing.
	Debug bool
}

// IndexFS is the filesystem root. One IndexFS mounts one folder.
type IndexFS struct {
	browser *browser.Browser
	cfg     Config

	stats struct {
		lookups     atomic.Int64
		dirsListed  atomic.Int64
		attrReads   atomic.Int64
		opensDenied atomic.Int64
	}
}

// StatsSnapshot is a point-in-time copy of the mount's operation counters.
type StatsSnapshot struct {
	Lookups     int64
	DirsListed  int64
	AttrReads   int64
	OpensDenied int64
}

// New creates a filesystem over cfg.Browser.
func New(cfg Config) (*IndexFS, error) {
	if cfg.Browser == nil {
		return nil, fmt.Errorf("fuse: browser is required")
	}
	return &IndexFS{browser: cfg.Browser, cfg: cfg}, nil
}

// Stats returns the mount's operation counters.
func (f *IndexFS) Stats() StatsSnapshot {
	return StatsSnapshot{
		Lookups:     f.stats.lookups.Load(),
		DirsListed:  f.stats.dirsListed.Load(),
		AttrReads:   f.stats.attrReads.Load(),
		OpensDenied: f.stats.opensDenied.Load(),
	}
}

// Mount mounts the filesystem at mountPoint, creating the directory if
// needed. The caller serves the returned server with Wait and unmounts it
// with Unmount.
func (f *IndexFS) Mount(mountPoint string) (*gofuse.Server, error) {
	if err := os.MkdirAll(mountPoint, 0755); err != nil {
		return nil, fmt.Errorf("create mount point: %w", err)
	}

	root := &IndexNode{
		fsys: f,
		rec:  models.RootRecord(f.browser.Folder()),
	}

	opts := &fs.Options{
		MountOptions: gofuse.MountOptions{
			AllowOther: f.cfg.AllowOther,
			Debug:      f.cfg.Debug,
			FsName:     "peerbeam",
			Name:       "peerbeam",
			Options:    []string{"ro"},
		},
		UID: uint32(os.Getuid()),
		GID: uint32(os.Getgid()),
	}

	server, err := fs.Mount(mountPoint, root, opts)
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}

	logging.Info("index mounted",
		zap.String("folder", f.browser.Folder()),
		zap.String("mountpoint", mountPoint))
	return server, nil
}

// IndexNode represents a file or directory of the index. A node keeps the
// record captured when it was looked up; listings and lookups always go back
// through the browser, so directory contents stay as fresh as its caches.
type IndexNode struct {
	fs.Inode

	fsys *IndexFS
	rec  models.FileRecord
}

var _ fs.InodeEmbedder = (*IndexNode)(nil)
var _ fs.NodeGetattrer = (*IndexNode)(nil)
var _ fs.NodeLookuper = (*IndexNode)(nil)
var _ fs.NodeReaddirer = (*IndexNode)(nil)
var _ fs.NodeOpener = (*IndexNode)(nil)
var _ fs.NodeGetxattrer = (*IndexNode)(nil)
var _ fs.NodeListxattrer = (*IndexNode)(nil)

func fillAttr(rec models.FileRecord, attr *gofuse.Attr) {
	if rec.IsDir {
		attr.Mode = 0555 | syscall.S_IFDIR
	} else {
		attr.Mode = 0444 | syscall.S_IFREG
	}
	attr.Size = uint64(rec.Size)
	if !rec.ModTime.IsZero() {
		attr.Mtime = uint64(rec.ModTime.Unix())
	}
	attr.Atime = attr.Mtime
	attr.Ctime = attr.Mtime
	attr.Uid = uint32(os.Getuid())
	attr.Gid = uint32(os.Getgid())
}

// Getattr returns the node's attributes from its record.
func (n *IndexNode) Getattr(ctx context.Context, fh fs.FileHandle, out *gofuse.AttrOut) syscall.Errno {
	n.fsys.stats.attrReads.Add(1)
	fillAttr(n.rec, &out.Attr)
	return 0
}

// Lookup resolves a child by name through the browser.
func (n *IndexNode) Lookup(ctx context.Context, name string, out *gofuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if !n.rec.IsDir {
		return nil, syscall.ENOTDIR
	}
	n.fsys.stats.lookups.Add(1)

	rec, err := n.fsys.browser.FileInfo(ctx, paths.Join(n.rec.Path, name))
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return nil, syscall.ENOENT
		}
		logging.Warn("lookup failed",
			zap.String("path", n.rec.Path),
			zap.String("name", name),
			zap.Error(err))
		return nil, syscall.EIO
	}

	child := &IndexNode{fsys: n.fsys, rec: rec}
	fillAttr(rec, &out.Attr)

	return n.NewInode(ctx, child, fs.StableAttr{Mode: out.Mode}), 0
}

// Readdir lists the directory through the browser. The synthetic ".." entry
// is dropped since the kernel supplies its own.
func (n *IndexNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	if !n.rec.IsDir {
		return nil, syscall.ENOTDIR
	}
	n.fsys.stats.dirsListed.Add(1)

	recs, err := n.fsys.browser.ListFilesAt(ctx, n.rec.Path)
	if err != nil {
		logging.Warn("readdir failed",
			zap.String("path", n.rec.Path),
			zap.Error(err))
		return nil, syscall.EIO
	}

	entries := make([]gofuse.DirEntry, 0, len(recs))
	for _, rec := range recs {
		if rec.IsParent() {
			continue
		}
		mode := uint32(syscall.S_IFREG)
		if rec.IsDir {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, gofuse.DirEntry{
			Name: rec.Name,
			Mode: mode,
		})
	}

	return fs.NewListDirStream(entries), 0
}

// Open refuses content access. The index records names, sizes and block
// hashes, not file data; writes are refused with EROFS, reads with EIO.
func (n *IndexNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if n.rec.IsDir {
		return nil, 0, syscall.EISDIR
	}
	n.fsys.stats.opensDenied.Add(1)
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	return nil, 0, syscall.EIO
}

// Getxattr exposes index metadata that has no place in regular attributes.
func (n *IndexNode) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	var value string

	switch attr {
	case "user.peerbeam.folder":
		value = n.rec.Folder
	case "user.peerbeam.path":
		value = n.rec.Path
	case "user.peerbeam.hash":
		value = n.rec.Hash
	case "user.peerbeam.blocks":
		value = strconv.Itoa(n.rec.BlockCount)
	case "user.peerbeam.version":
		value = strconv.FormatInt(n.rec.Version, 10)
	default:
		return 0, syscall.ENODATA
	}

	if len(dest) == 0 {
		return uint32(len(value)), 0
	}
	if len(dest) < len(value) {
		return 0, syscall.ERANGE
	}
	copy(dest, value)
	return uint32(len(value)), 0
}

// Listxattr lists the exposed metadata attributes.
func (n *IndexNode) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	attrs := []string{
		"user.peerbeam.folder",
		"user.peerbeam.path",
		"user.peerbeam.hash",
		"user.peerbeam.blocks",
		"user.peerbeam.version",
	}

	var total int
	for _, attr := range attrs {
		total += len(attr) + 1
	}

	if len(dest) == 0 {
		return uint32(total), 0
	}
	if len(dest) < total {
		return 0, syscall.ERANGE
	}

	offset := 0
	for _, attr := range attrs {
		copy(dest[offset:], attr)
		offset += len(attr)
		dest[offset] = 0
		offset++
	}

	return uint32(total), 0
}
