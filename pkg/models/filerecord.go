// Package models contains shared data types used across the peerbeam client.
package models

import (
	"time"

	"github.com/peerbeam/peerbeam/pkg/paths"
)

// BlockSize is the fixed size in bytes of one content block. File data is
// exchanged between devices in blocks of this size; the index only records
// how many blocks a file has.
const BlockSize = 128 * 1024

// FileRecord represents one entry of a folder's synchronized index. A record
// is identified by (Folder, Path); Deleted records are tombstones kept for
// version exchange and are excluded from browsing.
type FileRecord struct {
	Folder     string    `json:"folder"`
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mtime"`
	IsDir      bool      `json:"is_dir"`
	Hash       string    `json:"hash,omitempty"`
	BlockCount int       `json:"block_count,omitempty"`
	Version    int64     `json:"version"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// RootRecord returns the synthetic directory record for the root of a folder.
// It exists only in memory and is never stored in an index.
func RootRecord(folder string) FileRecord {
	return FileRecord{
		Folder: folder,
		Path:   paths.Root,
		Name:   paths.Root,
		IsDir:  true,
	}
}

// ParentRecord returns the synthetic ".." entry listed at the head of
// non-root directory listings.
func ParentRecord(folder string) FileRecord {
	return FileRecord{
		Folder: folder,
		Path:   paths.Parent,
		Name:   paths.Parent,
		IsDir:  true,
	}
}

// IsParent reports whether the record is the synthetic ".." entry.
func (r FileRecord) IsParent() bool {
	return paths.IsParent(r.Path)
}

// IsRoot reports whether the record is the synthetic root entry.
func (r FileRecord) IsRoot() bool {
	return r.Path == paths.Root
}

// BlocksFor returns the number of BlockSize blocks needed to hold size bytes.
func BlocksFor(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + BlockSize - 1) / BlockSize)
}
