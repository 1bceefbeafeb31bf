// Package paths defines the slash-separated path convention used by folder indexes.
package paths

import (
	"path"
	"strings"
)

const (
	// Root is the path of the top of a folder tree.
	Root = "/"
	// Parent is the name of the synthetic entry pointing at a directory's parent.
	Parent = ".."
	// Separator separates path components.
	Separator = "/"
)

// Normalize returns the canonical form of p: absolute, cleaned, no
// trailing separator. The empty string normalizes to Root.
func Normalize(p string) string {
	if p == "" {
		return Root
	}
	if !strings.HasPrefix(p, Separator) {
		p = Separator + p
	}
	return path.Clean(p)
}

// IsRoot reports whether p is the root path.
func IsRoot(p string) bool {
	return Normalize(p) == Root
}

// IsParent reports whether name is the synthetic parent entry name.
func IsParent(name string) bool {
	return name == Parent
}

// ParentOf returns the parent directory of p. The root is its own parent.
func ParentOf(p string) string {
	return path.Dir(Normalize(p))
}

// Name returns the last component of p. For the root it returns Root.
func Name(p string) string {
	return path.Base(Normalize(p))
}

// Join joins dir and name into a normalized path.
func Join(dir, name string) string {
	return Normalize(path.Join(Normalize(dir), name))
}
