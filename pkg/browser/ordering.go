package browser

import (
	"sort"
	"strings"

	"github.com/peerbeam/peerbeam/pkg/models"
)

// Ordering reports whether a sorts before b in a directory listing.
type Ordering func(a, b models.FileRecord) bool

// AlphabeticalDirsFirst sorts directories before files, then by name,
// case-insensitively. It is the default ordering.
func AlphabeticalDirsFirst(a, b models.FileRecord) bool {
	if a.IsDir != b.IsDir {
		return a.IsDir
	}
	an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if an != bn {
		return an < bn
	}
	return a.Name < b.Name
}

// LastModifiedFirst sorts the most recently modified records first.
func LastModifiedFirst(a, b models.FileRecord) bool {
	if !a.ModTime.Equal(b.ModTime) {
		return a.ModTime.After(b.ModTime)
	}
	return AlphabeticalDirsFirst(a, b)
}

// LargestFirst sorts the biggest records first.
func LargestFirst(a, b models.FileRecord) bool {
	if a.Size != b.Size {
		return a.Size > b.Size
	}
	return AlphabeticalDirsFirst(a, b)
}

// sortListing sorts recs with ord, leaving a synthetic parent entry at the
// head in place.
func sortListing(recs []models.FileRecord, ord Ordering) {
	if len(recs) > 0 && recs[0].IsParent() {
		recs = recs[1:]
	}
	sort.SliceStable(recs, func(i, j int) bool { return ord(recs[i], recs[j]) })
}
