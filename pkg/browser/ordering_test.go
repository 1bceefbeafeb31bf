package browser

import (
	"testing"
	"time"

	"github.com/peerbeam/peerbeam/pkg/models"
)

func names(recs []models.FileRecord) []string {
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i] = rec.Name
	}
	return out
}

func assertOrder(t *testing.T, recs []models.FileRecord, want []string) {
	t.Helper()
	got := names(recs)
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestAlphabeticalDirsFirst(t *testing.T) {
	day := 24 * time.Hour
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []models.FileRecord{
		{Name: "b.txt", Path: "/b.txt", Size: 5, ModTime: base.Add(2 * day)},
		{Name: "Zoo", Path: "/Zoo", IsDir: true, ModTime: base},
		{Name: "A.txt", Path: "/A.txt", Size: 50, ModTime: base.Add(day)},
		{Name: "apple", Path: "/apple", IsDir: true, ModTime: base.Add(3 * day)},
	}

	sortListing(recs, AlphabeticalDirsFirst)
	assertOrder(t, recs, []string{"apple", "Zoo", "A.txt", "b.txt"})
}

func TestLastModifiedFirst(t *testing.T) {
	day := 24 * time.Hour
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []models.FileRecord{
		{Name: "old.txt", Path: "/old.txt", ModTime: base},
		{Name: "new.txt", Path: "/new.txt", ModTime: base.Add(2 * day)},
		{Name: "mid", Path: "/mid", IsDir: true, ModTime: base.Add(day)},
	}

	sortListing(recs, LastModifiedFirst)
	assertOrder(t, recs, []string{"new.txt", "mid", "old.txt"})
}

func TestLargestFirst(t *testing.T) {
	recs := []models.FileRecord{
		{Name: "small.txt", Path: "/small.txt", Size: 1},
		{Name: "big.txt", Path: "/big.txt", Size: 1000},
		{Name: "dir", Path: "/dir", IsDir: true},
		{Name: "mid.txt", Path: "/mid.txt", Size: 10},
	}

	sortListing(recs, LargestFirst)
	// Directories carry size zero and sort last.
	assertOrder(t, recs, []string{"big.txt", "mid.txt", "small.txt", "dir"})
}

func TestSortListingPinsParentEntry(t *testing.T) {
	recs := []models.FileRecord{
		models.ParentRecord("docs"),
		{Name: "zebra.txt", Path: "/a/zebra.txt", Folder: "docs"},
		{Name: "alpha.txt", Path: "/a/alpha.txt", Folder: "docs"},
	}

	sortListing(recs, AlphabeticalDirsFirst)
	assertOrder(t, recs, []string{"..", "alpha.txt", "zebra.txt"})

	// Without a parent at the head everything is fair game.
	recs = []models.FileRecord{
		{Name: "zebra.txt", Path: "/a/zebra.txt"},
		{Name: "alpha.txt", Path: "/a/alpha.txt"},
	}
	sortListing(recs, AlphabeticalDirsFirst)
	assertOrder(t, recs, []string{"alpha.txt", "zebra.txt"})
}
