package scanner

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peerbeam/peerbeam/pkg/index"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func newTestScanner(t *testing.T, dir string, store index.Store) *Scanner {
	t.Helper()
	sc, err := New(Config{Folder: "docs", Dir: dir, Store: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sc
}

func TestNewValidation(t *testing.T) {
	store := index.NewMemoryStore()

	if _, err := New(Config{Dir: "/tmp", Store: store}); err == nil {
		t.Error("expected an error without a folder")
	}
	if _, err := New(Config{Folder: "docs", Store: store}); err == nil {
		t.Error("expected an error without a dir")
	}
	if _, err := New(Config{Folder: "docs", Dir: "/tmp"}); err == nil {
		t.Error("expected an error without a store")
	}
}

func TestScanIndexesTree(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "readme.txt"), "hello world!")
	writeFile(t, filepath.Join(dir, "b.txt"), "x")

	store := index.NewMemoryStore()
	sc := newTestScanner(t, dir, store)
	ctx := context.Background()

	res, err := sc.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Indexed != 3 || res.Updated != 3 || res.Removed != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if !res.Changed() {
		t.Error("expected the first scan to report a change")
	}

	rec, err := store.GetFile(ctx, "docs", "/a/readme.txt")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if rec.IsDir || rec.Size != 12 || rec.Version != 1 || rec.BlockCount != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if want := fmt.Sprintf("%x", sha256.Sum256([]byte("hello world!"))); rec.Hash != want {
		t.Errorf("expected hash %s, got %s", want, rec.Hash)
	}
	if rec.ModTime.IsZero() {
		t.Error("expected a modification time")
	}

	dirRec, err := store.GetFile(ctx, "docs", "/a")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if !dirRec.IsDir || dirRec.Version != 1 {
		t.Errorf("unexpected directory record: %+v", dirRec)
	}

	count, err := store.FileCount(ctx, "docs")
	if err != nil {
		t.Fatalf("FileCount: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 live records, got %d", count)
	}
}

func TestRescanWithoutChangesIsANoOp(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "readme.txt"), "hello")
	writeFile(t, filepath.Join(dir, "b.txt"), "x")

	store := index.NewMemoryStore()
	sc := newTestScanner(t, dir, store)
	ctx := context.Background()

	if _, err := sc.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	res, err := sc.Scan(ctx)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if res.Changed() {
		t.Errorf("expected a no-op rescan, got %+v", res)
	}
	if res.Indexed != 3 {
		t.Errorf("expected 3 indexed entries, got %d", res.Indexed)
	}

	rec, err := store.GetFile(ctx, "docs", "/b.txt")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if rec.Version != 1 {
		t.Errorf("a no-op rescan bumped the version to %d", rec.Version)
	}
}

func TestRescanPicksUpModifications(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "note.txt"), "one")

	store := index.NewMemoryStore()
	sc := newTestScanner(t, dir, store)
	ctx := context.Background()

	if _, err := sc.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	writeFile(t, filepath.Join(dir, "note.txt"), "three!")
	res, err := sc.Scan(ctx)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if res.Updated != 1 || res.Removed != 0 {
		t.Errorf("unexpected result: %+v", res)
	}

	rec, err := store.GetFile(ctx, "docs", "/note.txt")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if rec.Version != 2 {
		t.Errorf("expected version 2, got %d", rec.Version)
	}
	if rec.Size != 6 {
		t.Errorf("expected size 6, got %d", rec.Size)
	}
}

func TestRescanTombstonesRemovedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep.txt"), "k")
	writeFile(t, filepath.Join(dir, "gone.txt"), "g")

	store := index.NewMemoryStore()
	sc := newTestScanner(t, dir, store)
	ctx := context.Background()

	if _, err := sc.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "gone.txt")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	res, err := sc.Scan(ctx)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if res.Removed != 1 || res.Indexed != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	if _, err := store.GetFile(ctx, "docs", "/gone.txt"); !errors.Is(err, index.ErrNotFound) {
		t.Errorf("expected ErrNotFound for the removed file, got %v", err)
	}
	count, err := store.FileCount(ctx, "docs")
	if err != nil {
		t.Fatalf("FileCount: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 live record, got %d", count)
	}
}

func TestRescanTombstonesVanishedSubtrees(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sub", "one.txt"), "1")
	writeFile(t, filepath.Join(dir, "sub", "two.txt"), "2")
	writeFile(t, filepath.Join(dir, "top.txt"), "t")

	store := index.NewMemoryStore()
	sc := newTestScanner(t, dir, store)
	ctx := context.Background()

	res, err := sc.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Indexed != 4 {
		t.Fatalf("expected 4 indexed entries, got %d", res.Indexed)
	}

	if err := os.RemoveAll(filepath.Join(dir, "sub")); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	res, err = sc.Scan(ctx)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	// The directory and both children are gone.
	if res.Removed != 3 || res.Indexed != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	for _, path := range []string{"/sub", "/sub/one.txt", "/sub/two.txt"} {
		if _, err := store.GetFile(ctx, "docs", path); !errors.Is(err, index.ErrNotFound) {
			t.Errorf("expected %s to be tombstoned, got %v", path, err)
		}
	}
	if _, err := store.GetFile(ctx, "docs", "/top.txt"); err != nil {
		t.Errorf("the surviving file was tombstoned: %v", err)
	}
}

func TestSkipHashes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "big.bin"), "0123456789")

	store := index.NewMemoryStore()
	sc, err := New(Config{Folder: "docs", Dir: dir, Store: store, SkipHashes: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if _, err := sc.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	rec, err := store.GetFile(ctx, "docs", "/big.bin")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if rec.Hash != "" {
		t.Errorf("expected no hash, got %q", rec.Hash)
	}
	if rec.Size != 10 || rec.BlockCount != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}

	res, err := sc.Scan(ctx)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if res.Changed() {
		t.Errorf("expected a no-op rescan without hashes, got %+v", res)
	}
}

func TestScanPublishesChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")

	changes := index.NewBroadcaster()
	received := make(chan index.Change, 4)
	unsubscribe := changes.SubscribeChanges(func(c index.Change) {
		received <- c
	})
	defer unsubscribe()

	store := index.NewMemoryStore()
	sc, err := New(Config{Folder: "docs", Dir: dir, Store: store, Changes: changes})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if _, err := sc.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	select {
	case c := <-received:
		if c.Folder != "docs" {
			t.Errorf("expected a change for docs, got %q", c.Folder)
		}
	case <-time.After(time.Second):
		t.Fatal("the first scan published no change")
	}

	// A scan that modifies nothing publishes nothing.
	if _, err := sc.Scan(ctx); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	select {
	case <-received:
		t.Error("a no-op rescan published a change")
	default:
	}
}
