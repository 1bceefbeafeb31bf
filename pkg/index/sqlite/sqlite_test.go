package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/peerbeam/peerbeam/pkg/index"
	"github.com/peerbeam/peerbeam/pkg/models"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_UpsertAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	mod := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	rec := models.FileRecord{
		Folder:     "docs",
		Path:       "/a/readme.txt",
		Size:       1234,
		ModTime:    mod,
		Hash:       "deadbeef",
		BlockCount: 1,
		Version:    1,
	}
	if err := s.UpsertFile(ctx, rec); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	got, err := s.GetFile(ctx, "docs", "/a/readme.txt")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if got.Size != 1234 || got.Hash != "deadbeef" || got.Version != 1 {
		t.Errorf("record mismatch: %+v", got)
	}
	if got.Name != "readme.txt" {
		t.Errorf("expected derived name readme.txt, got %q", got.Name)
	}
	if !got.ModTime.Equal(mod) {
		t.Errorf("mod time mismatch: got %v, want %v", got.ModTime, mod)
	}

	if _, err := s.GetFile(ctx, "docs", "/missing"); !errors.Is(err, index.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListChildrenOrderedByName(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	now := time.Now()
	for _, rec := range []models.FileRecord{
		{Folder: "docs", Path: "/zebra.txt", ModTime: now, Version: 1},
		{Folder: "docs", Path: "/alpha", IsDir: true, ModTime: now, Version: 1},
		{Folder: "docs", Path: "/alpha/inner.txt", ModTime: now, Version: 1},
		{Folder: "docs", Path: "/mango.txt", ModTime: now, Version: 1},
	} {
		if err := s.UpsertFile(ctx, rec); err != nil {
			t.Fatalf("UpsertFile(%s): %v", rec.Path, err)
		}
	}

	recs, err := s.ListChildren(ctx, "docs", "/")
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 root entries, got %d", len(recs))
	}
	want := []string{"alpha", "mango.txt", "zebra.txt"}
	for i, name := range want {
		if recs[i].Name != name {
			t.Errorf("entry %d: expected %q, got %q", i, name, recs[i].Name)
		}
	}

	inner, err := s.ListChildren(ctx, "docs", "/alpha")
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(inner) != 1 || inner[0].Path != "/alpha/inner.txt" {
		t.Errorf("unexpected listing under /alpha: %+v", inner)
	}
}

func TestStore_MarkDeletedAndRevive(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rec := models.FileRecord{
		Folder: "docs", Path: "/gone.txt", ModTime: time.Now(), Version: 1,
	}
	if err := s.UpsertFile(ctx, rec); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	if err := s.MarkDeleted(ctx, "docs", "/gone.txt"); err != nil {
		t.Fatalf("MarkDeleted: %v", err)
	}
	if _, err := s.GetFile(ctx, "docs", "/gone.txt"); !errors.Is(err, index.ErrNotFound) {
		t.Errorf("expected ErrNotFound after tombstone, got %v", err)
	}
	if err := s.MarkDeleted(ctx, "docs", "/gone.txt"); !errors.Is(err, index.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double tombstone, got %v", err)
	}

	rec.Version = 3
	if err := s.UpsertFile(ctx, rec); err != nil {
		t.Fatalf("UpsertFile revive: %v", err)
	}
	got, err := s.GetFile(ctx, "docs", "/gone.txt")
	if err != nil {
		t.Fatalf("GetFile after revive: %v", err)
	}
	if got.Version != 3 {
		t.Errorf("expected version 3 after revive, got %d", got.Version)
	}
}

func TestStore_FileCount(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	now := time.Now()
	for _, path := range []string{"/a.txt", "/b.txt", "/c.txt"} {
		if err := s.UpsertFile(ctx, models.FileRecord{
			Folder: "docs", Path: path, ModTime: now, Version: 1,
		}); err != nil {
			t.Fatalf("UpsertFile(%s): %v", path, err)
		}
	}

	n, err := s.FileCount(ctx, "docs")
	if err != nil {
		t.Fatalf("FileCount: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3, got %d", n)
	}

	if err := s.MarkDeleted(ctx, "docs", "/a.txt"); err != nil {
		t.Fatalf("MarkDeleted: %v", err)
	}
	n, err = s.FileCount(ctx, "docs")
	if err != nil {
		t.Fatalf("FileCount: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 after tombstone, got %d", n)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "index.db")
	ctx := context.Background()

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.UpsertFile(ctx, models.FileRecord{
		Folder: "docs", Path: "/kept.txt", ModTime: time.Now(), Version: 7,
	}); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetFile(ctx, "docs", "/kept.txt")
	if err != nil {
		t.Fatalf("GetFile after reopen: %v", err)
	}
	if got.Version != 7 {
		t.Errorf("expected version 7, got %d", got.Version)
	}
}
