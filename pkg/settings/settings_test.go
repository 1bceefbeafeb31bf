package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenFirstRun(t *testing.T) {
	dir := t.TempDir()

	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s := m.Get()
	host, _ := os.Hostname()
	if s.DeviceName != host {
		t.Errorf("expected device name %q, got %q", host, s.DeviceName)
	}
	if len(s.Folders) != 0 || len(s.Devices) != 0 {
		t.Errorf("expected empty registries, got %+v", s)
	}

	// Nothing is written until the first update.
	if _, err := os.Stat(filepath.Join(dir, "settings.json")); !os.IsNotExist(err) {
		t.Errorf("expected no settings file yet, got %v", err)
	}
}

func TestFolderRegistry(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := m.AddFolder(FolderConfig{ID: "docs", Label: "Documents", Path: "/srv/docs"}); err != nil {
		t.Fatalf("AddFolder: %v", err)
	}
	fc, ok := m.Folder("docs")
	if !ok || fc.Label != "Documents" {
		t.Fatalf("unexpected folder: %+v ok=%v", fc, ok)
	}
	if _, ok := m.Folder("ghost"); ok {
		t.Error("found a folder that was never added")
	}

	// Adding the same ID replaces the entry.
	if err := m.AddFolder(FolderConfig{ID: "docs", Label: "Docs v2"}); err != nil {
		t.Fatalf("AddFolder: %v", err)
	}
	if fc, _ := m.Folder("docs"); fc.Label != "Docs v2" {
		t.Errorf("expected the replaced label, got %q", fc.Label)
	}
	if n := len(m.Get().Folders); n != 1 {
		t.Errorf("expected 1 folder, got %d", n)
	}

	// The registry survives a reopen.
	m2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if fc, ok := m2.Folder("docs"); !ok || fc.Label != "Docs v2" {
		t.Errorf("folder lost across reopen: %+v ok=%v", fc, ok)
	}
}

func TestDeviceRegistry(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	dc := DeviceConfig{DeviceID: "ABCDEFG", Name: "laptop", Addresses: []string{"tcp://10.0.0.2:22000"}}
	if err := m.AddDevice(dc); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	if err := m.AddDevice(DeviceConfig{DeviceID: "ABCDEFG", Name: "laptop-renamed"}); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}

	s := m.Get()
	if len(s.Devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(s.Devices))
	}
	if s.Devices[0].Name != "laptop-renamed" {
		t.Errorf("expected the replaced name, got %q", s.Devices[0].Name)
	}
}

func TestLastPathRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got := m.LastPath("docs"); got != "" {
		t.Errorf("expected no saved path, got %q", got)
	}
	if err := m.SetLastPath("docs", "/a/sub"); err != nil {
		t.Fatalf("SetLastPath: %v", err)
	}
	if got := m.LastPath("docs"); got != "/a/sub" {
		t.Errorf("expected /a/sub, got %q", got)
	}

	m2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := m2.LastPath("docs"); got != "/a/sub" {
		t.Errorf("saved path lost across reopen, got %q", got)
	}
}

func TestGetReturnsACopy(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.AddFolder(FolderConfig{ID: "docs", Label: "Documents"}); err != nil {
		t.Fatalf("AddFolder: %v", err)
	}
	if err := m.SetLastPath("docs", "/a"); err != nil {
		t.Fatalf("SetLastPath: %v", err)
	}

	s := m.Get()
	s.Folders[0].Label = "mutated"
	s.LastPaths["docs"] = "/elsewhere"

	if fc, _ := m.Folder("docs"); fc.Label != "Documents" {
		t.Errorf("mutating the copy leaked into the manager: %q", fc.Label)
	}
	if got := m.LastPath("docs"); got != "/a" {
		t.Errorf("mutating the copy leaked into the manager: %q", got)
	}
}
