// Package settings manages the client's device identity and its registry of
// folders, peer devices and discovery servers, persisted as JSON under the
// configuration directory.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const settingsFileName = "settings.json"

// FolderConfig registers one synchronized folder.
type FolderConfig struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Path  string `json:"path,omitempty"`
}

// DeviceConfig registers one peer device.
type DeviceConfig struct {
	DeviceID  DeviceID `json:"device_id"`
	Name      string   `json:"name,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

// Settings is the persisted client configuration.
type Settings struct {
	DeviceName string         `json:"device_name"`
	Folders    []FolderConfig `json:"folders"`
	Devices    []DeviceConfig `json:"devices"`
	Discovery  []string       `json:"discovery_servers,omitempty"`

	// LastPaths remembers the last browsed path per folder, restored on the
	// next session.
	LastPaths map[string]string `json:"last_paths,omitempty"`
}

// Manager loads, queries and atomically persists Settings.
type Manager struct {
	path string

	mu sync.Mutex
	s  Settings
}

// Open reads the settings file under dir, initializing defaults on first
// run. The file is created on the first Update.
func Open(dir string) (*Manager, error) {
	m := &Manager{path: filepath.Join(dir, settingsFileName)}

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		host, _ := os.Hostname()
		m.s = Settings{DeviceName: host, LastPaths: make(map[string]string)}
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &m.s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if m.s.LastPaths == nil {
		m.s.LastPaths = make(map[string]string)
	}
	return m, nil
}

// Get returns a copy of the current settings.
func (m *Manager) Get() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyLocked()
}

func (m *Manager) copyLocked() Settings {
	s := m.s
	s.Folders = append([]FolderConfig(nil), m.s.Folders...)
	s.Devices = append([]DeviceConfig(nil), m.s.Devices...)
	s.Discovery = append([]string(nil), m.s.Discovery...)
	s.LastPaths = make(map[string]string, len(m.s.LastPaths))
	for k, v := range m.s.LastPaths {
		s.LastPaths[k] = v
	}
	return s
}

// Update applies fn to the settings and persists the result atomically.
func (m *Manager) Update(fn func(*Settings)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn(&m.s)
	if m.s.LastPaths == nil {
		m.s.LastPaths = make(map[string]string)
	}
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(m.s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := writeFileAtomic(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Folder returns the registered folder with the given ID.
func (m *Manager) Folder(id string) (FolderConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.s.Folders {
		if f.ID == id {
			return f, true
		}
	}
	return FolderConfig{}, false
}

// AddFolder registers a folder, replacing any prior entry with the same ID.
func (m *Manager) AddFolder(fc FolderConfig) error {
	return m.Update(func(s *Settings) {
		for i, f := range s.Folders {
			if f.ID == fc.ID {
				s.Folders[i] = fc
				return
			}
		}
		s.Folders = append(s.Folders, fc)
	})
}

// AddDevice registers a peer device, replacing any prior entry with the same ID.
func (m *Manager) AddDevice(dc DeviceConfig) error {
	return m.Update(func(s *Settings) {
		for i, d := range s.Devices {
			if d.DeviceID == dc.DeviceID {
				s.Devices[i] = dc
				return
			}
		}
		s.Devices = append(s.Devices, dc)
	})
}

// LastPath returns the last browsed path saved for the folder, or "".
func (m *Manager) LastPath(folder string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.LastPaths[folder]
}

// SetLastPath saves the last browsed path for the folder.
func (m *Manager) SetLastPath(folder, path string) error {
	return m.Update(func(s *Settings) {
		s.LastPaths[folder] = path
	})
}
