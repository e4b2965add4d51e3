// Package prefs persists dashboard preferences in a small YAML file.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Logs panel height bounds. A stored value at or below MinLogsPanelHeight is
// treated as unset.
const (
	DefaultLogsPanelHeight = 45
	MinLogsPanelHeight     = 80
)

// Prefs is the on-disk document.
type Prefs struct {
	LogsPanelHeight int `yaml:"logs_panel_height"`
}

// Store reads and writes Prefs at a fixed path.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store for path. The file need not exist.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load reads the preferences. A missing file yields defaults; an unreadable
// or invalid one yields defaults and the error.
func (s *Store) Load() (Prefs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return normalize(Prefs{}), nil
	}
	if err != nil {
		return normalize(Prefs{}), fmt.Errorf("read prefs: %w", err)
	}

	var p Prefs
	if err := yaml.Unmarshal(data, &p); err != nil {
		return normalize(Prefs{}), fmt.Errorf("parse prefs: %w", err)
	}
	return normalize(p), nil
}

// LogsPanelHeight returns the stored height or the default.
func (s *Store) LogsPanelHeight() int {
	p, _ := s.Load()
	return p.LogsPanelHeight
}

// SetLogsPanelHeight stores h.
func (s *Store) SetLogsPanelHeight(h int) error {
	p, _ := s.Load()
	p.LogsPanelHeight = h
	return s.Save(p)
}

// Save writes p atomically.
func (s *Store) Save(p Prefs) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp prefs: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}

func normalize(p Prefs) Prefs {
	if p.LogsPanelHeight <= MinLogsPanelHeight {
		p.LogsPanelHeight = DefaultLogsPanelHeight
	}
	return p
}
