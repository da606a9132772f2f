// Package state persists the last-applied deployment identity of every
// application across runs. The state file is the engine's only cross-run
// memory: it must tolerate being absent (first run) and containing entries
// for applications that have since left the manifest.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"harbormaster/pkg/log"
)

const version = 1

// Entry records what was last applied for one application.
type Entry struct {
	// Fingerprint digests the rendered artifact and resolved environment.
	Fingerprint string `json:"fingerprint"`
	// Enabled is the enablement the entry was persisted with, used to
	// classify enable/disable transitions.
	Enabled bool `json:"enabled"`
	// Commit is the checkout revision the app was last deployed from.
	Commit string `json:"commit,omitempty"`

	DataDir  string `json:"data_dir"`
	CacheDir string `json:"cache_dir"`
	RepoDir  string `json:"repo_dir"`
}

// State is the persisted per-application state, loaded at run start and
// written back incrementally as applications are reconciled.
type State struct {
	path string

	Version int              `json:"version"`
	Apps    map[string]Entry `json:"apps"`
}

// Load reads the state file at path. A missing file yields an empty state; a
// corrupt file is treated the same way after a warning, since every entry can
// be reconstructed by a (worst case, restarting) reconciliation run.
func Load(path string) *State {
	s := &State{path: path, Version: version, Apps: map[string]Entry{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("failed to read state file, starting empty", "path", path, "error", err)
		}
		return s
	}

	if err := json.Unmarshal(data, s); err != nil {
		log.Warn("failed to parse state file, starting empty", "path", path, "error", err)
		return &State{path: path, Version: version, Apps: map[string]Entry{}}
	}
	if s.Apps == nil {
		s.Apps = map[string]Entry{}
	}
	s.Version = version
	return s
}

// Get returns the entry for name, if any.
func (s *State) Get(name string) (Entry, bool) {
	e, ok := s.Apps[name]
	return e, ok
}

// Set records the entry for name. The caller must Save to persist it.
func (s *State) Set(name string, e Entry) {
	s.Apps[name] = e
}

// Forget drops the entry for name. Callers must only do this after the
// application's directories have been archived or removed.
func (s *State) Forget(name string) {
	delete(s.Apps, name)
}

// Names returns all recorded application names in sorted order.
func (s *State) Names() []string {
	names := make([]string, 0, len(s.Apps))
	for name := range s.Apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes the state atomically so that an external kill never leaves a
// truncated state file behind.
func (s *State) Save() error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file %s: %w", s.path, err)
	}
	return nil
}
