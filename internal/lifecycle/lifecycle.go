// Package lifecycle owns the per-application directories and the host-level
// archive area. Data directories are never deleted by the engine: when an
// application leaves the manifest its data is moved into the archive area
// under a timestamped name, and only then is its persisted state forgotten.
package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"harbormaster/internal/config"
	"harbormaster/internal/state"
	"harbormaster/pkg/log"
)

// Manager reconciles the on-disk directory set against the manifest.
type Manager struct {
	paths config.Paths
	now   func() time.Time
}

func NewManager(paths config.Paths) *Manager {
	return &Manager{paths: paths, now: time.Now}
}

// EnsureAppDirs creates the application's data and cache directories if they
// are absent. Existing contents are never touched.
func (m *Manager) EnsureAppDirs(app *config.AppSpec) (config.AppPaths, error) {
	dirs := m.paths.ForApp(app.Name, app.URL)
	for _, dir := range []string{dirs.DataDir, dirs.CacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return config.AppPaths{}, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return dirs, nil
}

// ReconcileRemoved retires every application that is present on disk or in
// the persisted state but absent from the manifest: first its data directory
// is archived, then its cache deleted, then its state entry forgotten.
// Failures are reported per application and never drop data.
func (m *Manager) ReconcileRemoved(current map[string]struct{}, st *state.State) []error {
	var errs []error
	for _, name := range m.removedNames(current, st) {
		if err := m.retire(name, st); err != nil {
			errs = append(errs, fmt.Errorf("failed to retire %s: %w", name, err))
		}
	}
	return errs
}

// removedNames collects application names known from a previous run (state
// entries plus stray data/cache directories) that the manifest no longer
// declares.
func (m *Manager) removedNames(current map[string]struct{}, st *state.State) []string {
	known := map[string]struct{}{}
	for _, name := range st.Names() {
		known[name] = struct{}{}
	}
	for _, root := range []string{m.paths.DataDir, m.paths.CacheDir} {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				known[e.Name()] = struct{}{}
			}
		}
	}

	var removed []string
	for name := range known {
		if _, ok := current[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	return removed
}

func (m *Manager) retire(name string, st *state.State) error {
	dataDir := filepath.Join(m.paths.DataDir, name)
	if info, err := os.Stat(dataDir); err == nil && info.IsDir() {
		dest := m.archiveDestination(name)
		if err := os.Rename(dataDir, dest); err != nil {
			// The data directory stays where it is; the entry is kept so
			// the archive is retried on the next run.
			return fmt.Errorf("failed to archive data directory: %w", err)
		}
		log.Info("archived data directory", "app", name, "archive", dest)
	}

	cacheDir := filepath.Join(m.paths.CacheDir, name)
	if err := os.RemoveAll(cacheDir); err != nil {
		return fmt.Errorf("failed to delete cache directory: %w", err)
	}

	st.Forget(name)
	log.Info("retired application", "app", name)
	return nil
}

// archiveDestination picks a timestamped, collision-free destination under
// the archive area.
func (m *Manager) archiveDestination(name string) string {
	stamp := m.now().Format("2006-01-02_15-04-05")
	dest := filepath.Join(m.paths.ArchivesDir, fmt.Sprintf("%s-%s", name, stamp))
	candidate := dest
	for i := 2; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s.%d", dest, i)
	}
}

// ReconcileCheckouts removes checkouts that no application in the manifest
// references anymore. inUse holds the checkout directory names (URL keys)
// that must be kept.
func (m *Manager) ReconcileCheckouts(inUse map[string]struct{}) []error {
	entries, err := os.ReadDir(m.paths.ReposDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return []error{fmt.Errorf("failed to read checkout directory: %w", err)}
	}

	var errs []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := inUse[e.Name()]; ok {
			continue
		}
		path := filepath.Join(m.paths.ReposDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove stale checkout %s: %w", path, err))
			continue
		}
		log.Info("removed stale checkout", "dir", path)
	}
	return errs
}
