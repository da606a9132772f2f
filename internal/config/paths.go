package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

const (
	dataDirName     = "data"
	cacheDirName    = "cache"
	reposDirName    = "repos"
	archivesDirName = "archives"
	stateFileName   = ".harbormaster.state"
)

// Paths holds the working-tree layout for a run. One instance covers the
// whole run; per-app paths are derived with ForApp.
type Paths struct {
	WorkDir string
	// ConfigDir is the directory the manifest lives in. Relative
	// environment/replacement file paths resolve against it.
	ConfigDir string

	DataDir     string
	CacheDir    string
	ReposDir    string
	ArchivesDir string
	StateFile   string
}

// AppPaths holds the resolved directories for a single application.
type AppPaths struct {
	DataDir  string
	CacheDir string
	RepoDir  string
}

// NewPaths derives the working paths from a base working directory.
func NewPaths(workDir, configDir string) Paths {
	return Paths{
		WorkDir:     workDir,
		ConfigDir:   configDir,
		DataDir:     filepath.Join(workDir, dataDirName),
		CacheDir:    filepath.Join(workDir, cacheDirName),
		ReposDir:    filepath.Join(workDir, reposDirName),
		ArchivesDir: filepath.Join(workDir, archivesDirName),
		StateFile:   filepath.Join(workDir, stateFileName),
	}
}

// CreateDirectories creates all the run-level directories.
func (p Paths) CreateDirectories() error {
	for _, dir := range []string{p.DataDir, p.CacheDir, p.ReposDir, p.ArchivesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ForApp resolves the directory set for one application. The checkout is
// keyed by source URL, not by app name, so applications sharing a URL share
// one checkout.
func (p Paths) ForApp(name, url string) AppPaths {
	return AppPaths{
		DataDir:  filepath.Join(p.DataDir, name),
		CacheDir: filepath.Join(p.CacheDir, name),
		RepoDir:  filepath.Join(p.ReposDir, RepoKey(url)),
	}
}

// RepoKey maps a source URL to its checkout directory name. The digest keeps
// the name filesystem-safe regardless of what the URL contains.
func RepoKey(url string) string {
	sum := blake3.Sum256([]byte(url))
	return hex.EncodeToString(sum[:12])
}
