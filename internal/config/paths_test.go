package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPathsLayout(t *testing.T) {
	p := NewPaths("/srv/hm", "/etc/hm")

	assert.Equal(t, "/srv/hm/data", p.DataDir)
	assert.Equal(t, "/srv/hm/cache", p.CacheDir)
	assert.Equal(t, "/srv/hm/repos", p.ReposDir)
	assert.Equal(t, "/srv/hm/archives", p.ArchivesDir)
	assert.Equal(t, "/srv/hm/.harbormaster.state", p.StateFile)
	assert.Equal(t, "/etc/hm", p.ConfigDir)
}

func TestCreateDirectories(t *testing.T) {
	workDir := t.TempDir()
	p := NewPaths(workDir, workDir)
	require.NoError(t, p.CreateDirectories())

	for _, dir := range []string{p.DataDir, p.CacheDir, p.ReposDir, p.ArchivesDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestForAppSharesCheckoutByURL(t *testing.T) {
	p := NewPaths("/srv/hm", "/etc/hm")

	first := p.ForApp("app-one", "https://git.example.com/shared.git")
	second := p.ForApp("app-two", "https://git.example.com/shared.git")
	other := p.ForApp("app-three", "https://git.example.com/other.git")

	assert.Equal(t, filepath.Join("/srv/hm/data", "app-one"), first.DataDir)
	assert.Equal(t, filepath.Join("/srv/hm/cache", "app-one"), first.CacheDir)

	// Same URL, same checkout; different URL, different checkout.
	assert.Equal(t, first.RepoDir, second.RepoDir)
	assert.NotEqual(t, first.RepoDir, other.RepoDir)
}

func TestRepoKeyIsStable(t *testing.T) {
	url := "https://git.example.com/myapp.git"
	assert.Equal(t, RepoKey(url), RepoKey(url))
	assert.NotEqual(t, RepoKey(url), RepoKey(url+"#"))
	assert.Len(t, RepoKey(url), 24)
}
