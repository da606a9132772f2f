package capabilities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGitVersion(t *testing.T) {
	version, ok := parseGitVersion("git version 2.43.0\n")
	assert.True(t, ok)
	assert.Equal(t, "2.43.0", version)

	_, ok = parseGitVersion("zsh: command not found: git")
	assert.False(t, ok)
	_, ok = parseGitVersion("")
	assert.False(t, ok)
}

func TestParseDockerVersion(t *testing.T) {
	version, ok := parseDockerVersion("Docker version 27.0.3, build 7d4bcd8\n")
	assert.True(t, ok)
	assert.Equal(t, "27.0.3", version)

	_, ok = parseDockerVersion("podman version 4.9.3")
	assert.False(t, ok)
}

func TestParseComposeVersion(t *testing.T) {
	version, ok := parseComposeVersion("2.27.0\n")
	assert.True(t, ok)
	assert.Equal(t, "2.27.0", version)

	_, ok = parseComposeVersion("  \n")
	assert.False(t, ok)
}

func TestRequiredCoversAllExecutors(t *testing.T) {
	var names []string
	for _, c := range Required() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{CapabilityGit, CapabilityDocker, CapabilityDockerCompose}, names)
}
