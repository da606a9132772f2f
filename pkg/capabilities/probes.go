package capabilities

import (
	"os/exec"
	"strings"
)

// binaryCapability probes one executable by running its version command and
// extracting the version from the output. All required capabilities share
// this shape; only the command and the parser differ.
type binaryCapability struct {
	name    string
	args    []string
	parse   func(output string) (version string, ok bool)
	version string
}

func (c *binaryCapability) Name() string {
	return c.name
}

func (c *binaryCapability) Version() string {
	return c.version
}

func (c *binaryCapability) IsAvailable() bool {
	output, err := exec.Command(c.args[0], c.args[1:]...).Output()
	if err != nil {
		return false
	}
	version, ok := c.parse(string(output))
	if !ok {
		return false
	}
	c.version = version
	return true
}

// NewGitCapability probes the git client the source synchronizer shells
// out to.
func NewGitCapability() Capability {
	return &binaryCapability{
		name:    CapabilityGit,
		args:    []string{"git", "--version"},
		parse:   parseGitVersion,
		version: "unknown",
	}
}

// NewDockerCapability probes the docker CLI.
func NewDockerCapability() Capability {
	return &binaryCapability{
		name:    CapabilityDocker,
		args:    []string{"docker", "--version"},
		parse:   parseDockerVersion,
		version: "unknown",
	}
}

// NewDockerComposeCapability probes the Compose v2 plugin. `version --short`
// prints the bare version, so any non-empty output means the plugin answers.
func NewDockerComposeCapability() Capability {
	return &binaryCapability{
		name:    CapabilityDockerCompose,
		args:    []string{"docker", "compose", "version", "--short"},
		parse:   parseComposeVersion,
		version: "unknown",
	}
}

// parseGitVersion extracts the version from "git version 2.43.0".
func parseGitVersion(output string) (string, bool) {
	fields := strings.Fields(output)
	if len(fields) < 3 || fields[0] != "git" || fields[1] != "version" {
		return "", false
	}
	return fields[2], true
}

// parseDockerVersion extracts the version from
// "Docker version 27.0.3, build 7d4bcd8".
func parseDockerVersion(output string) (string, bool) {
	fields := strings.Fields(output)
	if len(fields) < 3 || fields[0] != "Docker" || fields[1] != "version" {
		return "", false
	}
	return strings.TrimSuffix(fields[2], ","), true
}

func parseComposeVersion(output string) (string, bool) {
	version := strings.TrimSpace(output)
	return version, version != ""
}
