// Package capabilities detects the external executors Harbormaster depends
// on. The reconciler refuses to start when a required executor is missing,
// which surfaces installation problems before any application is touched.
package capabilities

// Capability names
const (
	CapabilityGit           = "git"
	CapabilityDocker        = "docker"
	CapabilityDockerCompose = "docker-compose"
)

// Capability represents a system capability that can be detected
type Capability interface {
	// Name returns the name of the capability
	Name() string
	// Version returns the version of the capability
	Version() string
	// IsAvailable returns whether the capability is available
	IsAvailable() bool
}

// Required returns the capabilities a reconciliation run depends on.
func Required() []Capability {
	return []Capability{
		NewGitCapability(),
		NewDockerCapability(),
		NewDockerComposeCapability(),
	}
}

// Missing probes every required capability and returns the names of those
// that are unavailable.
func Missing() []string {
	var missing []string
	for _, c := range Required() {
		if !c.IsAvailable() {
			missing = append(missing, c.Name())
		}
	}
	return missing
}
