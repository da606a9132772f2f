package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	artifact := &Artifact{
		Files:       []File{{Source: "docker-compose.yml", Content: "services: {}\n"}},
		Environment: map[string]string{"PORT": "8080", "DEBUG": "true"},
	}
	assert.Equal(t,
		Fingerprint("myapp", artifact, true),
		Fingerprint("myapp", artifact, true))
}

func TestFingerprintIgnoresEnvironmentOrder(t *testing.T) {
	files := []File{{Source: "docker-compose.yml", Content: "services: {}\n"}}
	a := &Artifact{Files: files, Environment: map[string]string{"A": "1", "B": "2", "C": "3"}}
	b := &Artifact{Files: files, Environment: map[string]string{"C": "3", "A": "1", "B": "2"}}

	assert.Equal(t, Fingerprint("myapp", a, true), Fingerprint("myapp", b, true))
}

func TestFingerprintIsSaltedByName(t *testing.T) {
	artifact := &Artifact{
		Files: []File{{Source: "docker-compose.yml", Content: "services: {}\n"}},
	}
	assert.NotEqual(t,
		Fingerprint("app-one", artifact, true),
		Fingerprint("app-two", artifact, true))
}

func TestFingerprintChangesWithInputs(t *testing.T) {
	base := &Artifact{
		Files:       []File{{Source: "docker-compose.yml", Content: "services: {}\n"}},
		Environment: map[string]string{"PORT": "8080"},
	}
	fp := Fingerprint("myapp", base, true)

	changedContent := &Artifact{
		Files:       []File{{Source: "docker-compose.yml", Content: "services:\n  web: {}\n"}},
		Environment: map[string]string{"PORT": "8080"},
	}
	assert.NotEqual(t, fp, Fingerprint("myapp", changedContent, true))

	changedEnv := &Artifact{
		Files:       base.Files,
		Environment: map[string]string{"PORT": "9090"},
	}
	assert.NotEqual(t, fp, Fingerprint("myapp", changedEnv, true))

	assert.NotEqual(t, fp, Fingerprint("myapp", base, false))
}

func TestFingerprintSeparatesAdjacentFields(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not collide.
	a := &Artifact{Files: []File{{Source: "ab", Content: "c"}}}
	b := &Artifact{Files: []File{{Source: "a", Content: "bc"}}}
	assert.NotEqual(t, Fingerprint("myapp", a, true), Fingerprint("myapp", b, true))
}

func TestFingerprintCoversUnreferencedReplacements(t *testing.T) {
	// A replacement change must read as changed even when no fragment
	// references the token, so the rendered content is identical.
	files := []File{{Source: "docker-compose.yml", Content: "image: nginx\n"}}
	a := &Artifact{Files: files, Replacements: map[string]string{"IMAGE": "nginx"}}
	b := &Artifact{Files: files, Replacements: map[string]string{"IMAGE": "redis"}}
	assert.NotEqual(t, Fingerprint("myapp", a, true), Fingerprint("myapp", b, true))

	added := &Artifact{Files: files, Replacements: map[string]string{"IMAGE": "nginx", "EXTRA": "x"}}
	assert.NotEqual(t, Fingerprint("myapp", a, true), Fingerprint("myapp", added, true))
}

func TestFingerprintIgnoresReplacementOrder(t *testing.T) {
	files := []File{{Source: "docker-compose.yml", Content: "services: {}\n"}}
	a := &Artifact{Files: files, Replacements: map[string]string{"A": "1", "B": "2", "C": "3"}}
	b := &Artifact{Files: files, Replacements: map[string]string{"C": "3", "A": "1", "B": "2"}}
	assert.Equal(t, Fingerprint("myapp", a, true), Fingerprint("myapp", b, true))
}
