// Package config loads the desired-state manifest and derives the on-disk
// layout of the working directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// DefaultBranch is the reference synced when an app does not declare one.
const DefaultBranch = "master"

// defaultComposeFile is the conventional fragment name used when an app does
// not declare compose_config.
const defaultComposeFile = "docker-compose.yml"

// App names double as directory keys and compose project names, so they are
// restricted to names that are safe for both.
var appNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Manifest is the declarative desired state: the full set of applications
// this host should run, plus run-wide settings.
type Manifest struct {
	Config RunConfig           `yaml:"config"`
	Apps   map[string]*AppSpec `yaml:"apps"`
}

// RunConfig holds run-wide settings from the manifest's `config` stanza.
type RunConfig struct {
	// Prune requests a host-wide image prune after all applications have
	// been reconciled. Destructive, so it always runs last.
	Prune bool `yaml:"prune"`
}

// AppSpec is one declared deployable unit. The zero values of the optional
// fields are normalized during Load.
type AppSpec struct {
	// Name is the app's key in the manifest's apps mapping. It names the
	// app's directories and its compose project.
	Name string `yaml:"-"`

	URL    string `yaml:"url"`
	Branch string `yaml:"branch"`

	// ComposeConfig lists the configuration fragments in override order.
	// Accepts a single string or a list.
	ComposeConfig StringList `yaml:"compose_config"`

	Environment     StringMap `yaml:"environment"`
	EnvironmentFile string    `yaml:"environment_file"`

	Replacements     StringMap `yaml:"replacements"`
	ReplacementsFile string    `yaml:"replacements_file"`

	Enabled *bool `yaml:"enabled"`
}

// IsEnabled reports whether the app should be running. Apps are enabled
// unless the manifest says otherwise.
func (a *AppSpec) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// StringList accepts either a single YAML string or a sequence of strings.
type StringList []string

func (l *StringList) UnmarshalYAML(data []byte) error {
	var single string
	if err := yaml.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := yaml.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected a string or a list of strings: %w", err)
	}
	*l = many
	return nil
}

// StringMap is a flat mapping whose scalar values are coerced to strings, so
// manifests may write `PORT: 8080` without quoting.
type StringMap map[string]string

func (m *StringMap) UnmarshalYAML(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("expected a flat mapping: %w", err)
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		switch value.(type) {
		case map[string]any, []any:
			return fmt.Errorf("key %q must hold a scalar value", key)
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprintf("%v", value)
		}
	}
	*m = out
	return nil
}

// Load reads and validates the manifest at path. Unknown fields are
// rejected so that typos fail at load time instead of deep inside rendering.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.UnmarshalWithOptions(data, &m, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	for name, app := range m.Apps {
		if app == nil {
			return nil, fmt.Errorf("app %q has an empty stanza", name)
		}
		app.Name = name
		if err := app.normalize(); err != nil {
			return nil, fmt.Errorf("app %q: %w", name, err)
		}
	}

	return &m, nil
}

// AppNames returns the manifest's application names in sorted order so that
// every run processes applications deterministically.
func (m *Manifest) AppNames() []string {
	names := make([]string, 0, len(m.Apps))
	for name := range m.Apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *AppSpec) normalize() error {
	if !appNamePattern.MatchString(a.Name) {
		return fmt.Errorf("name must match %s", appNamePattern)
	}
	if a.URL == "" {
		return fmt.Errorf("url is required")
	}
	if a.Branch == "" {
		a.Branch = DefaultBranch
	}
	if len(a.ComposeConfig) == 0 {
		a.ComposeConfig = StringList{defaultComposeFile}
	}
	for _, fragment := range a.ComposeConfig {
		if fragment == "" {
			return fmt.Errorf("compose_config entries must not be empty")
		}
		clean := filepath.Clean(filepath.FromSlash(fragment))
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
			return fmt.Errorf("compose_config entry %q escapes the checkout", fragment)
		}
	}
	if a.Environment == nil {
		a.Environment = StringMap{}
	}
	if a.Replacements == nil {
		a.Replacements = StringMap{}
	}
	return nil
}
