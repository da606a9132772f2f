// Package render turns an application's configuration fragments into the
// final artifact handed to the stack executor: substituted fragment contents
// plus the resolved environment. Rendering is pure with respect to its
// inputs, which is what makes fingerprinting meaningful.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"harbormaster/internal/config"
	"harbormaster/pkg/envfile"
	"harbormaster/pkg/template"
)

// Built-in replacement names, always bound to the app's resolved directories.
const (
	BuiltinDataDir  = "DATA_DIR"
	BuiltinCacheDir = "CACHE_DIR"
	BuiltinRepoDir  = "REPO_DIR"
)

// File is one rendered configuration fragment.
type File struct {
	// Source is the fragment path as declared in the manifest.
	Source string
	// Content is the fragment text after token substitution.
	Content string
}

// Artifact is the rendered deployment input for one application.
type Artifact struct {
	// Files are the rendered fragments in manifest-declared order.
	Files []File
	// Environment is the resolved environment mapping (inline wins over
	// file-provided values).
	Environment map[string]string
	// Replacements is the resolved replacement mapping, including the
	// built-in directory values (inline > file > built-ins).
	Replacements map[string]string
}

// ExecutorEnv returns the process environment entries injected into every
// stack executor invocation: the resolved environment verbatim, plus the
// built-in directories under HM_-prefixed aliases. The replacement mechanism
// is the canonical source for the built-ins; the environment aliases exist so
// compose files can also reach them through ordinary variable interpolation.
func (a *Artifact) ExecutorEnv() map[string]string {
	env := make(map[string]string, len(a.Environment)+3)
	for k, v := range a.Environment {
		env[k] = v
	}
	for _, name := range []string{BuiltinDataDir, BuiltinCacheDir, BuiltinRepoDir} {
		if v, ok := a.Replacements[name]; ok {
			env["HM_"+name] = v
		}
	}
	return env
}

// Renderer resolves variables and substitutes replacement tokens.
type Renderer struct {
	// configDir anchors relative environment/replacement file paths.
	configDir string
}

func NewRenderer(configDir string) *Renderer {
	return &Renderer{configDir: configDir}
}

// Render produces the artifact for app, reading fragments from the checkout
// in dirs.RepoDir. Identical inputs always produce identical artifacts.
func (r *Renderer) Render(app *config.AppSpec, dirs config.AppPaths) (*Artifact, error) {
	environment, err := r.resolveVars(app.EnvironmentFile, app.Environment, nil)
	if err != nil {
		return nil, fmt.Errorf("environment for app %s: %w", app.Name, err)
	}

	builtins := map[string]string{
		BuiltinDataDir:  strings.TrimRight(dirs.DataDir, string(os.PathSeparator)),
		BuiltinCacheDir: strings.TrimRight(dirs.CacheDir, string(os.PathSeparator)),
		BuiltinRepoDir:  strings.TrimRight(dirs.RepoDir, string(os.PathSeparator)),
	}
	replacements, err := r.resolveVars(app.ReplacementsFile, app.Replacements, builtins)
	if err != nil {
		return nil, fmt.Errorf("replacements for app %s: %w", app.Name, err)
	}

	files := make([]File, 0, len(app.ComposeConfig))
	for _, fragment := range app.ComposeConfig {
		path := fragment
		if !filepath.IsAbs(path) {
			path = filepath.Join(dirs.RepoDir, fragment)
		}
		contents, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("fragment %s for app %s: %w", fragment, app.Name, err)
		}
		files = append(files, File{
			Source:  fragment,
			Content: template.Substitute(string(contents), replacements),
		})
	}

	return &Artifact{
		Files:        files,
		Environment:  environment,
		Replacements: replacements,
	}, nil
}

// resolveVars merges variable sources by precedence: inline > file > base.
func (r *Renderer) resolveVars(file string, inline map[string]string, base map[string]string) (map[string]string, error) {
	vars := make(map[string]string, len(inline)+len(base))
	for k, v := range base {
		vars[k] = v
	}
	if file != "" {
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(r.configDir, file)
		}
		fromFile, err := envfile.Parse(path)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			vars[k] = v
		}
	}
	for k, v := range inline {
		vars[k] = v
	}
	return vars, nil
}
