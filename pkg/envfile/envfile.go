// Package envfile reads and writes the variable files Harbormaster accepts
// for environments and replacements. Two formats are supported, selected by
// file extension: a flat YAML mapping for .yml/.yaml files, and
// newline-delimited key=value pairs for everything else.
package envfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// Parse reads the variable file at path and returns its key/value pairs.
// All values are coerced to strings.
func Parse(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variable file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		vars, err := parseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("variable file %s: %w", path, err)
		}
		return vars, nil
	default:
		vars, err := parseDotEnv(data)
		if err != nil {
			return nil, fmt.Errorf("variable file %s: %w", path, err)
		}
		return vars, nil
	}
}

// parseDotEnv parses newline-delimited key=value pairs. Empty lines are
// skipped; a non-empty line without an equals sign is an error.
func parseDotEnv(data []byte) (map[string]string, error) {
	vars := make(map[string]string)
	for i, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("line %d contains no equals sign (=)", i+1)
		}
		vars[key] = value
	}
	return vars, nil
}

// parseYAML parses a single-level YAML mapping. Scalar values are coerced to
// strings; nested collections are rejected.
func parseYAML(data []byte) (map[string]string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("not valid YAML: %w", err)
	}

	vars := make(map[string]string, len(raw))
	for key, value := range raw {
		switch value.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("key %q does not hold a scalar value", key)
		case nil:
			vars[key] = ""
		default:
			vars[key] = fmt.Sprintf("%v", value)
		}
	}
	return vars, nil
}

// Save writes the provided key/value pairs to a file in .env format.
//
// Variable names are sorted alphabetically so the output is deterministic.
// Values containing whitespace or `#` characters are quoted to preserve
// their contents, with internal quotes and backslashes escaped.
func Save(path string, vars map[string]string) error {
	if len(vars) == 0 {
		return nil // Nothing to write.
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create env directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create env file %s: %w", path, err)
	}
	defer f.Close()

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := vars[k]
		if strings.ContainsAny(v, " \t\n\r#=") {
			v = strings.ReplaceAll(v, `\`, `\\`)
			v = strings.ReplaceAll(v, `"`, `\"`)
			v = strings.ReplaceAll(v, "\r\n", `\n`)
			v = strings.ReplaceAll(v, "\n", `\n`)
			v = fmt.Sprintf("\"%s\"", v)
		}
		if _, err := fmt.Fprintf(f, "%s=%s\n", k, v); err != nil {
			return fmt.Errorf("failed to write env variable %s: %w", k, err)
		}
	}

	return nil
}
