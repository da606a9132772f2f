package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"harbormaster/internal/compose"
	"harbormaster/internal/config"
	"harbormaster/internal/executil"
	"harbormaster/internal/render"
	"harbormaster/pkg/log"
)

// testAppName is the compose project used for dry runs.
const testAppName = "test_app"

// newTestCommand builds the `test` mode: render and start a single app in a
// throwaway working directory, without a manifest, checkout or persisted
// state, so a compose setup can be tried before committing it to the
// manifest.
func newTestCommand() *cobra.Command {
	var (
		workingDir       string
		envVars          []string
		envFile          string
		replacements     []string
		replacementsFile string
		composeFiles     []string
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Dry-run a single application from the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workingDir == "" {
				dir, err := os.MkdirTemp("", "hm_")
				if err != nil {
					return fmt.Errorf("failed to create temporary working directory: %w", err)
				}
				workingDir = dir
			}

			cwd, err := os.Getwd()
			if err != nil {
				return err
			}

			inlineEnv, err := parseKeyValues(envVars)
			if err != nil {
				return fmt.Errorf("invalid --environment value: %w", err)
			}
			inlineRepl, err := parseKeyValues(replacements)
			if err != nil {
				return fmt.Errorf("invalid --replacement value: %w", err)
			}

			if len(composeFiles) == 0 {
				composeFiles = []string{"docker-compose.yml"}
			}
			fragments := make(config.StringList, 0, len(composeFiles))
			for _, f := range composeFiles {
				if !filepath.IsAbs(f) {
					f = filepath.Join(cwd, f)
				}
				fragments = append(fragments, f)
			}

			app := &config.AppSpec{
				Name:             testAppName,
				URL:              "https://your.git/repo/url/here",
				Branch:           config.DefaultBranch,
				ComposeConfig:    fragments,
				Environment:      inlineEnv,
				EnvironmentFile:  envFile,
				Replacements:     inlineRepl,
				ReplacementsFile: replacementsFile,
			}

			paths := config.NewPaths(workingDir, cwd)
			if err := paths.CreateDirectories(); err != nil {
				return err
			}
			// The current directory stands in for the checkout.
			dirs := config.AppPaths{
				DataDir:  filepath.Join(paths.DataDir, app.Name),
				CacheDir: filepath.Join(paths.CacheDir, app.Name),
				RepoDir:  cwd,
			}
			for _, dir := range []string{dirs.DataDir, dirs.CacheDir} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}

			log.Info("starting app in test mode", "workdir", workingDir)

			artifact, err := render.NewRenderer(cwd).Render(app, dirs)
			if err != nil {
				return err
			}
			stack, err := compose.BuildStack(app.Name, cwd, artifact)
			if err != nil {
				return err
			}
			defer cleanupStackFiles(cwd, stack)

			runner := executil.System{}
			if err := compose.NewController(runner).Up(cmd.Context(), stack, false); err != nil {
				return err
			}

			return printSuggestedStanza(cmd, app, composeFiles)
		},
	}

	cmd.Flags().StringVarP(&workingDir, "working-dir", "d", "", "the root directory to work in (a temporary directory if unset)")
	cmd.Flags().StringArrayVarP(&envVars, "environment", "e", nil, "an environment variable (can be used multiple times)")
	cmd.Flags().StringVarP(&envFile, "environment-file", "v", "", "the environment file to use")
	cmd.Flags().StringArrayVarP(&replacements, "replacement", "r", nil, "a replacement variable (can be used multiple times)")
	cmd.Flags().StringVarP(&replacementsFile, "replacements-file", "p", "", "the replacements file to use")
	cmd.Flags().StringArrayVarP(&composeFiles, "compose-file", "c", nil, "the compose file to use (can be used multiple times)")
	return cmd
}

// parseKeyValues turns repeated KEY=value flags into a map.
func parseKeyValues(options []string) (config.StringMap, error) {
	vars := config.StringMap{}
	for _, option := range options {
		key, value, found := strings.Cut(option, "=")
		if !found {
			return nil, fmt.Errorf("%q is missing an equals sign (=)", option)
		}
		vars[key] = value
	}
	return vars, nil
}

func cleanupStackFiles(dir string, stack compose.Stack) {
	for _, f := range stack.Files {
		_ = os.Remove(filepath.Join(dir, f))
	}
	if stack.EnvFile != "" {
		_ = os.Remove(filepath.Join(dir, stack.EnvFile))
	}
}

// printSuggestedStanza emits a ready-to-paste manifest stanza for the app
// that was just dry-run.
func printSuggestedStanza(cmd *cobra.Command, app *config.AppSpec, composeFiles []string) error {
	stanza := map[string]any{
		"url":    app.URL,
		"branch": app.Branch,
	}
	names := make([]string, 0, len(composeFiles))
	for _, f := range composeFiles {
		names = append(names, filepath.Base(f))
	}
	stanza["compose_config"] = names
	if len(app.Environment) > 0 {
		stanza["environment"] = map[string]string(app.Environment)
	}
	if app.EnvironmentFile != "" {
		stanza["environment_file"] = "some_dir/" + filepath.Base(app.EnvironmentFile)
	}
	if len(app.Replacements) > 0 {
		stanza["replacements"] = map[string]string(app.Replacements)
	}
	if app.ReplacementsFile != "" {
		stanza["replacements_file"] = "some_dir/" + filepath.Base(app.ReplacementsFile)
	}

	out, err := yaml.Marshal(map[string]any{"apps": map[string]any{"myapp": stanza}})
	if err != nil {
		return fmt.Errorf("failed to render suggested stanza: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "\nRun finished. If everything went well, you can use this stanza in your manifest:")
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}
