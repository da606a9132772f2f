// Package compose is the stack controller: the only component that invokes
// the Docker stack executor. Everything else in the engine treats deployment
// as an opaque operation on a rendered artifact.
package compose

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"harbormaster/internal/executil"
	"harbormaster/internal/render"
	"harbormaster/pkg/envfile"
	"harbormaster/pkg/log"
)

// composeProjectLabel is the label Compose stamps on every container it
// creates, which lets us find a stack when its files are gone.
const composeProjectLabel = "com.docker.compose.project"

// Stack identifies one application's deployment to the executor.
type Stack struct {
	// Project is the compose project name (the application name).
	Project string
	// Dir is the working directory commands run in (the checkout).
	Dir string
	// Files are rendered compose file names relative to Dir, in override
	// order. Empty for operations that address the stack by project only.
	Files []string
	// EnvFile is an optional env file name relative to Dir.
	EnvFile string
	// Env holds process environment entries injected into the executor.
	Env map[string]string
}

// envSlice flattens Env into KEY=value form, sorted for deterministic
// executor invocations.
func (s Stack) envSlice() []string {
	if len(s.Env) == 0 {
		return nil
	}
	entries := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		entries = append(entries, k+"="+v)
	}
	sort.Strings(entries)
	return entries
}

// ContainerAPI is the subset of the Docker engine API the controller needs
// for its by-label fallback operations.
type ContainerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
}

// Controller invokes the external stack executor.
type Controller struct {
	runner executil.CommandRunner
	docker ContainerAPI // lazily created unless injected
}

func NewController(runner executil.CommandRunner) *Controller {
	return &Controller{runner: runner}
}

// BuildStack writes the rendered artifact into the checkout directory and
// returns the stack descriptor for it. Rendered fragments get per-project
// names so applications sharing a checkout never clobber each other.
func BuildStack(project, dir string, artifact *render.Artifact) (Stack, error) {
	s := Stack{
		Project: project,
		Dir:     dir,
		Env:     artifact.ExecutorEnv(),
	}

	for i, f := range artifact.Files {
		name := renderedFileName(project, i, f.Source)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(f.Content), 0o644); err != nil {
			return Stack{}, fmt.Errorf("failed to write rendered fragment %s: %w", name, err)
		}
		s.Files = append(s.Files, name)
	}

	if len(s.Env) > 0 {
		s.EnvFile = fmt.Sprintf(".hm-%s.env", project)
		if err := envfile.Save(filepath.Join(dir, s.EnvFile), s.Env); err != nil {
			return Stack{}, fmt.Errorf("failed to write env file: %w", err)
		}
	}

	return s, nil
}

// renderedFileName flattens a fragment path into a hidden per-project file
// name inside the checkout root.
func renderedFileName(project string, index int, source string) string {
	base := strings.ReplaceAll(filepath.ToSlash(source), "/", "-")
	return fmt.Sprintf(".hm-%s.%d.%s", project, index, base)
}

// composeArgs assembles the common `docker compose` argument prefix for a
// stack, followed by the operation.
func (c *Controller) composeArgs(s Stack, op ...string) []string {
	args := []string{"compose", "-p", s.Project}
	if s.EnvFile != "" {
		args = append(args, "--env-file", s.EnvFile)
	}
	for _, f := range s.Files {
		args = append(args, "-f", f)
	}
	return append(args, op...)
}

// Up starts the stack. Images that cannot be built locally are pulled first;
// a pull failure blocks the start of this application only. The subsequent
// `up` builds whatever is buildable, so building takes precedence over
// pulling for services with a build context.
func (c *Controller) Up(ctx context.Context, s Stack, detach bool) error {
	if len(s.Files) == 0 {
		return fmt.Errorf("cannot start %s: no rendered compose files", s.Project)
	}

	pullArgs := c.composeArgs(s, "pull", "--ignore-buildable")
	if output, err := c.runner.Run(ctx, s.Dir, s.envSlice(), "docker", pullArgs...); err != nil {
		return fmt.Errorf("docker compose pull failed for %s: %w: %s", s.Project, err, output)
	}

	upArgs := c.composeArgs(s, "up", "--remove-orphans", "--build")
	if !detach {
		upArgs = append(upArgs, "--abort-on-container-exit")
		return c.runner.RunAttached(ctx, s.Dir, s.envSlice(), "docker", upArgs...)
	}
	upArgs = append(upArgs, "--detach")

	output, err := c.runner.Run(ctx, s.Dir, s.envSlice(), "docker", upArgs...)
	if err != nil {
		return fmt.Errorf("docker compose up failed for %s: %w: %s", s.Project, err, output)
	}
	log.Debug("docker compose up finished", "project", s.Project, "output", string(output))
	return nil
}

// Down stops the stack. When the checkout directory has gone missing the
// stack is located through the engine API by its compose project label, so a
// manually deleted checkout cannot orphan running containers.
func (c *Controller) Down(ctx context.Context, s Stack) error {
	if info, err := os.Stat(s.Dir); err != nil || !info.IsDir() {
		log.Warn("checkout missing, stopping containers by project label", "project", s.Project)
		return c.stopByLabel(ctx, s.Project)
	}

	args := c.composeArgs(s, "down", "--remove-orphans")
	if output, err := c.runner.Run(ctx, s.Dir, s.envSlice(), "docker", args...); err != nil {
		return fmt.Errorf("docker compose down failed for %s: %w: %s", s.Project, err, output)
	}
	return nil
}

// Running reports whether any of the stack's services are currently running.
func (c *Controller) Running(ctx context.Context, s Stack) (bool, error) {
	if info, err := os.Stat(s.Dir); err != nil || !info.IsDir() {
		return c.runningByLabel(ctx, s.Project)
	}

	args := c.composeArgs(s, "ps", "--services", "--filter", "status=running")
	output, err := c.runner.Run(ctx, s.Dir, s.envSlice(), "docker", args...)
	if err != nil {
		return false, fmt.Errorf("docker compose ps failed for %s: %w: %s", s.Project, err, output)
	}
	return strings.TrimSpace(string(output)) != "", nil
}

// Prune removes all unused images host-wide. Destructive: the loop invokes
// it at most once per run, after every application has been reconciled.
func (c *Controller) Prune(ctx context.Context, dir string) error {
	output, err := c.runner.Run(ctx, dir, nil, "docker", "system", "prune", "--all", "--force")
	if err != nil {
		return fmt.Errorf("docker system prune failed: %w: %s", err, output)
	}
	return nil
}

func (c *Controller) stopByLabel(ctx context.Context, project string) error {
	api, err := c.containerAPI()
	if err != nil {
		return err
	}

	list, err := api.ContainerList(ctx, container.ListOptions{
		Filters: projectFilter(project),
	})
	if err != nil {
		return fmt.Errorf("failed to list containers for project %s: %w", project, err)
	}

	var errs []error
	for _, ctr := range list {
		log.Info("stopping container", "project", project, "container", ctr.ID)
		if err := api.ContainerStop(ctx, ctr.ID, container.StopOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop container %s: %w", ctr.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) runningByLabel(ctx context.Context, project string) (bool, error) {
	api, err := c.containerAPI()
	if err != nil {
		return false, err
	}

	list, err := api.ContainerList(ctx, container.ListOptions{
		Filters: projectFilter(project),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list containers for project %s: %w", project, err)
	}
	return len(list) > 0, nil
}

func projectFilter(project string) filters.Args {
	return filters.NewArgs(filters.Arg("label", composeProjectLabel+"="+project))
}

// containerAPI returns the Docker engine client, creating it on first use so
// that runs which never need the by-label fallback never open a connection.
func (c *Controller) containerAPI() (ContainerAPI, error) {
	if c.docker != nil {
		return c.docker, nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	c.docker = cli
	return cli, nil
}
