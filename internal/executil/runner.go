// Package executil abstracts external command execution so that components
// invoking git and docker can be tested with fakes.
package executil

import (
	"context"
	"os"
	"os/exec"
)

// CommandRunner runs external commands.
type CommandRunner interface {
	// Run executes the command in dir with extra environment entries merged
	// over the process environment and returns the combined output.
	Run(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error)

	// RunAttached executes the command with stdout and stderr wired to the
	// calling process, for interactive/foreground invocations.
	RunAttached(ctx context.Context, dir string, env []string, name string, args ...string) error
}

// System is the CommandRunner used outside of tests.
type System struct{}

func (System) Run(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

func (System) RunAttached(ctx context.Context, dir string, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
