package gitsync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls [][]string
	run   func(dir, name string, args ...string) ([]byte, error)
}

func (f *fakeRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.run != nil {
		return f.run(dir, name, args...)
	}
	return nil, nil
}

func (f *fakeRunner) RunAttached(ctx context.Context, dir string, env []string, name string, args ...string) error {
	_, err := f.Run(ctx, dir, env, name, args...)
	return err
}

func newTestSynchronizer(runner *fakeRunner) *Synchronizer {
	return &Synchronizer{
		runner:      runner,
		attempts:    DefaultAttempts,
		backoffBase: time.Millisecond,
		backoffMax:  2 * time.Millisecond,
		synced:      map[string]string{},
	}
}

func TestSyncClonesMissingCheckout(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestSynchronizer(runner)
	dir := filepath.Join(t.TempDir(), "checkout")

	require.NoError(t, s.Sync(context.Background(), "https://git.example.com/app.git", "main", dir))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"git", "clone", "-b", "main", "--", "https://git.example.com/app.git", dir}, runner.calls[0])
}

func TestSyncUpdatesExistingCheckout(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{}
	s := newTestSynchronizer(runner)

	require.NoError(t, s.Sync(context.Background(), "https://git.example.com/app.git", "main", dir))

	var ops []string
	for _, call := range runner.calls {
		ops = append(ops, strings.Join(call[:2], " "))
	}
	assert.Equal(t, []string{"git rev-parse", "git remote", "git fetch", "git reset"}, ops)
	assert.Equal(t, []string{"git", "reset", "--hard", "origin/main"}, runner.calls[3])
}

func TestSyncOncePerRun(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestSynchronizer(runner)
	dir := filepath.Join(t.TempDir(), "checkout")

	require.NoError(t, s.Sync(context.Background(), "https://git.example.com/app.git", "main", dir))
	before := len(runner.calls)

	// Second app referencing the same checkout, even with another ref.
	require.NoError(t, s.Sync(context.Background(), "https://git.example.com/app.git", "develop", dir))
	assert.Equal(t, before, len(runner.calls))
}

func TestSyncRetriesTransientFailures(t *testing.T) {
	failures := 2
	runner := &fakeRunner{}
	runner.run = func(dir, name string, args ...string) ([]byte, error) {
		if args[0] == "clone" && failures > 0 {
			failures--
			return []byte("fatal: unable to access"), errors.New("exit status 128")
		}
		return nil, nil
	}
	s := newTestSynchronizer(runner)
	dir := filepath.Join(t.TempDir(), "checkout")

	require.NoError(t, s.Sync(context.Background(), "https://git.example.com/app.git", "main", dir))
	assert.Len(t, runner.calls, 3)
}

func TestSyncGivesUpAfterAttempts(t *testing.T) {
	runner := &fakeRunner{}
	runner.run = func(dir, name string, args ...string) ([]byte, error) {
		return []byte("fatal: unable to access"), errors.New("exit status 128")
	}
	s := newTestSynchronizer(runner)
	dir := filepath.Join(t.TempDir(), "checkout")

	err := s.Sync(context.Background(), "https://git.example.com/app.git", "main", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Len(t, runner.calls, 3)

	// A failed sync is not recorded, so a later call tries again.
	_ = s.Sync(context.Background(), "https://git.example.com/app.git", "main", dir)
	assert.Len(t, runner.calls, 6)
}

func TestSyncStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{}
	runner.run = func(dir, name string, args ...string) ([]byte, error) {
		cancel()
		return nil, errors.New("exit status 128")
	}
	s := newTestSynchronizer(runner)
	s.backoffBase = time.Minute // the ctx branch must win
	s.backoffMax = time.Minute

	err := s.Sync(ctx, "https://git.example.com/app.git", "main", filepath.Join(t.TempDir(), "checkout"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHeadTrimsOutput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	runner := &fakeRunner{}
	runner.run = func(dir, name string, args ...string) ([]byte, error) {
		return []byte("0123abcd\n"), nil
	}
	s := newTestSynchronizer(runner)

	commit, err := s.Head(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "0123abcd", commit)
}
