// Package gitsync keeps the URL-keyed source checkouts fast-forwarded to the
// latest remote state. Checkouts are fully engine-owned: local modifications
// are discarded on every sync.
package gitsync

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"harbormaster/internal/executil"
	"harbormaster/pkg/backoff"
	"harbormaster/pkg/log"
)

const (
	// DefaultAttempts bounds how often a transient transport failure is
	// retried before the app is marked failed for this run.
	DefaultAttempts = 3

	defaultBackoffBase = 5 * time.Second
	defaultBackoffMax  = 40 * time.Second
)

// Synchronizer ensures checkouts exist and reflect the requested reference.
// One instance covers one reconciliation run: each checkout is synced at most
// once per run, no matter how many applications reference its URL.
type Synchronizer struct {
	runner   executil.CommandRunner
	attempts int

	backoffBase time.Duration
	backoffMax  time.Duration

	// synced maps checkout dir to the reference it was synced to this run.
	synced map[string]string
}

func NewSynchronizer(runner executil.CommandRunner) *Synchronizer {
	return &Synchronizer{
		runner:      runner,
		attempts:    DefaultAttempts,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
		synced:      map[string]string{},
	}
}

// Sync makes sure dir holds a checkout of url fast-forwarded to ref. The
// whole clone-or-update sequence is retried with backoff on failure, since
// the common failure mode is a transient network problem.
//
// A checkout already synced during this run is not synced again; callers
// sharing a URL must tolerate the reference chosen by the first caller.
func (s *Synchronizer) Sync(ctx context.Context, url, ref, dir string) error {
	if syncedRef, ok := s.synced[dir]; ok {
		if syncedRef != ref {
			log.Warn("checkout already synced this run with a different reference",
				"url", url, "requested_ref", ref, "synced_ref", syncedRef)
		}
		return nil
	}

	b := backoff.New(s.backoffBase, s.backoffMax)
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if lastErr = s.syncOnce(ctx, url, ref, dir); lastErr == nil {
			s.synced[dir] = ref
			return nil
		}

		log.Warn("source sync failed", "url", url, "ref", ref, "attempt", attempt, "error", lastErr)
		if attempt == s.attempts {
			break
		}
		select {
		case <-time.After(b.Next()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed to sync %s after %d attempts: %w", url, s.attempts, lastErr)
}

func (s *Synchronizer) syncOnce(ctx context.Context, url, ref, dir string) error {
	if s.isRepo(ctx, dir) {
		log.Info("updating checkout", "url", url, "ref", ref, "dir", dir)
		return s.update(ctx, url, ref, dir)
	}
	log.Info("cloning repository", "url", url, "ref", ref, "dir", dir)
	return s.clone(ctx, url, ref, dir)
}

// isRepo reports whether dir exists and is a git working copy.
func (s *Synchronizer) isRepo(ctx context.Context, dir string) bool {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return false
	}
	_, err := s.runner.Run(ctx, dir, nil, "git", "rev-parse", "--show-toplevel")
	return err == nil
}

func (s *Synchronizer) clone(ctx context.Context, url, ref, dir string) error {
	if output, err := s.runner.Run(ctx, "", nil, "git", "clone", "-b", ref, "--", url, dir); err != nil {
		return fmt.Errorf("git clone failed: %w: %s", err, output)
	}
	return nil
}

// update fast-forwards an existing checkout. The origin URL is re-pinned
// first so that a URL change in the manifest takes effect on the same key,
// then the working copy is hard-reset to the fetched tip.
func (s *Synchronizer) update(ctx context.Context, url, ref, dir string) error {
	steps := [][]string{
		{"remote", "set-url", "origin", url},
		{"fetch", "--force", "origin", ref},
		{"reset", "--hard", "origin/" + ref},
	}
	for _, args := range steps {
		if output, err := s.runner.Run(ctx, dir, nil, "git", args...); err != nil {
			return fmt.Errorf("git %s failed: %w: %s", args[0], err, output)
		}
	}
	return nil
}

// Head returns the commit the checkout currently points at.
func (s *Synchronizer) Head(ctx context.Context, dir string) (string, error) {
	output, err := s.runner.Run(ctx, dir, nil, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w: %s", err, output)
	}
	return strings.TrimSpace(string(output)), nil
}
