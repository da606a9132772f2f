// Package reconciler drives one full pass over the desired-state manifest:
// sync, render, detect, act and persist for each application, with failures
// isolated so one broken application never blocks its siblings.
package reconciler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"harbormaster/internal/compose"
	"harbormaster/internal/config"
	"harbormaster/internal/lifecycle"
	"harbormaster/internal/render"
	"harbormaster/internal/state"
	"harbormaster/pkg/log"
)

// Syncer keeps URL-keyed checkouts up to date.
type Syncer interface {
	Sync(ctx context.Context, url, ref, dir string) error
	Head(ctx context.Context, dir string) (string, error)
}

// Stacker drives the external stack executor.
type Stacker interface {
	Up(ctx context.Context, s compose.Stack, detach bool) error
	Down(ctx context.Context, s compose.Stack) error
	Running(ctx context.Context, s compose.Stack) (bool, error)
	Prune(ctx context.Context, dir string) error
}

// Options configures a reconciliation run.
type Options struct {
	ManifestPath string
	WorkDir      string
	// ForceRestart restarts every enabled application even when its
	// fingerprint is unchanged.
	ForceRestart bool
}

// Result aggregates per-application outcomes for one run.
type Result struct {
	Succeeded []string
	Failed    map[string]error
	// CleanupErrors holds end-of-run directory and prune failures. They
	// never revert already-persisted fingerprints but still fail the run.
	CleanupErrors []error
}

// OK reports whether every application reconciled without failure.
func (r *Result) OK() bool {
	return len(r.Failed) == 0 && len(r.CleanupErrors) == 0
}

// Reconciler holds the per-run context. Everything it needs travels with it;
// there is no process-global run state.
type Reconciler struct {
	opts     Options
	paths    config.Paths
	syncer   Syncer
	stack    Stacker
	renderer *render.Renderer
	dirs     *lifecycle.Manager
	st       *state.State
	runID    string
}

func New(opts Options, syncer Syncer, stack Stacker) (*Reconciler, error) {
	manifestPath, err := filepath.Abs(opts.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	workDir, err := filepath.Abs(opts.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	opts.ManifestPath = manifestPath
	opts.WorkDir = workDir

	paths := config.NewPaths(workDir, filepath.Dir(manifestPath))
	return &Reconciler{
		opts:     opts,
		paths:    paths,
		syncer:   syncer,
		stack:    stack,
		renderer: render.NewRenderer(paths.ConfigDir),
		dirs:     lifecycle.NewManager(paths),
		runID:    uuid.NewString(),
	}, nil
}

// Run executes one reconciliation pass. The returned error covers run-level
// failures (an unreadable manifest, an unusable working directory);
// per-application failures are collected in the Result instead.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	log.Info("starting reconciliation", "run_id", r.runID,
		"manifest", r.opts.ManifestPath, "workdir", r.opts.WorkDir)

	manifest, err := config.Load(r.opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	if err := r.paths.CreateDirectories(); err != nil {
		return nil, err
	}
	r.st = state.Load(r.paths.StateFile)

	result := &Result{Failed: map[string]error{}}

	for _, name := range manifest.AppNames() {
		app := manifest.Apps[name]
		if err := r.reconcileApp(ctx, app); err != nil {
			log.Error("application failed", "run_id", r.runID, "app", name, "error", err)
			result.Failed[name] = err
		} else {
			result.Succeeded = append(result.Succeeded, name)
		}
		// Persist incrementally so an external kill mid-run cannot revert
		// fingerprints that were already applied.
		if err := r.st.Save(); err != nil {
			log.Warn("failed to persist state", "run_id", r.runID, "error", err)
		}
	}

	r.reconcileDirectories(manifest, result)

	if err := r.st.Save(); err != nil {
		log.Warn("failed to persist state", "run_id", r.runID, "error", err)
	}

	// Host-wide image prune runs last: it is destructive and must never
	// race a starting application.
	if manifest.Config.Prune {
		log.Info("pruning unused images", "run_id", r.runID)
		if err := r.stack.Prune(ctx, r.opts.WorkDir); err != nil {
			log.Error("prune failed", "run_id", r.runID, "error", err)
			result.CleanupErrors = append(result.CleanupErrors, err)
		}
	}

	log.Info("reconciliation finished", "run_id", r.runID,
		"succeeded", len(result.Succeeded), "failed", len(result.Failed))
	return result, nil
}

// reconcileDirectories retires removed applications and drops checkouts that
// nothing in the manifest references anymore.
func (r *Reconciler) reconcileDirectories(manifest *config.Manifest, result *Result) {
	current := make(map[string]struct{}, len(manifest.Apps))
	inUse := make(map[string]struct{}, len(manifest.Apps))
	for name, app := range manifest.Apps {
		current[name] = struct{}{}
		inUse[config.RepoKey(app.URL)] = struct{}{}
	}

	for _, err := range r.dirs.ReconcileRemoved(current, r.st) {
		log.Error("directory reconcile failed", "run_id", r.runID, "error", err)
		result.CleanupErrors = append(result.CleanupErrors, err)
	}
	for _, err := range r.dirs.ReconcileCheckouts(inUse) {
		log.Error("checkout reconcile failed", "run_id", r.runID, "error", err)
		result.CleanupErrors = append(result.CleanupErrors, err)
	}
}

func (r *Reconciler) reconcileApp(ctx context.Context, app *config.AppSpec) error {
	log.Info("reconciling application", "run_id", r.runID, "app", app.Name,
		"ref", app.Branch, "enabled", app.IsEnabled())

	dirs, err := r.dirs.EnsureAppDirs(app)
	if err != nil {
		return err
	}
	entry, known := r.st.Get(app.Name)

	if !app.IsEnabled() {
		return r.stopApp(ctx, app, dirs, entry, known)
	}

	if err := r.syncer.Sync(ctx, app.URL, app.Branch, dirs.RepoDir); err != nil {
		return err
	}
	commit, err := r.syncer.Head(ctx, dirs.RepoDir)
	if err != nil {
		return err
	}

	artifact, err := r.renderer.Render(app, dirs)
	if err != nil {
		return err
	}
	fingerprint := render.Fingerprint(app.Name, artifact, true)

	changed := r.opts.ForceRestart ||
		fingerprint != entry.Fingerprint ||
		commit != entry.Commit

	stack, err := compose.BuildStack(app.Name, dirs.RepoDir, artifact)
	if err != nil {
		return err
	}

	switch {
	case !known || !entry.Enabled:
		// Fresh deployment, or re-enablement: both are an executor start.
		log.Info("starting application", "run_id", r.runID, "app", app.Name)
		if err := r.stack.Up(ctx, stack, true); err != nil {
			return err
		}
	case changed:
		log.Info("restarting application", "run_id", r.runID, "app", app.Name)
		if running, err := r.stack.Running(ctx, stack); err != nil {
			return err
		} else if running {
			if err := r.stack.Down(ctx, stack); err != nil {
				return err
			}
		}
		if err := r.stack.Up(ctx, stack, true); err != nil {
			return err
		}
	default:
		// Unchanged. Start it anyway if it is not running, so a crashed
		// stack heals without a manifest edit.
		running, err := r.stack.Running(ctx, stack)
		if err != nil {
			return err
		}
		if !running {
			log.Info("application not running, starting", "run_id", r.runID, "app", app.Name)
			if err := r.stack.Up(ctx, stack, true); err != nil {
				return err
			}
		} else {
			log.Debug("application unchanged", "run_id", r.runID, "app", app.Name)
		}
	}

	r.st.Set(app.Name, state.Entry{
		Fingerprint: fingerprint,
		Enabled:     true,
		Commit:      commit,
		DataDir:     dirs.DataDir,
		CacheDir:    dirs.CacheDir,
		RepoDir:     dirs.RepoDir,
	})
	return nil
}

// stopApp handles a disabled application: stop it if it is still running,
// remember the disablement, and leave every directory untouched. The stored
// fingerprint survives so that re-enabling without other changes reads as
// "unchanged" and triggers a plain start.
func (r *Reconciler) stopApp(ctx context.Context, app *config.AppSpec, dirs config.AppPaths, entry state.Entry, known bool) error {
	if !known {
		log.Debug("application disabled and never deployed", "run_id", r.runID, "app", app.Name)
		return nil
	}
	if !entry.Enabled {
		log.Debug("application already stopped", "run_id", r.runID, "app", app.Name)
		return nil
	}

	s := compose.Stack{Project: app.Name, Dir: dirs.RepoDir}
	running, err := r.stack.Running(ctx, s)
	if err != nil {
		return err
	}
	if running {
		log.Info("stopping disabled application", "run_id", r.runID, "app", app.Name)
		if err := r.stack.Down(ctx, s); err != nil {
			return err
		}
	}

	entry.Enabled = false
	r.st.Set(app.Name, entry)
	return nil
}
