package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"harbormaster/pkg/capabilities"
	"harbormaster/pkg/files"
	"harbormaster/pkg/log"
)

// manifestPollInterval is how often the manifest file is checked for edits
// between interval-driven passes.
const manifestPollInterval = 5 * time.Second

// notify queues a reconciliation trigger. A trigger already pending covers
// the new reason too, so the send never blocks and bursts of file-change
// events coalesce into a single pass.
func notify(trigger chan<- string, reason string) {
	select {
	case trigger <- reason:
	default:
	}
}

// runWatchLoop executes pass immediately, then again on every trigger and
// every interval tick, until ctx is cancelled.
func runWatchLoop(ctx context.Context, interval time.Duration, trigger <-chan string, pass func(reason string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pass("startup")
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-trigger:
			pass(reason)
		case <-ticker.C:
			pass("interval elapsed")
		}
	}
}

// newWatchCommand builds the `watch` mode: reconcile immediately, then again
// whenever the manifest file changes or the interval elapses, until
// interrupted. A single-host alternative to driving `run` from cron.
func newWatchCommand() *cobra.Command {
	var (
		configPath string
		workingDir string
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reconcile continuously, on manifest changes and on an interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			if missing := capabilities.Missing(); len(missing) > 0 {
				return fmt.Errorf("missing required executables: %s", strings.Join(missing, ", "))
			}
			if interval <= 0 {
				return fmt.Errorf("interval must be positive, got %s", interval)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			trigger := make(chan string, 1)
			watcher := files.NewWatcher(configPath, manifestPollInterval, func(string) {
				notify(trigger, "manifest changed")
			})
			if err := watcher.Start(ctx); err != nil {
				return err
			}
			defer watcher.Stop()

			runWatchLoop(ctx, interval, trigger, func(reason string) {
				log.Info("starting reconciliation pass", "reason", reason)
				if err := reconcileOnce(ctx, configPath, workingDir, false); err != nil {
					// Keep watching: a broken pass is retried on the next
					// trigger, exactly like a failed cron invocation.
					log.Error("reconciliation pass failed", "reason", reason, "error", err)
				}
			})

			log.Info("shutting down")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "harbormaster.yml", "the manifest file to use")
	cmd.Flags().StringVarP(&workingDir, "working-dir", "d", ".", "the root directory to work in")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 5*time.Minute, "how often to reconcile when nothing changed")
	return cmd
}
