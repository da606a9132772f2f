package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"harbormaster/internal/compose"
	"harbormaster/internal/executil"
	"harbormaster/internal/gitsync"
	"harbormaster/internal/reconciler"
	"harbormaster/pkg/capabilities"
)

// reconcileOnce performs one full reconciliation pass. Fresh per-run
// components (synchronizer, controller, reconciler) are built every time so
// that no once-per-run memory leaks across passes.
func reconcileOnce(ctx context.Context, configPath, workingDir string, forceRestart bool) error {
	runner := executil.System{}
	rec, err := reconciler.New(reconciler.Options{
		ManifestPath: configPath,
		WorkDir:      workingDir,
		ForceRestart: forceRestart,
	}, gitsync.NewSynchronizer(runner), compose.NewController(runner))
	if err != nil {
		return err
	}

	result, err := rec.Run(ctx)
	if err != nil {
		return err
	}
	if !result.OK() {
		names := make([]string, 0, len(result.Failed))
		for name := range result.Failed {
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) > 0 {
			return fmt.Errorf("failed to reconcile: %s", strings.Join(names, ", "))
		}
		return fmt.Errorf("directory or prune cleanup failed")
	}
	return nil
}

func newRunCommand() *cobra.Command {
	var (
		configPath   string
		workingDir   string
		forceRestart bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile all applications against the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			if missing := capabilities.Missing(); len(missing) > 0 {
				return fmt.Errorf("missing required executables: %s", strings.Join(missing, ", "))
			}
			return reconcileOnce(cmd.Context(), configPath, workingDir, forceRestart)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "harbormaster.yml", "the manifest file to use")
	cmd.Flags().StringVarP(&workingDir, "working-dir", "d", ".", "the root directory to work in")
	cmd.Flags().BoolVarP(&forceRestart, "force-restart", "f", false, "restart all apps even if unchanged")
	return cmd
}
