// Package cli wires the reconciliation engine to its command-line surface.
package cli

import (
	"github.com/spf13/cobra"

	"harbormaster/internal/version"
	"harbormaster/pkg/log"
)

// NewRootCommand builds the harbormaster command tree.
func NewRootCommand() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "harbormaster",
		Short:         "Keep a set of Compose applications in sync with a manifest",
		Long:          "Harbormaster reconciles locally deployed Compose applications against a declarative manifest of git-hosted apps, owning their data, cache and checkout directories.",
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.InitLog(logLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newWatchCommand())
	cmd.AddCommand(newTestCommand())
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		log.Error("command failed", "error", err)
		return 1
	}
	return 0
}
