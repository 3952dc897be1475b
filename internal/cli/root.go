// Package cli implements the chaba command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the chaba command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "chaba",
		Short: "Per-pull-request review environments",
		Long: `chaba creates an isolated git worktree for a pull request or branch,
prepares it (dependencies, env files, a dev server port) and can run AI
review agents against it.

Environments are recorded in a state file shared safely between concurrent
chaba processes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "Path to chaba.yaml (default: ./chaba.yaml, then the user config directory)")
	root.PersistentFlags().String("log-level", "", "Override log level (debug, info, warn, error)")

	root.AddCommand(
		newReviewCommand(),
		newCleanupCommand(),
		newListCommand(),
		newStatusCommand(),
		newMergeCommand(),
		newRebaseCommand(),
		newAgentResultCommand(),
		newConfigCommand(),
		newHistoryCommand(),
	)
	return root
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
