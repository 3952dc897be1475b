package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/chaba/internal/state"
	"github.com/iambrandonn/chaba/internal/worktree"
)

func newMergeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge <id> --from <branch>",
		Short: "Merge a branch into a review environment",
		Long: `Run 'git merge <branch>' inside the environment's worktree. The worktree
must have no uncommitted changes. Conflicts are left in place for you to
resolve.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			return runIntegrate(cmd, args[0], "Merged "+from+" into", "git push",
				func(ctx context.Context, m *worktree.Manager, id int) (state.Record, error) {
					return m.Merge(ctx, id, from)
				})
		},
	}
	cmd.Flags().String("from", "", "Branch to merge from")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func newRebaseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebase <id> --onto <branch>",
		Short: "Rebase a review environment onto a branch",
		Long: `Run 'git rebase <branch>' inside the environment's worktree. The worktree
must have no uncommitted changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			onto, _ := cmd.Flags().GetString("onto")
			return runIntegrate(cmd, args[0], "Rebased onto "+onto+":", "git push --force-with-lease",
				func(ctx context.Context, m *worktree.Manager, id int) (state.Record, error) {
					return m.Rebase(ctx, id, onto)
				})
		},
	}
	cmd.Flags().String("onto", "", "Branch to rebase onto")
	_ = cmd.MarkFlagRequired("onto")
	return cmd
}

func runIntegrate(cmd *cobra.Command, arg, done, next string,
	op func(ctx context.Context, m *worktree.Manager, id int) (state.Record, error)) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	ctx := commandContext(cmd)
	sess, err := a.openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	rec, err := op(ctx, sess.manager, id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	s := newStyles(out)
	fmt.Fprintf(out, "%s %s (%s)\n", s.ok.Render(done), idString(id), rec.Path)
	fmt.Fprintf(out, "Next: cd %s && %s\n", rec.Path, next)
	return nil
}
