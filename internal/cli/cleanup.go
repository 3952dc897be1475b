package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/chaba/internal/errs"
)

func newCleanupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup [id]",
		Short: "Remove a review environment",
		Long: `Remove the worktree and record of a review environment. The id is the
pull request number, or the identifier shown by 'chaba list' for branch
environments.

With --prune-stale, records whose worktree directory was deleted outside
chaba are dropped instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCleanup,
	}
	cmd.Flags().BoolP("force", "f", false, "Do not ask for confirmation")
	cmd.Flags().Bool("prune-stale", false, "Drop records whose worktree no longer exists")
	return cmd
}

func runCleanup(cmd *cobra.Command, args []string) error {
	prune, _ := cmd.Flags().GetBool("prune-stale")
	force, _ := cmd.Flags().GetBool("force")
	if !prune && len(args) == 0 {
		return errs.Validationf("an environment id is required (or use --prune-stale)")
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

	out := cmd.OutOrStdout()
	s := newStyles(out)

	if prune {
		ids, err := sess.manager.PruneStale(ctx)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Fprintln(out, "No stale environments.")
		} else {
			fmt.Fprintf(out, "Pruned %d stale environment(s): %v\n", len(ids), ids)
		}
		if len(args) == 0 {
			return nil
		}
	}

	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	rec, err := sess.manager.Get(id)
	if err != nil {
		return err
	}

	if !force {
		confirm := newPromptConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr())
		ok, err := confirm.Confirm(fmt.Sprintf("Remove review environment %s at %s?", idString(id), rec.Path))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := sess.manager.Remove(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s (%s)\n", s.ok.Render("Removed"), idString(id), rec.Path)
	return nil
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, errs.Validationf("invalid environment id %q", arg)
	}
	return id, nil
}
