package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/chaba/internal/worktree"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List review environments",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			sess, err := a.openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			statuses, err := sess.manager.ListStatus(ctx)
			if err != nil {
				return err
			}
			warnStale(cmd, statuses)
			out := cmd.OutOrStdout()
			printList(out, newStyles(out), statuses)
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show a review environment and its changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			sess, err := a.openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			st, err := sess.manager.Status(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printStatus(out, newStyles(out), *st)
			return nil
		},
	}
}

func warnStale(cmd *cobra.Command, statuses []worktree.Status) {
	var stale []int
	for _, st := range statuses {
		if st.Stale() {
			stale = append(stale, st.Record.ID)
		}
	}
	if len(stale) == 0 {
		return
	}
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "Warning: %d worktree(s) no longer exist: %v\n", len(stale), stale)
	fmt.Fprintln(w, "Run 'chaba cleanup --prune-stale' to drop their records.")
}
