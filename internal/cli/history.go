package cli

import (
	"github.com/spf13/cobra"

	"github.com/iambrandonn/chaba/internal/history"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the lifecycle history of review environments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			events, err := history.Read(a.cfg.State.HistoryPath, a.logger)
			if err != nil {
				return err
			}
			if id, _ := cmd.Flags().GetInt("pr"); id > 0 {
				events = history.Filter(events, id)
			}
			if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(events) > limit {
				events = events[len(events)-limit:]
			}
			out := cmd.OutOrStdout()
			printHistory(out, newStyles(out), events)
			return nil
		},
	}
	cmd.Flags().IntP("pr", "p", 0, "Only show events for this environment id")
	cmd.Flags().IntP("limit", "n", 0, "Only show the most recent events")
	return cmd
}
