package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/chaba/internal/errs"
)

func newAgentResultCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent-result <id>",
		Short: "Show stored AI review results for an environment",
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
			st, err := a.store.Load()
			if err != nil {
				return err
			}
			rec, ok := st.Find(id)
			if !ok {
				return errs.NotFoundf("review environment %d", id)
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(rec.Analyses); err != nil {
					return fmt.Errorf("failed to encode analyses: %w", err)
				}
				return nil
			}

			raw, _ := cmd.Flags().GetBool("raw")
			s := newStyles(out)
			fmt.Fprintf(out, "%s %s (%s)\n\n", s.title.Render("Agent results for"), idString(id), rec.Branch)
			printAnalyses(out, s, rec.Analyses, raw)
			return nil
		},
	}
	cmd.Flags().Bool("raw", false, "Include raw agent output when it was kept")
	cmd.Flags().Bool("json", false, "Print results as JSON")
	return cmd
}
