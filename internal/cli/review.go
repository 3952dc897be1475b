package cli

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iambrandonn/chaba/internal/agent"
	"github.com/iambrandonn/chaba/internal/errs"
	"github.com/iambrandonn/chaba/internal/worktree"
)

func newReviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Create a review environment for a pull request or branch",
		Long: `Create a git worktree for a pull request (--pr) or a branch (--branch),
install its dependencies, copy env files from the main checkout and assign a
port. With --with-agent or --thorough, AI review agents are run against the
new environment afterwards.`,
		Args: cobra.NoArgs,
		RunE: runReview,
	}
	cmd.Flags().IntP("pr", "p", 0, "Pull request number")
	cmd.Flags().StringP("branch", "b", "", "Branch name (instead of --pr)")
	cmd.Flags().BoolP("force", "f", false, "Replace an existing worktree without asking")
	cmd.Flags().String("worktree", "", "Custom worktree path inside the base directory")
	cmd.Flags().Bool("with-agent", false, "Run the default review agents after setup")
	cmd.Flags().Bool("thorough", false, "Run the thorough agent set after setup")
	cmd.MarkFlagsMutuallyExclusive("pr", "branch")
	return cmd
}

func runReview(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	pr, _ := cmd.Flags().GetInt("pr")
	branch, _ := cmd.Flags().GetString("branch")
	force, _ := cmd.Flags().GetBool("force")
	customPath, _ := cmd.Flags().GetString("worktree")
	withAgent, _ := cmd.Flags().GetBool("with-agent")
	thorough, _ := cmd.Flags().GetBool("thorough")

	ctx := commandContext(cmd)
	sess, err := a.openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	rec, err := sess.manager.Create(ctx,
		worktree.Target{PR: pr, Branch: branch},
		worktree.CreateOptions{Force: force, Path: customPath})
	if err != nil {
		return err
	}
	defer sess.hooks.Drain(hookGrace)

	out := cmd.OutOrStdout()
	s := newStyles(out)
	fmt.Fprintln(out, s.ok.Render("Review environment ready"))
	printRecord(out, s, *rec)

	if !withAgent && !thorough {
		return nil
	}
	if !a.cfg.Agents.Enabled {
		a.logger.Warn("agents are disabled in configuration; skipping analysis")
		return nil
	}

	names := a.cfg.Agents.DefaultAgents
	if thorough {
		names = a.cfg.Agents.ThoroughAgents
	}
	if len(names) == 0 {
		return errs.Validationf("no agents configured for this review mode")
	}

	registry := prometheus.NewRegistry()
	orch := agent.NewOrchestrator(a.runner, agent.NewMetrics(registry), a.logger)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Running agents: %v\n", names)
	results, report := orch.Run(ctx, rec.ID, rec.Path, names, agent.Options{
		Parallel: a.cfg.Agents.Parallel,
		Timeout:  a.cfg.Agents.Timeout(),
	})

	if a.cfg.Agents.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(a.cfg.Agents.MetricsTextfile, registry); err != nil {
			a.logger.Warn("failed to write agent metrics", zap.Error(err))
		}
	}

	for _, f := range report.Failures {
		fmt.Fprintf(out, "%s %s: %v\n", s.warn.Render("agent failed:"), f.Agent, f.Err)
	}
	if len(results) == 0 {
		return nil
	}

	if err := sess.manager.RecordAnalyses(ctx, rec.ID, results); err != nil {
		return fmt.Errorf("failed to save agent analyses: %w", err)
	}
	fmt.Fprintln(out)
	printAnalyses(out, s, results, false)
	return nil
}
