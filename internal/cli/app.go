package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iambrandonn/chaba/internal/command"
	"github.com/iambrandonn/chaba/internal/config"
	"github.com/iambrandonn/chaba/internal/gitops"
	"github.com/iambrandonn/chaba/internal/history"
	"github.com/iambrandonn/chaba/internal/hooks"
	"github.com/iambrandonn/chaba/internal/logging"
	"github.com/iambrandonn/chaba/internal/sandbox"
	"github.com/iambrandonn/chaba/internal/state"
	"github.com/iambrandonn/chaba/internal/worktree"
)

// hookGrace is how long review waits for background hooks before exiting.
const hookGrace = 3 * time.Second

// newRunner creates the subprocess runner. Tests replace it.
var newRunner = func(logger *zap.Logger) command.Runner {
	return command.NewLocal(logger)
}

// app is what every command needs: configuration, a logger and the store.
type app struct {
	cfg     *config.Config
	cfgPath string
	logger  *zap.Logger
	runner  command.Runner
	store   *state.Store
}

func loadApp(cmd *cobra.Command) (*app, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, cfgPath, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}
	if level != "" {
		cfg.Log.Level = level
	}
	logger, err := logging.NewWithWriter(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	if cfgPath != "" {
		logger.Debug("loaded configuration", zap.String("path", cfgPath))
	}

	return &app{
		cfg:     cfg,
		cfgPath: cfgPath,
		logger:  logger,
		runner:  newRunner(logger),
		store:   state.Open(cfg.State.Path, logger),
	}, nil
}

// session is a manager plus the resources it holds open.
type session struct {
	manager *worktree.Manager
	repo    *gitops.Repo
	hooks   *hooks.Runner
	journal *history.Journal
}

func (s *session) Close() {
	if s.journal != nil {
		_ = s.journal.Close()
	}
}

// openSession builds a Manager for the repository containing the working
// directory.
func (a *app) openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	repo, err := gitops.Open(cwd, a.runner, a.logger)
	if err != nil {
		return nil, err
	}
	repo = repo.WithRemote(a.cfg.Worktree.Remote)

	journal, err := history.Open(a.cfg.State.HistoryPath, a.logger)
	if err != nil {
		a.logger.Warn("history journal unavailable", zap.Error(err))
		journal = nil
	}

	s := &session{
		repo:    repo,
		hooks:   hooks.NewRunner(a.cfg.Hooks.PostCreate, a.runner, a.logger),
		journal: journal,
	}

	setup := sandbox.NewSetup(sandbox.Options{
		AutoInstall:        a.cfg.Sandbox.AutoInstallDeps,
		CopyEnv:            a.cfg.Sandbox.CopyEnvFromMain,
		ExtraEnv:           a.cfg.Sandbox.AdditionalEnvFiles,
		NodePackageManager: a.cfg.Sandbox.Node.PackageManager,
	}, sandbox.NewInstaller(a.runner, a.logger), a.logger)

	deps := worktree.Deps{
		Store:     a.store,
		Git:       repo,
		Resolver:  a.resolver(ctx, repo),
		Sandbox:   setup,
		Confirmer: newPromptConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr()),
		Hooks:     s.hooks,
		Logger:    a.logger,
	}
	if journal != nil {
		deps.History = journal
	}

	s.manager = worktree.NewManager(worktree.Config{
		BaseDir:      a.cfg.Worktree.BaseDir,
		Template:     a.cfg.Worktree.NamingTemplate,
		Remote:       a.cfg.Worktree.Remote,
		PortsEnabled: a.cfg.Sandbox.Port.Enabled,
		PortStart:    a.cfg.Sandbox.Port.RangeStart,
		PortEnd:      a.cfg.Sandbox.Port.RangeEnd,
		MaxRetries:   a.cfg.State.MaxRetries,
	}, deps)
	return s, nil
}

// resolver prefers the GitHub API when a token is available and the remote
// points at GitHub; otherwise it shells out to gh.
func (a *app) resolver(ctx context.Context, repo *gitops.Repo) worktree.PRResolver {
	token := a.cfg.GitHub.Token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token != "" {
		if url, err := repo.RemoteURL(repo.Remote()); err == nil {
			if owner, name, ok := gitops.ParseGitHubRemote(url); ok {
				a.logger.Debug("resolving pull requests through the GitHub API",
					zap.String("owner", owner), zap.String("repo", name))
				return gitops.NewAPIResolver(ctx, token, owner, name)
			}
		}
	}
	return gitops.NewGHResolver(a.runner, repo.Root())
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
