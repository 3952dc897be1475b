// Package gitops wraps the git and gh command-line tools and reads
// repository metadata directly with go-git.
package gitops

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/iambrandonn/chaba/internal/command"
	"github.com/iambrandonn/chaba/internal/errs"
	"github.com/iambrandonn/chaba/internal/logging"
)

// DefaultRemote is the remote branches are fetched from.
const DefaultRemote = "origin"

// Repo runs git operations for one repository. Mutating operations go through
// the git CLI so they behave exactly like a user's own git.
type Repo struct {
	root   string
	remote string
	runner command.Runner
	logger *zap.Logger
}

// Open discovers the repository containing dir. dir may be any path inside a
// working tree, including a linked worktree.
func Open(dir string, runner command.Runner, logger *zap.Logger) (*Repo, error) {
	repo, err := openRepository(dir)
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, errs.Validationf("repository at %s has no working tree: %v", dir, err)
	}
	return NewRepo(wt.Filesystem.Root(), runner, logger), nil
}

// NewRepo returns a Repo rooted at root without probing the filesystem.
func NewRepo(root string, runner command.Runner, logger *zap.Logger) *Repo {
	return &Repo{
		root:   root,
		remote: DefaultRemote,
		runner: runner,
		logger: logging.OrNop(logger),
	}
}

// WithRemote returns a copy of r that fetches from remote.
func (r *Repo) WithRemote(remote string) *Repo {
	cp := *r
	if remote != "" {
		cp.remote = remote
	}
	return &cp
}

// Root returns the repository's top-level working directory.
func (r *Repo) Root() string { return r.root }

// Remote returns the remote name used for fetches.
func (r *Repo) Remote() string { return r.remote }

// Fetch runs `git fetch <remote> <branch>`.
func (r *Repo) Fetch(ctx context.Context, remote, branch string) error {
	r.logger.Info("fetching branch", zap.String("remote", remote), zap.String("branch", branch))
	return r.git(ctx, r.root, "fetch", remote, branch)
}

// AddWorktree runs `git worktree add <path> <ref>`.
func (r *Repo) AddWorktree(ctx context.Context, path, ref string) error {
	r.logger.Info("creating worktree", zap.String("path", path), zap.String("ref", ref))
	return r.git(ctx, r.root, "worktree", "add", path, ref)
}

// RemoveWorktree runs `git worktree remove <path> --force`.
func (r *Repo) RemoveWorktree(ctx context.Context, path string) error {
	r.logger.Info("removing worktree", zap.String("path", path))
	return r.git(ctx, r.root, "worktree", "remove", path, "--force")
}

// RemoteURL returns the first configured URL of remote.
func (r *Repo) RemoteURL(remote string) (string, error) {
	repo, err := openRepository(r.root)
	if err != nil {
		return "", err
	}
	rem, err := repo.Remote(remote)
	if err != nil {
		return "", errs.NotFoundf("remote %q: %v", remote, err)
	}
	urls := rem.Config().URLs
	if len(urls) == 0 {
		return "", errs.NotFoundf("remote %q has no URL", remote)
	}
	return urls[0], nil
}

// CurrentBranch returns the short name of the branch checked out at path,
// or "HEAD" when the head is detached.
func CurrentBranch(path string) (string, error) {
	repo, err := openRepository(path)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "HEAD", nil
	}
	return head.Name().Short(), nil
}

func openRepository(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, errs.NotFoundf("not in a git repository: %s", dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", dir, err)
	}
	return repo, nil
}

func (r *Repo) git(ctx context.Context, dir string, args ...string) error {
	out, err := r.runner.Run(ctx, dir, "git", args...)
	if err != nil {
		return err
	}
	return out.Err("git " + args[0])
}
