package gitops

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/iambrandonn/chaba/internal/errs"
)

// HasUncommittedChanges reports whether `git status --porcelain` lists
// anything in the worktree at path.
func (r *Repo) HasUncommittedChanges(ctx context.Context, path string) (bool, error) {
	out, err := r.output(ctx, path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// Merge runs `git merge <from>` in the worktree at path. The worktree must be
// clean.
func (r *Repo) Merge(ctx context.Context, path, from string) error {
	return r.integrate(ctx, path, "merge", from, []string{"CONFLICT", "Automatic merge failed"})
}

// Rebase runs `git rebase <onto>` in the worktree at path. The worktree must
// be clean.
func (r *Repo) Rebase(ctx context.Context, path, onto string) error {
	return r.integrate(ctx, path, "rebase", onto, []string{"CONFLICT", "could not apply"})
}

func (r *Repo) integrate(ctx context.Context, path, verb, ref string, conflictMarkers []string) error {
	if strings.TrimSpace(ref) == "" {
		return errs.Validationf("a branch to %s is required", verb)
	}
	dirty, err := r.HasUncommittedChanges(ctx, path)
	if err != nil {
		return err
	}
	if dirty {
		return errs.Validationf("cannot %s: worktree %s has uncommitted changes; commit or stash them first", verb, path)
	}

	r.logger.Info("running git "+verb, zap.String("path", path), zap.String("ref", ref))
	out, err := r.runner.Run(ctx, path, "git", verb, ref)
	if err != nil {
		return err
	}
	cmdErr := out.Err("git " + verb)
	if cmdErr == nil {
		return nil
	}

	combined := string(out.Stdout) + string(out.Stderr)
	for _, marker := range conflictMarkers {
		if strings.Contains(combined, marker) {
			hint := "resolve the conflicts in " + path
			if verb == "rebase" {
				hint += ", then run git rebase --continue"
			}
			return fmt.Errorf("%s conflict (%s): %w", verb, hint, cmdErr)
		}
	}
	return cmdErr
}
