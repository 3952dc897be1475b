package gitops

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"go.uber.org/zap"
)

// DiffStats summarizes a worktree's local changes and its position relative
// to the branch it tracks.
type DiffStats struct {
	Branch        string
	Upstream      string
	FilesChanged  int
	LinesAdded    int64
	LinesDeleted  int64
	CommitsAhead  int
	CommitsBehind int
}

// DiffStats inspects the worktree at path. Uncommitted changes are measured
// with `git diff HEAD`. The comparison branch is the configured upstream, or
// <remote>/<branch> when none is set (worktrees are created detached).
// Missing upstream information is not an error.
func (r *Repo) DiffStats(ctx context.Context, path, branch string) (DiffStats, error) {
	var stats DiffStats

	if current, err := CurrentBranch(path); err == nil {
		stats.Branch = current
	} else if out, err := r.output(ctx, path, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		stats.Branch = out
	}

	diff, err := r.runner.Run(ctx, path, "git", "diff", "HEAD")
	if err != nil {
		return stats, err
	}
	if err := diff.Err("git diff"); err != nil {
		return stats, err
	}
	files, added, deleted, err := summarizeDiff(string(diff.Stdout))
	if err != nil {
		return stats, err
	}
	stats.FilesChanged, stats.LinesAdded, stats.LinesDeleted = files, added, deleted

	stats.Upstream = r.upstream(ctx, path, branch)
	if stats.Upstream == "" {
		return stats, nil
	}

	counts, err := r.output(ctx, path, "rev-list", "--left-right", "--count", "HEAD..."+stats.Upstream)
	if err != nil {
		r.logger.Debug("cannot count commits against upstream", zap.String("upstream", stats.Upstream), zap.Error(err))
		return stats, nil
	}
	stats.CommitsAhead, stats.CommitsBehind = parseLeftRight(counts)
	return stats, nil
}

func (r *Repo) upstream(ctx context.Context, path, branch string) string {
	if out, err := r.output(ctx, path, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}"); err == nil && out != "" {
		return out
	}
	if branch == "" {
		return ""
	}
	candidate := r.remote + "/" + branch
	if _, err := r.output(ctx, path, "rev-parse", "--verify", "--quiet", candidate); err != nil {
		return ""
	}
	return candidate
}

// output runs git and returns trimmed stdout, treating a non-zero exit as an error.
func (r *Repo) output(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := r.runner.Run(ctx, dir, "git", args...)
	if err != nil {
		return "", err
	}
	if err := out.Err("git " + args[0]); err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out.Stdout)), nil
}

func summarizeDiff(raw string) (files int, added, deleted int64, err error) {
	if strings.TrimSpace(raw) == "" {
		return 0, 0, 0, nil
	}
	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parsing diff: %w", err)
	}
	for _, f := range parsed {
		for _, frag := range f.TextFragments {
			added += frag.LinesAdded
			deleted += frag.LinesDeleted
		}
	}
	return len(parsed), added, deleted, nil
}

// parseLeftRight reads `rev-list --left-right --count HEAD...upstream` output:
// commits only in HEAD, then commits only in upstream.
func parseLeftRight(s string) (ahead, behind int) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0
	}
	ahead, _ = strconv.Atoi(fields[0])
	behind, _ = strconv.Atoi(fields[1])
	return ahead, behind
}
