package worktree

import (
	"context"

	"go.uber.org/zap"

	"github.com/iambrandonn/chaba/internal/errs"
	"github.com/iambrandonn/chaba/internal/state"
)

// Merge merges from into the worktree of id.
func (m *Manager) Merge(ctx context.Context, id int, from string) (state.Record, error) {
	rec, err := m.liveWorktree(id)
	if err != nil {
		return rec, err
	}
	m.logger.Info("merging into worktree", zap.Int("pr", id), zap.String("from", from))
	return rec, m.git.Merge(ctx, rec.Path, from)
}

// Rebase rebases the worktree of id onto onto.
func (m *Manager) Rebase(ctx context.Context, id int, onto string) (state.Record, error) {
	rec, err := m.liveWorktree(id)
	if err != nil {
		return rec, err
	}
	m.logger.Info("rebasing worktree", zap.Int("pr", id), zap.String("onto", onto))
	return rec, m.git.Rebase(ctx, rec.Path, onto)
}

func (m *Manager) liveWorktree(id int) (state.Record, error) {
	rec, err := m.Get(id)
	if err != nil {
		return rec, err
	}
	if !pathExists(rec.Path) {
		return rec, errs.Validationf("worktree does not exist: %s (run cleanup --prune-stale to drop the record)", rec.Path)
	}
	return rec, nil
}
