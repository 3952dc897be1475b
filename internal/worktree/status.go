package worktree

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/iambrandonn/chaba/internal/gitops"
	"github.com/iambrandonn/chaba/internal/history"
	"github.com/iambrandonn/chaba/internal/state"
)

// Status pairs a record with what is currently on disk. A record whose
// worktree is gone reports Exists false; nothing is repaired automatically.
type Status struct {
	Record   state.Record
	Exists   bool
	Stats    *gitops.DiffStats
	StatsErr error
}

// Stale reports whether the record points at a missing worktree.
func (s Status) Stale() bool { return !s.Exists }

// Status inspects the environment for id.
func (m *Manager) Status(ctx context.Context, id int) (*Status, error) {
	rec, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s := m.inspect(ctx, rec)
	return &s, nil
}

// ListStatus inspects every recorded environment.
func (m *Manager) ListStatus(ctx context.Context) ([]Status, error) {
	records, err := m.List()
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, m.inspect(ctx, rec))
	}
	return out, nil
}

func (m *Manager) inspect(ctx context.Context, rec state.Record) Status {
	s := Status{Record: rec, Exists: pathExists(rec.Path)}
	if !s.Exists {
		return s
	}
	stats, err := m.git.DiffStats(ctx, rec.Path, rec.Branch)
	if err != nil {
		m.logger.Debug("diff stats unavailable", zap.Int("pr", rec.ID), zap.Error(err))
		s.StatsErr = err
		return s
	}
	s.Stats = &stats
	return s
}

// PruneStale drops records whose worktree directory no longer exists and
// returns their identifiers. It only runs when asked.
func (m *Manager) PruneStale(ctx context.Context) ([]int, error) {
	st, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if len(staleIDs(st)) == 0 {
		return []int{}, nil
	}

	var pruned []state.Record
	_, err = m.store.Transact(ctx, m.cfg.MaxRetries, func(st *state.State) error {
		pruned = pruned[:0]
		for _, id := range staleIDs(st) {
			rec, _ := st.Find(id)
			pruned = append(pruned, *rec)
			st.Remove(id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(pruned))
	for _, rec := range pruned {
		ids = append(ids, rec.ID)
		m.logger.Info("pruned stale review environment", zap.Int("pr", rec.ID), zap.String("path", rec.Path))
		m.record(history.Event{Kind: history.KindPruned, PR: rec.ID, Branch: rec.Branch, Path: rec.Path})
	}
	return ids, nil
}

func staleIDs(st *state.State) []int {
	var ids []int
	for _, rec := range st.Records {
		if !pathExists(rec.Path) {
			ids = append(ids, rec.ID)
		}
	}
	return ids
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
