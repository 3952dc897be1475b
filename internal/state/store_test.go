package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iambrandonn/chaba/internal/analysis"
	"github.com/iambrandonn/chaba/internal/errs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return Open(filepath.Join(t.TempDir(), "state.yaml"), nil)
}

func sampleRecord(id int) Record {
	port := 3000 + id
	return Record{
		ID:            id,
		Branch:        fmt.Sprintf("feature/%d", id),
		Path:          fmt.Sprintf("/home/u/reviews/pr-%d", id),
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Port:          &port,
		ProjectType:   "Go",
		DepsInstalled: true,
		EnvCopied:     false,
	}
}

func TestLoadMissingFile(t *testing.T) {
	store := newTestStore(t)

	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), st.Version)
	assert.Empty(t, st.Records)
}

func TestAddRecordThenFind(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []int{1, 42, 90017} {
		before, err := store.Load()
		require.NoError(t, err)

		r := sampleRecord(id)
		_, err = store.AddRecord(r)
		require.NoError(t, err)

		after, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, before.Version+1, after.Version)

		got, ok := after.Find(id)
		require.True(t, ok)
		assert.Equal(t, r, *got)
	}
}

func TestAddRecordReplacesSameID(t *testing.T) {
	store := newTestStore(t)

	first := sampleRecord(7)
	_, err := store.AddRecord(first)
	require.NoError(t, err)

	second := sampleRecord(7)
	second.Branch = "feature/renamed"
	_, err = store.AddRecord(second)
	require.NoError(t, err)

	st, err := store.Load()
	require.NoError(t, err)
	require.Len(t, st.Records, 1)
	assert.Equal(t, "feature/renamed", st.Records[0].Branch)
	assert.Equal(t, uint64(2), st.Version)
}

func TestSaveConflictLeavesFileUntouched(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AddRecord(sampleRecord(1))
	require.NoError(t, err)

	stale, err := store.Load()
	require.NoError(t, err)

	fresh, err := store.Load()
	require.NoError(t, err)
	fresh.Put(sampleRecord(2))
	require.NoError(t, store.Save(fresh))

	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	stale.Put(sampleRecord(3))
	err = store.Save(stale)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConflict)

	var conflict *errs.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, uint64(1), conflict.Expected)
	assert.Equal(t, uint64(2), conflict.Actual)
	assert.Equal(t, uint64(1), stale.Version, "rejected save must not bump the caller's version")

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSaveAgainstMissingFileExpectsVersionZero(t *testing.T) {
	store := newTestStore(t)

	err := store.Save(&State{Version: 3})
	var conflict *errs.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, uint64(3), conflict.Expected)
	assert.Equal(t, uint64(0), conflict.Actual)

	_, statErr := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestSaveSetsOwnerOnlyPermissions(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("version: 0\nreviews: []\n"), 0644))

	_, err := store.AddRecord(sampleRecord(5))
	require.NoError(t, err)

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadOlderFormat(t *testing.T) {
	store := newTestStore(t)
	legacy := `reviews:
- pr_number: 12
  branch: fix/login
  worktree_path: /home/u/reviews/pr-12
  created_at: 2025-11-02T09:30:00Z
- pr_number: 13
  branch: feat/api
  worktree_path: /home/u/reviews/pr-13
  created_at: "2025-11-03T10:00:00+09:00"
  port: 3001
  agent_analyses:
  - agent: claude
    timestamp: "2025-11-03T10:05:00+09:00"
    findings:
    - severity: high
      category: security
      title: Token in logs
      description: The access token is printed on startup
`
	require.NoError(t, os.WriteFile(store.Path(), []byte(legacy), 0600))

	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), st.Version)
	require.Len(t, st.Records, 2)

	old, ok := st.Find(12)
	require.True(t, ok)
	assert.False(t, old.DepsInstalled)
	assert.False(t, old.EnvCopied)
	assert.Nil(t, old.Port)
	assert.Empty(t, old.Analyses)
	assert.Equal(t, 2025, old.CreatedAt.Year())

	newer, ok := st.Find(13)
	require.True(t, ok)
	require.NotNil(t, newer.Port)
	assert.Equal(t, 3001, *newer.Port)
	require.Len(t, newer.Analyses, 1)
	assert.Equal(t, analysis.SeverityHigh, newer.Analyses[0].Findings[0].Severity)
	assert.Nil(t, newer.Analyses[0].Score)

	// a legacy file is writable once loaded
	require.NoError(t, store.Save(st))
	assert.Equal(t, uint64(1), st.Version)
}

func TestLoadCorruptFile(t *testing.T) {
	store := newTestStore(t)
	corrupt := []byte("version: [not a number\nreviews: {{{")
	require.NoError(t, os.WriteFile(store.Path(), corrupt, 0600))

	_, err := store.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrSerialization)

	err = store.Save(&State{})
	assert.ErrorIs(t, err, errs.ErrSerialization)

	data, readErr := os.ReadFile(store.Path())
	require.NoError(t, readErr)
	assert.Equal(t, corrupt, data, "corrupt file must not be repaired")
}

func TestAnalysesRoundTrip(t *testing.T) {
	store := newTestStore(t)

	r := sampleRecord(9)
	line := uint(10)
	res := analysis.Result{
		Agent:     "codex",
		RunID:     "c0ffee",
		Timestamp: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
		Findings: []analysis.Finding{{
			Severity:    analysis.SeverityMedium,
			Category:    analysis.CategoryBestPractice,
			Title:       "Shadowed err",
			Description: "err is redeclared",
			File:        "main.go",
			Line:        &line,
		}},
	}
	res.SetScore(3.5)
	r.Analyses = []analysis.Result{res}

	_, err := store.AddRecord(r)
	require.NoError(t, err)

	st, err := store.Load()
	require.NoError(t, err)
	got, ok := st.Find(9)
	require.True(t, ok)
	assert.Equal(t, r, *got)
}

func TestRemoveRecord(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AddRecord(sampleRecord(1))
	require.NoError(t, err)
	_, err = store.AddRecord(sampleRecord(2))
	require.NoError(t, err)

	st, err := store.RemoveRecord(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.Version)

	_, ok := st.Find(1)
	assert.False(t, ok)
	_, ok = st.Find(2)
	assert.True(t, ok)

	_, err = store.RemoveRecord(1)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAssignedPorts(t *testing.T) {
	st := &State{}
	st.Put(sampleRecord(1))
	st.Put(sampleRecord(2))
	noPort := sampleRecord(3)
	noPort.Port = nil
	st.Put(noPort)

	ports := st.AssignedPorts()
	assert.Len(t, ports, 2)
	assert.Contains(t, ports, 3001)
	assert.Contains(t, ports, 3002)
}

func TestTransactRetriesOnConflict(t *testing.T) {
	store := newTestStore(t)
	other := Open(store.Path(), nil)

	calls := 0
	st, err := store.Transact(context.Background(), 3, func(st *State) error {
		calls++
		if calls == 1 {
			// another process writes between our load and save
			_, err := other.AddRecord(sampleRecord(100))
			require.NoError(t, err)
		}
		st.Put(sampleRecord(1))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, uint64(2), st.Version)

	_, ok := st.Find(100)
	assert.True(t, ok, "retry must see the concurrent writer's record")
	_, ok = st.Find(1)
	assert.True(t, ok)
}

func TestTransactGivesUp(t *testing.T) {
	store := newTestStore(t)
	other := Open(store.Path(), nil)

	calls := 0
	_, err := store.Transact(context.Background(), 2, func(st *State) error {
		calls++
		_, err := other.AddRecord(sampleRecord(100 + calls))
		require.NoError(t, err)
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConflict)
	assert.Equal(t, 2, calls)
}

func TestTransactStopsOnMutationError(t *testing.T) {
	store := newTestStore(t)
	boom := errors.New("boom")

	calls := 0
	_, err := store.Transact(context.Background(), 5, func(st *State) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)

	_, statErr := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestTransactHonorsCancellation(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Transact(ctx, 3, func(st *State) error {
		t.Fatal("mutation must not run after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransactConcurrentWriters(t *testing.T) {
	store := newTestStore(t)
	const writers = 10

	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s := Open(store.Path(), nil)
			_, err := s.Transact(context.Background(), 50, func(st *State) error {
				st.Put(sampleRecord(id))
				return nil
			})
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	st, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, st.Records, writers)
	assert.Equal(t, uint64(writers), st.Version)
}

func TestConcurrentSavesOneWinnerPerVersion(t *testing.T) {
	store := newTestStore(t)
	const writers = 8

	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			st := &State{}
			st.Put(sampleRecord(id))
			results <- Open(store.Path(), nil).Save(st)
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, errs.ErrConflict)
	}
	assert.Equal(t, 1, wins)

	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Version)
	assert.Len(t, st.Records, 1)
}

func TestStateRemove(t *testing.T) {
	st := &State{}
	st.Put(sampleRecord(1))
	assert.True(t, st.Remove(1))
	assert.False(t, st.Remove(1))
	assert.Empty(t, st.Records)
}

func TestLoadDeduplicatesByID(t *testing.T) {
	store := newTestStore(t)
	dup := `version: 4
reviews:
- pr_number: 1
  branch: old
  worktree_path: /a
  created_at: 2025-11-02T09:30:00Z
- pr_number: 2
  branch: other
  worktree_path: /b
  created_at: 2025-11-02T09:30:00Z
- pr_number: 1
  branch: new
  worktree_path: /a
  created_at: 2025-11-02T09:30:00Z
`
	require.NoError(t, os.WriteFile(store.Path(), []byte(dup), 0600))

	st, err := store.Load()
	require.NoError(t, err)
	require.Len(t, st.Records, 2)
	assert.Equal(t, "new", st.Records[0].Branch)
	assert.Equal(t, "other", st.Records[1].Branch)
}
