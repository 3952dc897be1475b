// Package worktree drives the lifecycle of review environments: it creates
// git worktrees for pull requests or branches, prepares them, and keeps the
// state file in step with what exists on disk.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iambrandonn/chaba/internal/analysis"
	"github.com/iambrandonn/chaba/internal/errs"
	"github.com/iambrandonn/chaba/internal/fsutil"
	"github.com/iambrandonn/chaba/internal/gitops"
	"github.com/iambrandonn/chaba/internal/history"
	"github.com/iambrandonn/chaba/internal/logging"
	"github.com/iambrandonn/chaba/internal/port"
	"github.com/iambrandonn/chaba/internal/sandbox"
	"github.com/iambrandonn/chaba/internal/state"
)

// Git is the subset of repository operations the manager needs.
type Git interface {
	Root() string
	Fetch(ctx context.Context, remote, branch string) error
	AddWorktree(ctx context.Context, path, ref string) error
	RemoveWorktree(ctx context.Context, path string) error
	DiffStats(ctx context.Context, path, branch string) (gitops.DiffStats, error)
	Merge(ctx context.Context, path, from string) error
	Rebase(ctx context.Context, path, onto string) error
}

// PRResolver maps a pull request number to its head branch.
type PRResolver interface {
	PRBranch(ctx context.Context, number int) (string, error)
}

// Sandbox prepares a fresh worktree. It never fails; the returned Info
// records which steps succeeded.
type Sandbox interface {
	Run(ctx context.Context, path, mainRoot string) sandbox.Info
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// Hooks starts post-create hooks without waiting for them.
type Hooks interface {
	PostCreate(path, branch string, id int)
}

// History records lifecycle events.
type History interface {
	Append(evt history.Event) error
}

// DefaultMaxRetries bounds Transact attempts when Config leaves it unset.
const DefaultMaxRetries = 5

// Config holds the manager's settings.
type Config struct {
	BaseDir      string
	Template     string
	Remote       string
	PortsEnabled bool
	PortStart    int
	PortEnd      int
	MaxRetries   int
}

// Deps are the manager's collaborators. Store and Git are required.
type Deps struct {
	Store     *state.Store
	Git       Git
	Resolver  PRResolver
	Sandbox   Sandbox
	Confirmer Confirmer
	Hooks     Hooks
	History   History
	Logger    *zap.Logger
}

// Manager creates, lists and removes review environments.
type Manager struct {
	cfg        Config
	store      *state.Store
	git        Git
	resolver   PRResolver
	sandbox    Sandbox
	confirmer  Confirmer
	hooks      Hooks
	history    History
	logger     *zap.Logger
	now        func() time.Time
	assignPort func(st *state.State, start, end int) (int, error)
}

// NewManager creates a Manager.
func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.Template == "" {
		cfg.Template = "pr-{pr}"
	}
	if cfg.Remote == "" {
		cfg.Remote = gitops.DefaultRemote
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Manager{
		cfg:        cfg,
		store:      deps.Store,
		git:        deps.Git,
		resolver:   deps.Resolver,
		sandbox:    deps.Sandbox,
		confirmer:  deps.Confirmer,
		hooks:      deps.Hooks,
		history:    deps.History,
		logger:     logging.OrNop(deps.Logger),
		now:        time.Now,
		assignPort: port.Assign,
	}
}

// Target names the environment to create: exactly one of PR or Branch.
type Target struct {
	PR     int
	Branch string
}

// CreateOptions adjusts Create.
type CreateOptions struct {
	// Force replaces an existing worktree without asking.
	Force bool
	// Path overrides the templated location. It must stay inside BaseDir.
	Path string
}

// Create provisions a worktree for target and records it. Sandbox steps are
// best-effort and their outcome is stored in the record's flags. The
// post-create hook runs in the background and cannot fail the creation.
func (m *Manager) Create(ctx context.Context, target Target, opts CreateOptions) (*state.Record, error) {
	id, branch, err := m.resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	logger := m.logger.With(zap.Int("pr", id), zap.String("branch", branch))

	path, err := m.targetPath(id, opts.Path)
	if err != nil {
		return nil, err
	}
	if err := m.checkPathFree(id, path); err != nil {
		return nil, err
	}

	if _, err := os.Lstat(path); err == nil {
		if err := m.replaceExisting(ctx, path, opts.Force); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, errs.IO("stat "+path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errs.IO("create parent directory", err)
	}

	logger.Info("fetching branch", zap.String("remote", m.cfg.Remote))
	if err := m.git.Fetch(ctx, m.cfg.Remote, branch); err != nil {
		return nil, fmt.Errorf("failed to fetch %s/%s: %w", m.cfg.Remote, branch, err)
	}
	if err := m.git.AddWorktree(ctx, path, m.cfg.Remote+"/"+branch); err != nil {
		return nil, fmt.Errorf("failed to create worktree: %w", err)
	}
	logger.Info("worktree created", zap.String("path", path))

	rec := state.Record{
		ID:        id,
		Branch:    branch,
		Path:      path,
		CreatedAt: m.now().UTC(),
	}
	if m.sandbox != nil {
		info := m.sandbox.Run(ctx, path, m.git.Root())
		rec.ProjectType = info.ProjectType
		rec.DepsInstalled = info.DepsInstalled
		rec.EnvCopied = info.EnvCopied
	}

	_, err = m.store.Transact(ctx, m.cfg.MaxRetries, func(st *state.State) error {
		rec.Port = m.pickPort(st, id, logger)
		st.Put(rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save review environment: %w", err)
	}

	if m.hooks != nil {
		m.hooks.PostCreate(path, branch, id)
	}
	m.record(history.Event{Kind: history.KindCreated, PR: id, Branch: branch, Path: path, Port: rec.Port})

	return &rec, nil
}

func (m *Manager) resolve(ctx context.Context, target Target) (int, string, error) {
	branch := strings.TrimSpace(target.Branch)
	switch {
	case target.PR != 0 && branch != "":
		return 0, "", errs.Validationf("specify either a pull request number or a branch, not both")
	case target.PR < 0:
		return 0, "", errs.Validationf("invalid pull request number %d", target.PR)
	case target.PR > 0:
		if m.resolver == nil {
			return 0, "", errs.Validationf("no pull request resolver configured; pass --branch instead")
		}
		name, err := m.resolver.PRBranch(ctx, target.PR)
		if err != nil {
			return 0, "", err
		}
		return target.PR, name, nil
	case branch != "":
		return HashBranch(branch), branch, nil
	default:
		return 0, "", errs.Validationf("a pull request number or a branch is required")
	}
}

func (m *Manager) targetPath(id int, custom string) (string, error) {
	candidate := custom
	if candidate == "" {
		candidate = strings.ReplaceAll(m.cfg.Template, "{pr}", strconv.Itoa(id))
	}
	return fsutil.ValidatePath(candidate, m.cfg.BaseDir)
}

// checkPathFree rejects a path that is the base directory itself or that
// overlaps the worktree of another live environment. A record with the same
// id may be replaced.
func (m *Manager) checkPathFree(id int, path string) error {
	if base, err := filepath.Abs(m.cfg.BaseDir); err == nil && filepath.Clean(base) == path {
		return errs.Validationf("worktree path %s is the base directory", path)
	}

	st, err := m.store.Load()
	if err != nil {
		return err
	}
	for _, rec := range st.Records {
		if rec.ID == id {
			continue
		}
		other := filepath.Clean(rec.Path)
		switch {
		case other == path:
			return fmt.Errorf("%w: %s belongs to review environment %d", errs.ErrAlreadyExists, path, rec.ID)
		case contains(path, other), contains(other, path):
			return errs.Validationf("worktree path %s overlaps review environment %d at %s", path, rec.ID, other)
		}
	}
	return nil
}

// contains reports whether child lies strictly below parent.
func contains(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (m *Manager) replaceExisting(ctx context.Context, path string, force bool) error {
	if !force {
		if m.confirmer == nil {
			return fmt.Errorf("%w: worktree %s (use --force to replace it)", errs.ErrAlreadyExists, path)
		}
		ok, err := m.confirmer.Confirm(fmt.Sprintf("Worktree already exists at %s. Remove it and recreate?", path))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: worktree %s", errs.ErrAlreadyExists, path)
		}
	}

	m.logger.Info("removing existing worktree", zap.String("path", path))
	if err := m.git.RemoveWorktree(ctx, path); err != nil {
		m.logger.Warn("git worktree remove failed; deleting directory", zap.String("path", path), zap.Error(err))
	}
	if err := os.RemoveAll(path); err != nil {
		return errs.IO("remove existing worktree", err)
	}
	return nil
}

// pickPort keeps a port already held by id and otherwise assigns a free one.
// Exhaustion leaves the record without a port.
func (m *Manager) pickPort(st *state.State, id int, logger *zap.Logger) *int {
	if !m.cfg.PortsEnabled {
		return nil
	}
	if existing, ok := st.Find(id); ok && existing.Port != nil {
		p := *existing.Port
		return &p
	}
	p, err := m.assignPort(st, m.cfg.PortStart, m.cfg.PortEnd)
	if err != nil {
		logger.Warn("failed to assign port", zap.Error(err))
		return nil
	}
	logger.Info("assigned port", zap.Int("port", p))
	return &p
}

// Remove deletes the worktree for id and then its record. When the worktree
// cannot be removed the record is kept.
func (m *Manager) Remove(ctx context.Context, id int) error {
	st, err := m.store.Load()
	if err != nil {
		return err
	}
	rec, ok := st.Find(id)
	if !ok {
		return errs.NotFoundf("review environment %d", id)
	}

	if err := m.git.RemoveWorktree(ctx, rec.Path); err != nil {
		return fmt.Errorf("failed to remove worktree %s (if it was deleted manually, run cleanup --prune-stale): %w", rec.Path, err)
	}

	if _, err := m.store.Transact(ctx, m.cfg.MaxRetries, func(st *state.State) error {
		st.Remove(id)
		return nil
	}); err != nil {
		return fmt.Errorf("worktree removed but state update failed: %w", err)
	}

	m.logger.Info("review environment removed", zap.Int("pr", id), zap.String("path", rec.Path))
	m.record(history.Event{Kind: history.KindRemoved, PR: id, Branch: rec.Branch, Path: rec.Path})
	return nil
}

// List returns every recorded environment.
func (m *Manager) List() ([]state.Record, error) {
	st, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	out := make([]state.Record, len(st.Records))
	copy(out, st.Records)
	return out, nil
}

// Get returns the record for id.
func (m *Manager) Get(id int) (state.Record, error) {
	st, err := m.store.Load()
	if err != nil {
		return state.Record{}, err
	}
	rec, ok := st.Find(id)
	if !ok {
		return state.Record{}, errs.NotFoundf("review environment %d", id)
	}
	return *rec, nil
}

// RecordAnalyses replaces the stored analyses for id.
func (m *Manager) RecordAnalyses(ctx context.Context, id int, results []analysis.Result) error {
	_, err := m.store.Transact(ctx, m.cfg.MaxRetries, func(st *state.State) error {
		rec, ok := st.Find(id)
		if !ok {
			return errs.NotFoundf("review environment %d", id)
		}
		rec.Analyses = append([]analysis.Result(nil), results...)
		return nil
	})
	if err != nil {
		return err
	}

	agents := make([]string, 0, len(results))
	findings := 0
	for _, r := range results {
		agents = append(agents, r.Agent)
		findings += len(r.Findings)
	}
	m.record(history.Event{Kind: history.KindAnalyzed, PR: id, Agents: agents, Findings: findings})
	return nil
}

func (m *Manager) record(evt history.Event) {
	if m.history == nil {
		return
	}
	if err := m.history.Append(evt); err != nil {
		m.logger.Warn("failed to append history event", zap.String("kind", string(evt.Kind)), zap.Error(err))
	}
}
