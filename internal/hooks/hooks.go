// Package hooks runs user-configured shell commands after lifecycle events.
package hooks

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iambrandonn/chaba/internal/command"
	"github.com/iambrandonn/chaba/internal/logging"
)

// Runner launches hooks in the background. The operation that triggered a
// hook never observes its result; failures are only logged.
type Runner struct {
	postCreate string
	runner     command.Runner
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewRunner creates a hook runner. An empty postCreate disables the hook.
func NewRunner(postCreate string, runner command.Runner, logger *zap.Logger) *Runner {
	return &Runner{
		postCreate: strings.TrimSpace(postCreate),
		runner:     runner,
		logger:     logging.OrNop(logger),
	}
}

// PostCreate starts the post-create hook inside path with CHABA_WORKTREE_PATH,
// CHABA_BRANCH and CHABA_PR set, and returns immediately.
func (r *Runner) PostCreate(path, branch string, id int) {
	if r.postCreate == "" {
		return
	}

	args := []string{
		"CHABA_WORKTREE_PATH=" + path,
		"CHABA_BRANCH=" + branch,
		"CHABA_PR=" + strconv.Itoa(id),
		"sh", "-c", r.postCreate,
	}
	logger := r.logger.With(zap.String("hook", "post_create"), zap.Int("pr", id))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		logger.Info("running post-create hook in background")

		out, err := r.runner.Run(context.Background(), path, "env", args...)
		if err != nil {
			logger.Error("failed to execute post-create hook", zap.Error(err))
			return
		}
		if !out.Success() {
			logger.Warn("post-create hook failed",
				zap.Int("exit_code", out.ExitCode),
				zap.String("stderr", strings.TrimSpace(string(out.Stderr))))
			return
		}
		logger.Info("post-create hook completed")
		if len(out.Stdout) > 0 {
			logger.Debug("hook output", zap.String("stdout", string(out.Stdout)))
		}
	}()
}

// Drain waits up to timeout for running hooks and reports whether they all
// finished. Hooks still running keep running after Drain returns.
func (r *Runner) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		r.logger.Warn("hooks still running at exit", zap.Duration("waited", timeout))
		return false
	}
}
