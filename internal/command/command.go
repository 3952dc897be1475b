// Package command runs external programs (git, gh, package managers, agent
// CLIs) and captures their output.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iambrandonn/chaba/internal/errs"
	"github.com/iambrandonn/chaba/internal/logging"
)

// DefaultWaitDelay bounds how long Run waits for output pipes to close after
// the process has been killed.
const DefaultWaitDelay = 5 * time.Second

// Output is what a finished process produced.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Success reports whether the process exited with status 0.
func (o Output) Success() bool { return o.ExitCode == 0 }

// Err converts a non-zero exit into an *errs.CommandError.
func (o Output) Err(name string) error {
	if o.Success() {
		return nil
	}
	return &errs.CommandError{
		Name:     name,
		ExitCode: o.ExitCode,
		Stdout:   string(o.Stdout),
		Stderr:   strings.TrimSpace(string(o.Stderr)),
	}
}

// Runner executes external programs.
//
// A non-zero exit status is reported through Output.ExitCode, not as an
// error. Errors mean the program could not be run at all, or ctx ended
// first; in the latter case the error is ctx.Err().
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (Output, error)
	LookPath(name string) (string, error)
}

// Local runs programs on this machine. Each program gets its own process
// group and cancelling ctx kills the whole group, so nothing it spawned
// outlives it.
type Local struct {
	// Env is appended to the parent environment. Nil inherits it unchanged.
	Env       []string
	WaitDelay time.Duration
	Logger    *zap.Logger
}

var _ Runner = (*Local)(nil)

// NewLocal creates a Local runner.
func NewLocal(logger *zap.Logger) *Local {
	return &Local{WaitDelay: DefaultWaitDelay, Logger: logging.OrNop(logger)}
}

// LookPath resolves name on PATH. A missing program wraps errs.ErrToolMissing.
func (l *Local) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", errs.ErrToolMissing, name, err)
	}
	return path, nil
}

// Run executes name with args in dir and waits for it to finish.
func (l *Local) Run(ctx context.Context, dir, name string, args ...string) (Output, error) {
	logger := logging.OrNop(l.Logger)

	path, err := l.LookPath(name)
	if err != nil {
		return Output{}, err
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	if l.Env != nil {
		cmd.Env = append(os.Environ(), l.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = l.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	setProcessGroup(cmd)

	logger.Debug("running command", zap.String("name", name), zap.Strings("args", args), zap.String("dir", dir))
	start := time.Now()
	runErr := cmd.Run()

	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if ctxErr := ctx.Err(); ctxErr != nil {
		out.ExitCode = -1
		logger.Debug("command cancelled", zap.String("name", name), zap.Duration("elapsed", time.Since(start)))
		return out, ctxErr
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			logger.Debug("command exited", zap.String("name", name), zap.Int("exit_code", out.ExitCode))
			return out, nil
		}
		return out, fmt.Errorf("run %s: %w", name, runErr)
	}
	return out, nil
}
