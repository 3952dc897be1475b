package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iambrandonn/chaba/internal/analysis"
	"github.com/iambrandonn/chaba/internal/command"
	"github.com/iambrandonn/chaba/internal/errs"
	"github.com/iambrandonn/chaba/internal/logging"
)

// DefaultTimeout applies when Options.Timeout is unset.
const DefaultTimeout = 600 * time.Second

// Options controls a multi-agent run.
type Options struct {
	Parallel bool
	Timeout  time.Duration
}

// Failure is one agent that produced no result.
type Failure struct {
	Agent string
	Err   error
}

// Report summarizes a multi-agent run.
type Report struct {
	Succeeded []string
	Failures  []Failure
}

// AllFailed reports whether agents were requested and none succeeded.
func (r *Report) AllFailed() bool {
	return len(r.Succeeded) == 0 && len(r.Failures) > 0
}

// Orchestrator runs agents as subprocesses and parses what they print.
type Orchestrator struct {
	runner  command.Runner
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewOrchestrator creates an Orchestrator. metrics may be nil.
func NewOrchestrator(runner command.Runner, metrics *Metrics, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		runner:  runner,
		metrics: metrics,
		logger:  logging.OrNop(logger),
		now:     time.Now,
	}
}

// RunOne runs a single agent in dir with its own timeout. A run that
// overstays the timeout is killed and reported as *errs.TimeoutError; a
// non-zero exit is reported as *errs.CommandError with both output streams.
func (o *Orchestrator) RunOne(ctx context.Context, name string, id int, dir string, timeout time.Duration) (analysis.Result, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return analysis.Result{}, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	inv := kind.Invocation(id)
	agent := kind.String()
	logger := o.logger.With(zap.String("agent", agent), zap.Int("pr", id))
	logger.Info("running agent", zap.Duration("timeout", timeout))

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := o.runner.Run(runCtx, dir, inv.Program, inv.Args...)
	elapsed := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		o.metrics.observe(agent, OutcomeTimeout, elapsed)
		return analysis.Result{}, &errs.TimeoutError{Op: "agent " + agent, Duration: timeout}
	}
	if err != nil {
		o.metrics.observe(agent, OutcomeFailure, elapsed)
		return analysis.Result{}, err
	}
	if !out.Success() {
		o.metrics.observe(agent, OutcomeFailure, elapsed)
		return analysis.Result{}, out.Err(agent)
	}

	o.metrics.observe(agent, OutcomeSuccess, elapsed)
	result := analysis.Parse(agent, string(out.Stdout), o.now().UTC())
	result.RunID = uuid.NewString()
	logger.Info("agent completed",
		zap.Int("findings", len(result.Findings)),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

// Run executes the named agents against environment id. In parallel mode
// results arrive in completion order, otherwise in the order given. Agent
// failures never fail the run: each one is logged and listed in the Report.
func (o *Orchestrator) Run(ctx context.Context, id int, dir string, names []string, opts Options) ([]analysis.Result, *Report) {
	var (
		mu      sync.Mutex
		results = make([]analysis.Result, 0, len(names))
		report  = &Report{}
	)

	collect := func(name string, result analysis.Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			o.logger.Error("agent failed", zap.String("agent", name), zap.Error(err))
			report.Failures = append(report.Failures, Failure{Agent: name, Err: err})
			return
		}
		results = append(results, result)
		report.Succeeded = append(report.Succeeded, result.Agent)
	}

	if opts.Parallel {
		var g errgroup.Group
		for _, name := range names {
			g.Go(func() error {
				result, err := o.RunOne(ctx, name, id, dir, opts.Timeout)
				collect(name, result, err)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, name := range names {
			result, err := o.RunOne(ctx, name, id, dir, opts.Timeout)
			collect(name, result, err)
		}
	}

	if report.AllFailed() {
		failed := make([]string, 0, len(report.Failures))
		for _, f := range report.Failures {
			failed = append(failed, f.Agent)
		}
		o.logger.Warn("all agents failed; no analysis results were produced",
			zap.String("agents", strings.Join(failed, ", ")),
			zap.Strings("check", []string{
				"the agent CLIs are installed and on PATH (claude, codex, gemini)",
				"network connectivity to the agent providers",
				"agents.timeout is long enough for a full review",
			}))
	} else if len(report.Failures) > 0 {
		o.logger.Warn("some agents failed",
			zap.Int("succeeded", len(report.Succeeded)),
			zap.Int("failed", len(report.Failures)))
	}

	return results, report
}
