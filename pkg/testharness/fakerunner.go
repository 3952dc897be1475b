// Package testharness provides in-process fakes for tests that would
// otherwise shell out to git, gh, package managers or agent CLIs.
package testharness

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iambrandonn/chaba/internal/command"
	"github.com/iambrandonn/chaba/internal/errs"
)

// Call records one invocation seen by a FakeRunner.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// String renders the call as a command line.
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Stub is a scripted response for calls matching a program and argument prefix.
type Stub struct {
	name   string
	prefix []string

	output command.Output
	err    error
	delay  time.Duration
	hang   bool
	fn     func(ctx context.Context, call Call) (command.Output, error)
}

// Return makes matching calls print stdout and exit with code.
func (s *Stub) Return(stdout string, code int) *Stub {
	s.output = command.Output{Stdout: []byte(stdout), ExitCode: code}
	return s
}

// ReturnOutput makes matching calls produce out.
func (s *Stub) ReturnOutput(out command.Output) *Stub {
	s.output = out
	return s
}

// Fail makes matching calls return err as if the program could not run.
func (s *Stub) Fail(err error) *Stub {
	s.err = err
	return s
}

// Delay makes matching calls take d before responding, honoring cancellation.
func (s *Stub) Delay(d time.Duration) *Stub {
	s.delay = d
	return s
}

// Hang makes matching calls block until their context ends.
func (s *Stub) Hang() *Stub {
	s.hang = true
	return s
}

// Do replaces the scripted response with fn.
func (s *Stub) Do(fn func(ctx context.Context, call Call) (command.Output, error)) *Stub {
	s.fn = fn
	return s
}

func (s *Stub) matches(c Call) bool {
	if s.name != c.Name || len(c.Args) < len(s.prefix) {
		return false
	}
	for i, p := range s.prefix {
		if c.Args[i] != p {
			return false
		}
	}
	return true
}

// FakeRunner implements command.Runner with scripted responses. Calls that
// match no stub succeed with empty output.
type FakeRunner struct {
	mu      sync.Mutex
	stubs   []*Stub
	calls   []Call
	missing map[string]bool
}

var _ command.Runner = (*FakeRunner)(nil)

// NewFakeRunner creates an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{missing: make(map[string]bool)}
}

// On registers a stub for name with the given leading arguments. When several
// stubs match, the most recently registered one wins.
func (f *FakeRunner) On(name string, argsPrefix ...string) *Stub {
	s := &Stub{name: name, prefix: argsPrefix}
	f.mu.Lock()
	f.stubs = append(f.stubs, s)
	f.mu.Unlock()
	return s
}

// Missing marks programs as not installed.
func (f *FakeRunner) Missing(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		f.missing[n] = true
	}
}

// LookPath reports programs marked Missing as errs.ErrToolMissing.
func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[name] {
		return "", fmt.Errorf("%w: %s", errs.ErrToolMissing, name)
	}
	return "/usr/bin/" + name, nil
}

// Run records the call and plays back the matching stub.
func (f *FakeRunner) Run(ctx context.Context, dir, name string, args ...string) (command.Output, error) {
	call := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	missing := f.missing[name]
	var stub *Stub
	for i := len(f.stubs) - 1; i >= 0; i-- {
		if f.stubs[i].matches(call) {
			stub = f.stubs[i]
			break
		}
	}
	f.mu.Unlock()

	if missing {
		return command.Output{}, fmt.Errorf("%w: %s", errs.ErrToolMissing, name)
	}
	if stub == nil {
		return command.Output{}, nil
	}
	if stub.fn != nil {
		return stub.fn(ctx, call)
	}

	if stub.hang {
		<-ctx.Done()
		return command.Output{ExitCode: -1}, ctx.Err()
	}
	if stub.delay > 0 {
		timer := time.NewTimer(stub.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return command.Output{ExitCode: -1}, ctx.Err()
		case <-timer.C:
		}
	}
	if stub.err != nil {
		return command.Output{}, stub.err
	}
	return stub.output, nil
}

// Calls returns every recorded call in order.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded calls to program name.
func (f *FakeRunner) CallsTo(name string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// CommandLines returns every recorded call rendered with Call.String.
func (f *FakeRunner) CommandLines() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}
