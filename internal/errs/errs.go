// Package errs defines the error taxonomy shared by every chaba component.
//
// Callers classify failures with errors.Is against the sentinel values. The
// typed errors carry the data a caller needs to react (versions for a
// conflict, captured output for a failed command) and each one matches its
// sentinel.
package errs

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrConflict        = errors.New("state conflict")
	ErrValidation      = errors.New("validation error")
	ErrToolMissing     = errors.New("external tool not found")
	ErrCommandFailed   = errors.New("external command failed")
	ErrTimeout         = errors.New("timed out")
	ErrIO              = errors.New("i/o error")
	ErrSerialization   = errors.New("serialization error")
	ErrNoAvailablePort = errors.New("no available port")
)

// ConflictError reports that the state file changed since the caller loaded it.
type ConflictError struct {
	Expected uint64
	Actual   uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("state was modified by another process (expected version %d, found %d); reload and retry",
		e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// CommandError reports a subprocess that exited with a non-zero status.
type CommandError struct {
	Name     string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Name, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + firstLine(e.Stderr)
	}
	return msg
}

func (e *CommandError) Is(target error) bool { return target == ErrCommandFailed }

// TimeoutError reports an operation that was cancelled after exceeding its budget.
type TimeoutError struct {
	Op       string
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Duration)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// NoAvailablePortError reports an exhausted port range.
type NoAvailablePortError struct {
	Start int
	End   int
}

func (e *NoAvailablePortError) Error() string {
	return fmt.Sprintf("no available port in range %d-%d; try cleaning up old review environments", e.Start, e.End)
}

func (e *NoAvailablePortError) Is(target error) bool { return target == ErrNoAvailablePort }

// Validationf builds an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds an error wrapping ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// IO wraps err as an ErrIO failure for the given operation.
func IO(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

// Serialization wraps err as an ErrSerialization failure for the given operation.
func Serialization(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSerialization, op, err)
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
