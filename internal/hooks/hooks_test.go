package hooks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iambrandonn/chaba/internal/command"
	"github.com/iambrandonn/chaba/pkg/testharness"
)

func TestPostCreatePassesEnvironment(t *testing.T) {
	runner := testharness.NewFakeRunner()
	hooks := NewRunner("npm run seed", runner, nil)

	hooks.PostCreate("/home/u/reviews/pr-5", "feature/login", 5)
	require.True(t, hooks.Drain(time.Second))

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/home/u/reviews/pr-5", calls[0].Dir)
	assert.Equal(t, "env", calls[0].Name)
	assert.Equal(t, []string{
		"CHABA_WORKTREE_PATH=/home/u/reviews/pr-5",
		"CHABA_BRANCH=feature/login",
		"CHABA_PR=5",
		"sh", "-c", "npm run seed",
	}, calls[0].Args)
}

func TestPostCreateDisabled(t *testing.T) {
	runner := testharness.NewFakeRunner()
	hooks := NewRunner("   ", runner, nil)

	hooks.PostCreate("/wt", "main", 1)
	assert.True(t, hooks.Drain(time.Second))
	assert.Empty(t, runner.Calls())
}

func TestPostCreateReturnsBeforeHookFinishes(t *testing.T) {
	release := make(chan struct{})
	runner := testharness.NewFakeRunner()
	runner.On("env").Do(func(ctx context.Context, call testharness.Call) (command.Output, error) {
		<-release
		return command.Output{}, nil
	})
	hooks := NewRunner("sleep 100", runner, nil)

	hooks.PostCreate("/wt", "main", 1)
	assert.False(t, hooks.Drain(20*time.Millisecond))

	close(release)
	assert.True(t, hooks.Drain(time.Second))
}

func TestPostCreateFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	runner := testharness.NewFakeRunner()
	runner.On("env").ReturnOutput(command.Output{Stderr: []byte("seed: not found\n"), ExitCode: 127})
	hooks := NewRunner("seed", runner, zap.New(core))

	hooks.PostCreate("/wt", "main", 3)
	require.True(t, hooks.Drain(time.Second))

	failed := logs.FilterMessage("post-create hook failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(127), failed[0].ContextMap()["exit_code"])
	assert.Equal(t, "seed: not found", failed[0].ContextMap()["stderr"])
}
