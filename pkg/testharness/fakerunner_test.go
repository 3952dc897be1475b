package testharness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iambrandonn/chaba/internal/errs"
)

func TestFakeRunnerLastMatchingStubWins(t *testing.T) {
	f := NewFakeRunner()
	f.On("git").Return("generic", 0)
	f.On("git", "rev-parse").Return("specific", 0)

	out, err := f.Run(context.Background(), "/repo", "git", "rev-parse", "HEAD")
	require.NoError(t, err)
	assert.Equal(t, "specific", string(out.Stdout))

	out, err = f.Run(context.Background(), "/repo", "git", "status")
	require.NoError(t, err)
	assert.Equal(t, "generic", string(out.Stdout))

	assert.Equal(t, []string{"git rev-parse HEAD", "git status"}, f.CommandLines())
	assert.Equal(t, "/repo", f.Calls()[0].Dir)
}

func TestFakeRunnerMissingTool(t *testing.T) {
	f := NewFakeRunner()
	f.Missing("gh")

	_, err := f.LookPath("gh")
	assert.ErrorIs(t, err, errs.ErrToolMissing)
	_, err = f.Run(context.Background(), "", "gh", "pr", "view")
	assert.ErrorIs(t, err, errs.ErrToolMissing)
	assert.Len(t, f.CallsTo("gh"), 1)
}

func TestFakeRunnerHangHonorsContext(t *testing.T) {
	f := NewFakeRunner()
	f.On("claude").Hang()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out, err := f.Run(ctx, "", "claude")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, -1, out.ExitCode)
}
