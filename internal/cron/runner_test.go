package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingRefresher struct {
	refreshes atomic.Int32
	syncs     atomic.Int32
	err       error
}

func (c *countingRefresher) Refresh(context.Context) error {
	c.refreshes.Add(1)
	return c.err
}

func (c *countingRefresher) Sync(context.Context) (bool, error) {
	c.syncs.Add(1)
	return false, c.err
}

func TestNewRunner_InvalidSpec(t *testing.T) {
	_, err := NewRunner(Config{RolloverSpec: "every other tuesday"}, &countingRefresher{}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewRunner_DefaultsToMidnight(t *testing.T) {
	r, err := NewRunner(Config{}, &countingRefresher{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultRollover, r.config.RolloverSpec)

	require.NoError(t, r.Start())
	defer r.Stop()

	next := r.NextRollover()
	require.False(t, next.IsZero())
	assert.Zero(t, next.Hour())
	assert.Zero(t, next.Minute())
}

func TestRunner_StartStop(t *testing.T) {
	r, err := NewRunner(Config{}, &countingRefresher{}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, r.Start())
	assert.True(t, r.IsRunning())
	assert.Error(t, r.Start(), "second start fails")

	r.Stop()
	assert.False(t, r.IsRunning())
	r.Stop()
}

func TestRunner_RunsJobs(t *testing.T) {
	target := &countingRefresher{}
	r, err := NewRunner(Config{RolloverSpec: "@every 1s", PollInterval: time.Second}, target, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, r.Start())
	defer r.Stop()

	require.Eventually(t, func() bool {
		return target.refreshes.Load() > 0 && target.syncs.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRunner_JobErrorsAreLogged(t *testing.T) {
	target := &countingRefresher{err: errors.New("store offline")}
	r, err := NewRunner(Config{RolloverSpec: "@every 1s"}, target, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, r.Start())
	defer r.Stop()

	require.Eventually(t, func() bool { return target.refreshes.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
	assert.Zero(t, target.syncs.Load(), "polling is off when the interval is zero")
}
