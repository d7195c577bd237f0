package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	recaperr "github.com/recaphq/recap/internal/errors"
)

type fakeFreezer struct {
	freezes   atomic.Int64
	ensures   atomic.Int64
	freezeErr error
}

func (f *fakeFreezer) FreezeCurrentReport(ctx context.Context) (int64, error) {
	f.freezes.Add(1)
	if f.freezeErr != nil {
		return 0, f.freezeErr
	}
	return f.freezes.Load(), nil
}

func (f *fakeFreezer) EnsureActiveReport(ctx context.Context) (int64, error) {
	f.ensures.Add(1)
	return 1, nil
}

func TestRunOnceFreezes(t *testing.T) {
	freezer := &fakeFreezer{}
	daemon := NewDaemon(time.Hour, freezer, zerolog.Nop())

	daemon.RunOnce(context.Background())

	assert.Equal(t, int64(1), freezer.freezes.Load())
	assert.Zero(t, freezer.ensures.Load())
}

func TestRunOnceAbsorbsLifecycleConflicts(t *testing.T) {
	freezer := &fakeFreezer{
		freezeErr: recaperr.NewAlreadyFrozen("raced a manual freeze"),
	}
	daemon := NewDaemon(time.Hour, freezer, zerolog.Nop())

	daemon.RunOnce(context.Background())

	assert.Equal(t, int64(1), freezer.freezes.Load())
	assert.Zero(t, freezer.ensures.Load(), "a conflict needs no healing")
}

func TestRunOnceHealsAfterRolloverFailure(t *testing.T) {
	freezer := &fakeFreezer{
		freezeErr: recaperr.New(recaperr.ErrCategoryLifecycle, recaperr.CodeRolloverFailed, "rollover failed"),
	}
	daemon := NewDaemon(time.Hour, freezer, zerolog.Nop())

	daemon.RunOnce(context.Background())

	assert.Equal(t, int64(1), freezer.ensures.Load(), "rollover failure reopens the active report")
}

func TestRunOnceSkipsWhenCancelled(t *testing.T) {
	freezer := &fakeFreezer{}
	daemon := NewDaemon(time.Hour, freezer, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	daemon.RunOnce(ctx)

	assert.Zero(t, freezer.freezes.Load())
}

func TestDaemonStartStop(t *testing.T) {
	freezer := &fakeFreezer{}
	daemon := NewDaemon(10*time.Millisecond, freezer, zerolog.Nop())

	require.NoError(t, daemon.Start(context.Background()))
	require.Error(t, daemon.Start(context.Background()), "double start is rejected")

	assert.Eventually(t, func() bool {
		return freezer.freezes.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, daemon.Stop())
	require.NoError(t, daemon.Stop(), "stop is idempotent")

	after := freezer.freezes.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, freezer.freezes.Load(), "no freezes after stop")
}

func TestDaemonDoesNotFreezeImmediately(t *testing.T) {
	freezer := &fakeFreezer{}
	daemon := NewDaemon(time.Hour, freezer, zerolog.Nop())

	require.NoError(t, daemon.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, daemon.Stop())

	assert.Zero(t, freezer.freezes.Load(), "first freeze waits a full interval")
}
