package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notion_syncer/internal/domain"
)

type fakeSyncer struct {
	calls    atomic.Int32
	err      error
	deadline atomic.Bool
}

func (f *fakeSyncer) Sync(ctx context.Context) (*domain.SyncStats, error) {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		f.deadline.Store(true)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SyncStats{SourceID: "fake"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScheduler_RunOnce(t *testing.T) {
	syncer := &fakeSyncer{}
	sched := NewScheduler(syncer, time.Hour, time.Second, testLogger())

	stats, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fake", stats.SourceID)
	assert.Equal(t, int32(1), syncer.calls.Load())
	assert.True(t, syncer.deadline.Load())
}

func TestScheduler_RunOnceReturnsError(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("boom")}
	sched := NewScheduler(syncer, time.Hour, 0, testLogger())

	_, err := sched.RunOnce(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestScheduler_StartRunsImmediatelyAndOnTicks(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("sync errors do not stop the loop")}
	sched := NewScheduler(syncer, 10*time.Millisecond, time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sched.Start(ctx)
	}()

	assert.Eventually(t, func() bool {
		return syncer.calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
