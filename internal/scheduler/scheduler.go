package scheduler

import (
	"context"
	"log/slog"
	"time"

	"notion_syncer/internal/domain"
)

const defaultSyncTimeout = 5 * time.Minute

// Syncer defines the interface for sync operations.
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncStats, error)
}

type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a scheduler that runs syncer every interval. Each run
// is bounded by timeout; a non-positive timeout means five minutes.
func NewScheduler(syncer Syncer, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = defaultSyncTimeout
	}
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start syncs once right away and then on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

// RunOnce performs a single sync and returns its outcome.
func (s *Scheduler) RunOnce(ctx context.Context) (*domain.SyncStats, error) {
	syncCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.syncer.Sync(syncCtx)
}

func (s *Scheduler) runSync(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("sync failed", "error", err)
	}
}
