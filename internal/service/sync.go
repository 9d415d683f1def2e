package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"notion_syncer/internal/config"
	"notion_syncer/internal/domain"
)

const defaultCacheSize = 1024

type SyncService struct {
	source    Source
	posts     PostStore
	tags      TagStore
	syncState SyncStateStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
	config    config.SyncConfig

	// last edit time of every post known to be stored, by external id
	seen *lru.Cache[string, time.Time]
}

func NewSyncService(
	source Source,
	posts PostStore,
	tags TagStore,
	syncState SyncStateStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	// lru.New only fails for a non-positive size
	seen, _ := lru.New[string, time.Time](size)

	return &SyncService{
		source:    source,
		posts:     posts,
		tags:      tags,
		syncState: syncState,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("source", source.ID()),
		config:    cfg,
		seen:      seen,
	}
}

func (s *SyncService) Sync(ctx context.Context) (*domain.SyncStats, error) {
	startTime := time.Now()
	s.logger.Info("starting sync",
		"source_name", s.source.Name(),
		"max_pages", s.config.MaxPagesPerSync,
		"max_historical_days", s.config.MaxHistoricalDays,
	)

	posts, err := s.source.FetchPosts(ctx, s.config.MaxPagesPerSync)
	if err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}

	s.logger.Info("fetched posts from source", "count", len(posts))

	cutoffDate := time.Now().AddDate(0, 0, -s.config.MaxHistoricalDays)
	posts = s.filterByDate(posts, cutoffDate)
	s.logger.Debug("filtered by date", "remaining", len(posts))

	toSync, drafts, err := s.filterForSync(ctx, posts)
	if err != nil {
		return nil, fmt.Errorf("filter for sync: %w", err)
	}

	s.logger.Info("posts to sync", "count", len(toSync), "drafts", drafts)

	stats := &domain.SyncStats{
		SourceID: s.source.ID(),
		Fetched:  len(posts),
		Drafts:   drafts,
		Skipped:  len(posts) - len(toSync) - drafts,
	}

	var maxNumber int64
	for i := range toSync {
		post := &toSync[i]
		isNew, err := s.savePost(ctx, post)
		if err != nil {
			s.logger.Error("failed to save post",
				"external_id", post.ExternalID,
				"error", err,
			)
			stats.Errors++
			continue
		}

		s.seen.Add(post.ExternalID, post.LastEditedTime)
		if post.Number > maxNumber {
			maxNumber = post.Number
		}

		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, post, isNew); err != nil {
				s.logger.Error("failed to publish post",
					"external_id", post.ExternalID,
					"error", err,
				)
				stats.Errors++
			} else {
				stats.Published++
			}
		}

		if isNew {
			stats.New++
		} else {
			stats.Updated++
		}
	}

	if err := s.updateSyncState(ctx, stats, maxNumber); err != nil {
		return stats, fmt.Errorf("update sync state: %w", err)
	}

	stats.Duration = time.Since(startTime)

	s.logger.Info("sync completed",
		"new", stats.New,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"drafts", stats.Drafts,
		"errors", stats.Errors,
		"published", stats.Published,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *SyncService) filterByDate(posts []domain.Post, cutoff time.Time) []domain.Post {
	var filtered []domain.Post
	for _, p := range posts {
		if p.LastEditedTime.After(cutoff) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// filterForSync keeps posts that are new or edited since they were stored.
// Private posts that were never stored are drafts and are dropped unless
// drafts are synced; once stored, a post keeps syncing so that consumers
// see it being unpublished.
func (s *SyncService) filterForSync(ctx context.Context, posts []domain.Post) ([]domain.Post, int, error) {
	var unknown []domain.Post
	for _, p := range posts {
		if seenAt, ok := s.seen.Get(p.ExternalID); ok && !p.LastEditedTime.After(seenAt) {
			continue
		}
		unknown = append(unknown, p)
	}

	if len(unknown) == 0 {
		return nil, 0, nil
	}

	externalIDs := make([]string, len(unknown))
	for i, p := range unknown {
		externalIDs[i] = p.ExternalID
	}

	existing, err := s.posts.GetExistingBySourceAndExternalIDs(ctx, s.source.ID(), externalIDs)
	if err != nil {
		return nil, 0, err
	}

	var toSync []domain.Post
	drafts := 0
	for _, post := range unknown {
		existingEdit, exists := existing[post.ExternalID]

		switch {
		case !exists && !post.Published && !s.config.IncludeDrafts:
			drafts++
		case !exists:
			toSync = append(toSync, post)
		case post.LastEditedTime.After(existingEdit):
			toSync = append(toSync, post)
		default:
			s.seen.Add(post.ExternalID, existingEdit)
		}
	}

	return toSync, drafts, nil
}

func (s *SyncService) savePost(ctx context.Context, post *domain.Post) (bool, error) {
	existing, err := s.posts.GetExistingBySourceAndExternalIDs(ctx, s.source.ID(), []string{post.ExternalID})
	if err != nil {
		return false, err
	}
	isNew := len(existing) == 0

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		postID, err := s.posts.Upsert(txCtx, post)
		if err != nil {
			return fmt.Errorf("upsert post: %w", err)
		}
		post.ID = postID

		if len(post.Tags) > 0 {
			if err := s.tags.UpsertBatch(txCtx, post.Tags); err != nil {
				return fmt.Errorf("upsert tags: %w", err)
			}
		}

		tagIDs := make([]string, len(post.Tags))
		for i, tag := range post.Tags {
			tagIDs[i] = tag.ID
		}

		if err := s.tags.LinkToPost(txCtx, postID, tagIDs); err != nil {
			return fmt.Errorf("link tags: %w", err)
		}

		return nil
	})

	return isNew, err
}

func (s *SyncService) updateSyncState(ctx context.Context, stats *domain.SyncStats, maxNumber int64) error {
	state, err := s.syncState.Get(ctx, s.source.ID())
	if err != nil {
		return err
	}

	state.SourceID = s.source.ID()
	state.LastSyncedAt = time.Now()
	state.TotalSynced += int64(stats.New + stats.Updated)
	if maxNumber > state.LastPostNumber {
		state.LastPostNumber = maxNumber
	}

	return s.syncState.Update(ctx, state)
}
