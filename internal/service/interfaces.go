package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"notion_syncer/internal/domain"
)

type PostStore interface {
	Upsert(ctx context.Context, post *domain.Post) (int64, error)
	GetExistingBySourceAndExternalIDs(ctx context.Context, sourceID string, ids []string) (map[string]time.Time, error)
}

type TagStore interface {
	UpsertBatch(ctx context.Context, tags []domain.Tag) error
	LinkToPost(ctx context.Context, postID int64, tagIDs []string) error
}

type SyncStateStore interface {
	Get(ctx context.Context, sourceID string) (*domain.SyncState, error)
	Update(ctx context.Context, state *domain.SyncState) error
}

type Source interface {
	ID() string
	Name() string
	FetchPosts(ctx context.Context, maxPages int) ([]domain.Post, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, post *domain.Post, isNew bool) error
	Close() error
}
