package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"notion_syncer/internal/domain"
)

type PostStore struct {
	db *sqlx.DB
}

func NewPostStore(db *sqlx.DB) *PostStore {
	return &PostStore{db: db}
}

// Upsert inserts the post or, when a stored copy exists, overwrites it only if
// the incoming edit is newer. It returns the row id either way.
func (s *PostStore) Upsert(ctx context.Context, post *domain.Post) (int64, error) {
	exec := GetExecutor(ctx, s.db)

	query := `
		INSERT INTO posts (
			source_id, external_id, number, slug, title, published, archived,
			url, public_url, link, thumbnail, created_time, last_edited_time
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		ON CONFLICT (source_id, external_id) DO UPDATE SET
			number = EXCLUDED.number,
			slug = EXCLUDED.slug,
			title = EXCLUDED.title,
			published = EXCLUDED.published,
			archived = EXCLUDED.archived,
			url = EXCLUDED.url,
			public_url = EXCLUDED.public_url,
			link = EXCLUDED.link,
			thumbnail = EXCLUDED.thumbnail,
			last_edited_time = EXCLUDED.last_edited_time,
			updated_at = NOW()
		WHERE posts.last_edited_time < EXCLUDED.last_edited_time
		RETURNING id`

	var id int64
	err := exec.QueryRowxContext(ctx, query,
		post.SourceID,
		post.ExternalID,
		post.Number,
		post.Slug,
		post.Title,
		post.Published,
		post.Archived,
		post.URL,
		post.PublicURL,
		post.Link,
		post.Thumbnail,
		post.CreatedTime,
		post.LastEditedTime,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		err = exec.QueryRowxContext(ctx,
			"SELECT id FROM posts WHERE source_id = $1 AND external_id = $2",
			post.SourceID, post.ExternalID,
		).Scan(&id)
	}

	if err != nil {
		return 0, err
	}

	return id, nil
}

func (s *PostStore) GetExistingBySourceAndExternalIDs(ctx context.Context, sourceID string, ids []string) (map[string]time.Time, error) {
	if len(ids) == 0 {
		return make(map[string]time.Time), nil
	}

	query := `SELECT external_id, last_edited_time FROM posts WHERE source_id = $1 AND external_id = ANY($2)`

	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, query, sourceID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]time.Time)
	for rows.Next() {
		var extID string
		var lastEdited time.Time
		if err := rows.Scan(&extID, &lastEdited); err != nil {
			return nil, err
		}
		result[extID] = lastEdited
	}

	return result, rows.Err()
}
