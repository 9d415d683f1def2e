package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"notion_syncer/internal/domain"
)

type TagStore struct {
	db *sqlx.DB
}

func NewTagStore(db *sqlx.DB) *TagStore {
	return &TagStore{db: db}
}

// UpsertBatch writes all tags in one statement. Later duplicates of an id
// within the batch are ignored.
func (s *TagStore) UpsertBatch(ctx context.Context, tags []domain.Tag) error {
	tags = uniqueTags(tags)
	if len(tags) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO tags (id, name, color) VALUES ")
	args := make([]any, 0, len(tags)*3)

	for i, tag := range tags {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholders(i*3+1, 3))
		args = append(args, tag.ID, tag.Name, tag.Color)
	}
	sb.WriteString(" ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, color = EXCLUDED.color")

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), args...)
	return err
}

// LinkToPost replaces the tag links of a post. An empty tagIDs unlinks all.
func (s *TagStore) LinkToPost(ctx context.Context, postID int64, tagIDs []string) error {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx,
		"DELETE FROM post_tags WHERE post_id = $1",
		postID,
	)
	if err != nil {
		return err
	}

	if len(tagIDs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO post_tags (post_id, tag_id) VALUES ")
	args := make([]any, 0, len(tagIDs)+1)
	args = append(args, postID)

	for i, tagID := range tagIDs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($1, $")
		sb.WriteString(strconv.Itoa(i + 2))
		sb.WriteString(")")
		args = append(args, tagID)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")

	_, err = exec.ExecContext(ctx, sb.String(), args...)
	return err
}

func (s *TagStore) GetByPostID(ctx context.Context, postID int64) ([]domain.Tag, error) {
	query := `
		SELECT t.id, t.name, t.color
		FROM tags t
		INNER JOIN post_tags pt ON pt.tag_id = t.id
		WHERE pt.post_id = $1
		ORDER BY t.name`

	var tags []domain.Tag
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &tags, query, postID)
	return tags, err
}

func uniqueTags(tags []domain.Tag) []domain.Tag {
	seen := make(map[string]struct{}, len(tags))
	out := make([]domain.Tag, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag.ID]; ok {
			continue
		}
		seen[tag.ID] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// placeholders renders "($start, $start+1, ...)" with n parameters.
func placeholders(start, n int) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('$')
		sb.WriteString(strconv.Itoa(start + i))
	}
	sb.WriteByte(')')
	return sb.String()
}
