package notion

import "notion_syncer/internal/domain"

func (s *Source) transform(pages []Page) []domain.Post {
	posts := make([]domain.Post, 0, len(pages))
	for i := range pages {
		posts = append(posts, ToPost(&pages[i]))
	}
	return posts
}

// ToPost converts a validated page into a post.
func ToPost(p *Page) domain.Post {
	props := p.Properties

	post := domain.Post{
		SourceID:       SourceID,
		ExternalID:     p.ID,
		Number:         props.ID.UniqueID.Number,
		Slug:           props.ID.UniqueID.String(),
		Title:          props.TitleText(),
		Published:      props.Publish.Select.Name.IsPublic(),
		Archived:       p.Archived || p.InTrash,
		URL:            p.URL,
		PublicURL:      p.PublicURL,
		Link:           props.Link.URL,
		Thumbnail:      props.Thumbnail.URL,
		CreatedTime:    props.CreatedAt.CreatedTime,
		LastEditedTime: p.LastEditedTime,
	}

	for _, tag := range props.Tags.MultiSelect {
		post.Tags = append(post.Tags, domain.Tag{
			ID:    tag.ID,
			Name:  tag.Name,
			Color: tag.Color,
		})
	}

	return post
}
