package domain

import "time"

type Post struct {
	ID             int64     `json:"id"`
	SourceID       string    `json:"source_id"`   // identifies the source (e.g., "notion")
	ExternalID     string    `json:"external_id"` // page id in the source
	Number         int64     `json:"number"`
	Slug           string    `json:"slug"`
	Title          string    `json:"title"`
	Published      bool      `json:"published"`
	Archived       bool      `json:"archived"`
	URL            string    `json:"url"`
	PublicURL      *string   `json:"public_url"`
	Link           *string   `json:"link"`
	Thumbnail      *string   `json:"thumbnail"`
	Tags           []Tag     `json:"tags"`
	CreatedTime    time.Time `json:"created_time"`
	LastEditedTime time.Time `json:"last_edited_time"`
	CreatedAt      time.Time `json:"-"`
	UpdatedAt      time.Time `json:"-"`
}

type Tag struct {
	ID    string `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Color string `db:"color" json:"color"`
}

type SyncState struct {
	ID             int64     `db:"id"`
	SourceID       string    `db:"source_id"`
	LastSyncedAt   time.Time `db:"last_synced_at"`
	LastPostNumber int64     `db:"last_post_number"`
	TotalSynced    int64     `db:"total_synced"`
}
