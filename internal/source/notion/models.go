package notion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ObjectPage = "page"
	ObjectList = "list"

	ParentDatabase = "database_id"
)

// QueryResponse is the envelope returned by the database query endpoint.
// Results are kept raw so that a single malformed page does not fail the
// whole batch.
type QueryResponse struct {
	Object     string            `json:"object"`
	Results    []json.RawMessage `json:"results"`
	NextCursor *string           `json:"next_cursor"`
	HasMore    bool              `json:"has_more"`
}

// Page is one item of the blog database as returned by the Notion API.
type Page struct {
	Object         string     `json:"object"`
	ID             string     `json:"id"`
	CreatedTime    time.Time  `json:"created_time"`
	LastEditedTime time.Time  `json:"last_edited_time"`
	CreatedBy      UserRef    `json:"created_by"`
	LastEditedBy   UserRef    `json:"last_edited_by"`
	Cover          *Asset     `json:"cover"`
	Icon           *Asset     `json:"icon"`
	Parent         Parent     `json:"parent"`
	Archived       bool       `json:"archived"`
	InTrash        bool       `json:"in_trash"`
	Properties     Properties `json:"properties"`
	URL            string     `json:"url"`
	PublicURL      *string    `json:"public_url"`
}

type UserRef struct {
	Object string `json:"object"`
	ID     string `json:"id"`
}

type Parent struct {
	Type       string `json:"type"`
	DatabaseID string `json:"database_id"`
}

const (
	AssetExternal    = "external"
	AssetFile        = "file"
	AssetEmoji       = "emoji"
	AssetCustomEmoji = "custom_emoji"
)

// Asset is a cover or icon. The API sends a file object; a bare URL string
// is accepted too and leaves Type empty.
type Asset struct {
	Type  string
	URL   string
	Emoji string
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var url string
	if err := json.Unmarshal(data, &url); err == nil {
		*a = Asset{URL: url}
		return nil
	}

	type link struct {
		URL string `json:"url"`
	}
	var obj struct {
		Type        string `json:"type"`
		Emoji       string `json:"emoji"`
		External    *link  `json:"external"`
		File        *link  `json:"file"`
		CustomEmoji *link  `json:"custom_emoji"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: asset: %v", ErrSchemaMismatch, err)
	}

	var src *link
	switch obj.Type {
	case AssetExternal:
		src = obj.External
	case AssetFile:
		src = obj.File
	case AssetCustomEmoji:
		src = obj.CustomEmoji
	case AssetEmoji:
		if obj.Emoji == "" {
			return fmt.Errorf("%w: emoji asset has no emoji", ErrSchemaMismatch)
		}
		*a = Asset{Type: obj.Type, Emoji: obj.Emoji}
		return nil
	default:
		return fmt.Errorf("%w: asset type %q", ErrSchemaMismatch, obj.Type)
	}
	if src == nil {
		return fmt.Errorf("%w: no %q value", ErrSchemaMismatch, obj.Type)
	}

	*a = Asset{Type: obj.Type, URL: src.URL}
	return nil
}

// Tag is a multi-select option.
type Tag struct {
	Color string `json:"color"`
	ID    string `json:"id"`
	Name  string `json:"name"`
}

// Validate checks the parts of a page that the JSON decoder cannot enforce.
func (p *Page) Validate() error {
	if p.Object != ObjectPage {
		return fmt.Errorf("%w: object is %q, want %q", ErrSchemaMismatch, p.Object, ObjectPage)
	}
	if _, err := uuid.Parse(p.ID); err != nil {
		return fmt.Errorf("%w: id %q: %v", ErrSchemaMismatch, p.ID, err)
	}
	if p.Parent.Type != ParentDatabase || p.Parent.DatabaseID == "" {
		return fmt.Errorf("%w: parent is not a database", ErrSchemaMismatch)
	}
	if p.Properties.ID.Type == "" {
		return fmt.Errorf("%w: no properties", ErrSchemaMismatch)
	}
	for i, run := range p.Properties.Title.Title {
		if run.Type != RichTextText {
			return fmt.Errorf("%w: title run %d has type %q", ErrSchemaMismatch, i, run.Type)
		}
	}
	return nil
}

// InDatabase reports whether the page belongs to the given database. Both ids
// are compared in canonical form.
func (p *Page) InDatabase(databaseID string) bool {
	got, err := uuid.Parse(p.Parent.DatabaseID)
	if err != nil {
		return false
	}
	want, err := uuid.Parse(databaseID)
	if err != nil {
		return false
	}
	return got == want
}

// TitleText joins the plain text of all title runs.
func (p Properties) TitleText() string {
	var sb strings.Builder
	for _, run := range p.Title.Title {
		sb.WriteString(run.PlainText)
	}
	return sb.String()
}
