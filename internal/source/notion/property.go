package notion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// PropertyType is the discriminator carried by every page property. The
// value of a property lives under the key named by its type.
type PropertyType string

const (
	PropertyUniqueID    PropertyType = "unique_id"
	PropertyCreatedTime PropertyType = "created_time"
	PropertySelect      PropertyType = "select"
	PropertyMultiSelect PropertyType = "multi_select"
	PropertyURL         PropertyType = "url"
	PropertyTitle       PropertyType = "title"
)

type RichTextType string

const RichTextText RichTextType = "text"

// PublishLabel is the option name of the publish select property.
type PublishLabel string

const (
	LabelPublic  PublishLabel = "公開"
	LabelPrivate PublishLabel = "非公開"
)

func (l PublishLabel) IsPublic() bool {
	return l == LabelPublic
}

func (l *PublishLabel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: publish label: %v", ErrSchemaMismatch, err)
	}
	switch label := PublishLabel(norm.NFC.String(s)); label {
	case LabelPublic, LabelPrivate:
		*l = label
		return nil
	}
	return fmt.Errorf("%w: publish label %q", ErrSchemaMismatch, s)
}

// Properties is the fixed property set of the blog database.
type Properties struct {
	ID        UniqueIDProperty    `json:"ID"`
	CreatedAt CreatedTimeProperty `json:"created_at"`
	Publish   PublishProperty     `json:"publish"`
	Tags      MultiSelectProperty `json:"tags"`
	Link      URLProperty         `json:"link"`
	Thumbnail URLProperty         `json:"thumbnail"`
	Title     TitleProperty       `json:"title"`
}

type UniqueIDProperty struct {
	ID       string       `json:"id"`
	Type     PropertyType `json:"type"`
	UniqueID UniqueID     `json:"unique_id"`
}

type UniqueID struct {
	Number int64  `json:"number"`
	Prefix string `json:"prefix"`
}

// String renders the id the way Notion displays it, e.g. "BLOG-12".
func (u UniqueID) String() string {
	if u.Prefix == "" {
		return fmt.Sprintf("%d", u.Number)
	}
	return fmt.Sprintf("%s-%d", u.Prefix, u.Number)
}

type CreatedTimeProperty struct {
	ID          string       `json:"id"`
	Type        PropertyType `json:"type"`
	CreatedTime time.Time    `json:"created_time"`
}

type PublishProperty struct {
	ID     string        `json:"id"`
	Type   PropertyType  `json:"type"`
	Select PublishOption `json:"select"`
}

type PublishOption struct {
	Color string       `json:"color"`
	ID    string       `json:"id"`
	Name  PublishLabel `json:"name"`
}

func (o *PublishOption) UnmarshalJSON(data []byte) error {
	type option PublishOption
	var raw struct {
		option
		Name *PublishLabel `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Name == nil {
		return fmt.Errorf("%w: publish option has no name", ErrSchemaMismatch)
	}
	*o = PublishOption(raw.option)
	o.Name = *raw.Name
	return nil
}

type MultiSelectProperty struct {
	ID          string       `json:"id"`
	Type        PropertyType `json:"type"`
	MultiSelect []Tag        `json:"multi_select"`
}

type URLProperty struct {
	ID   string       `json:"id"`
	Type PropertyType `json:"type"`
	URL  *string      `json:"url"`
}

type TitleProperty struct {
	ID    string       `json:"id"`
	Type  PropertyType `json:"type"`
	Title []RichText   `json:"title"`
}

// RichText is one styled run of a title.
type RichText struct {
	Type        RichTextType `json:"type"`
	Text        TextContent  `json:"text"`
	Annotations Annotations  `json:"annotations"`
	PlainText   string       `json:"plain_text"`
	Href        *string      `json:"href"`
}

type TextContent struct {
	Content string  `json:"content"`
	Link    *string `json:"link"`
}

type Annotations struct {
	Bold          bool   `json:"bold"`
	Italic        bool   `json:"italic"`
	Strikethrough bool   `json:"strikethrough"`
	Underline     bool   `json:"underline"`
	Code          bool   `json:"code"`
	Color         string `json:"color"`
}

func (p *Properties) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: properties: %v", ErrSchemaMismatch, err)
	}

	fields := []struct {
		name string
		want PropertyType
		dst  any
	}{
		{"ID", PropertyUniqueID, &p.ID},
		{"created_at", PropertyCreatedTime, &p.CreatedAt},
		{"publish", PropertySelect, &p.Publish},
		{"tags", PropertyMultiSelect, &p.Tags},
		{"link", PropertyURL, &p.Link},
		{"thumbnail", PropertyURL, &p.Thumbnail},
		{"title", PropertyTitle, &p.Title},
	}

	for _, f := range fields {
		msg, ok := raw[f.name]
		if !ok {
			return fmt.Errorf("%w: missing property %q", ErrSchemaMismatch, f.name)
		}
		if err := decodeProperty(msg, f.want, f.dst); err != nil {
			return fmt.Errorf("property %q: %w", f.name, err)
		}
	}

	return nil
}

// decodeProperty decodes a single property into dst after checking that its
// discriminator is want and that the value sits under the matching key.
func decodeProperty(data json.RawMessage, want PropertyType, dst any) error {
	var head map[string]json.RawMessage
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	var got PropertyType
	if t, ok := head["type"]; ok {
		if err := json.Unmarshal(t, &got); err != nil {
			return fmt.Errorf("%w: type: %v", ErrSchemaMismatch, err)
		}
	}
	if got != want {
		return fmt.Errorf("%w: type is %q, want %q", ErrSchemaMismatch, got, want)
	}
	value, ok := head[string(want)]
	if !ok {
		return fmt.Errorf("%w: no %q value", ErrSchemaMismatch, want)
	}
	// only url values may be null
	if want != PropertyURL && bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
		return fmt.Errorf("%w: %q value is null", ErrSchemaMismatch, want)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		if errors.Is(err, ErrSchemaMismatch) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return nil
}
