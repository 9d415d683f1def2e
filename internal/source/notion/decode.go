package notion

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DecodePage decodes and validates a single page record. The page id is
// rewritten into canonical UUID form.
func DecodePage(data []byte) (*Page, error) {
	var p Page
	if err := json.Unmarshal(data, &p); err != nil {
		if errors.Is(err, ErrSchemaMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	id, _ := uuid.Parse(p.ID)
	p.ID = id.String()

	return &p, nil
}

// pageID pulls the id out of a page that failed to decode, for logging.
func pageID(data []byte) string {
	var head struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(data, &head)
	return head.ID
}
