package notion

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSchemaMismatch is wrapped by every error caused by a payload that does
// not have the shape of a blog database page.
var ErrSchemaMismatch = errors.New("schema mismatch")

// APIError is the error object the Notion API returns with non-2xx responses.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notion api: status %d", e.Status)
	}
	return fmt.Sprintf("notion api: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// Retryable reports whether repeating the request may succeed.
func (e *APIError) Retryable() bool {
	switch {
	case e.Status == http.StatusTooManyRequests, e.Status == http.StatusConflict:
		return true
	case e.Status >= http.StatusInternalServerError:
		return true
	}
	return false
}
