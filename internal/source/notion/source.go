package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"notion_syncer/internal/domain"
)

const (
	SourceID   = "notion"
	SourceName = "Notion"

	maxErrorBody = 64 << 10
)

// Config holds Notion source configuration.
type Config struct {
	BaseURL        string
	Token          string
	DatabaseID     string
	Version        string
	PageSize       int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source implements service.Source for a Notion database.
type Source struct {
	httpClient     *http.Client
	baseURL        string
	token          string
	databaseID     string
	version        string
	pageSize       int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// New creates a new Notion source.
func New(cfg Config, logger *slog.Logger) (*Source, error) {
	if cfg.Token == "" {
		return nil, errors.New("notion token is required")
	}

	dbID, err := uuid.Parse(cfg.DatabaseID)
	if err != nil {
		return nil, fmt.Errorf("parse database id: %w", err)
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		token:          cfg.Token,
		databaseID:     dbID.String(),
		version:        cfg.Version,
		pageSize:       cfg.PageSize,
		maxAttempts:    maxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceID),
	}, nil
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return SourceName
}

// FetchPosts queries the database, most recently edited pages first, and
// returns the valid pages as posts. Pages that do not match the expected
// schema are logged and left out.
func (s *Source) FetchPosts(ctx context.Context, maxPages int) ([]domain.Post, error) {
	var pages []Page
	var cursor *string

	for page := 0; page < maxPages; page++ {
		resp, err := s.queryPage(ctx, cursor)
		if err != nil {
			return s.transform(pages), fmt.Errorf("query page %d: %w", page, err)
		}

		decoded := s.decodeResults(resp.Results)
		pages = append(pages, decoded...)

		s.logger.Debug("fetched page",
			"page", page,
			"results", len(resp.Results),
			"valid", len(decoded),
			"total", len(pages),
		)

		if !resp.HasMore || resp.NextCursor == nil {
			break
		}
		cursor = resp.NextCursor
	}

	return s.transform(pages), nil
}

func (s *Source) decodeResults(results []json.RawMessage) []Page {
	pages := make([]Page, 0, len(results))

	for _, raw := range results {
		p, err := DecodePage(raw)
		if err != nil {
			s.logger.Warn("skipping page",
				"page_id", pageID(raw),
				"error", err,
			)
			continue
		}

		if !p.InDatabase(s.databaseID) {
			s.logger.Warn("skipping page from another database",
				"page_id", p.ID,
				"database_id", p.Parent.DatabaseID,
			)
			continue
		}

		pages = append(pages, *p)
	}

	return pages
}

func (s *Source) queryPage(ctx context.Context, cursor *string) (*QueryResponse, error) {
	var resp *QueryResponse
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		resp, err = s.doRequest(ctx, cursor)
		if err == nil {
			return resp, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, err
		}

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
}

type queryRequest struct {
	PageSize    int         `json:"page_size,omitempty"`
	StartCursor *string     `json:"start_cursor,omitempty"`
	Sorts       []querySort `json:"sorts"`
}

type querySort struct {
	Timestamp string `json:"timestamp"`
	Direction string `json:"direction"`
}

func (s *Source) doRequest(ctx context.Context, cursor *string) (*QueryResponse, error) {
	url := fmt.Sprintf("%s/databases/%s/query", s.baseURL, s.databaseID)

	body, err := json.Marshal(queryRequest{
		PageSize:    s.pageSize,
		StartCursor: cursor,
		Sorts:       []querySort{{Timestamp: "last_edited_time", Direction: "descending"}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Notion-Version", s.version)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "NotionSyncer/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var qr QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if qr.Object != ObjectList {
		return nil, fmt.Errorf("%w: response object is %q", ErrSchemaMismatch, qr.Object)
	}

	return &qr, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = json.Unmarshal(data, apiErr)
	// the transport status wins over whatever the body claims
	apiErr.Status = resp.StatusCode
	return apiErr
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt && backoff < s.maxBackoff; i++ {
		backoff *= 2
	}
	return min(backoff, s.maxBackoff)
}
