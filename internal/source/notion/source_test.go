package notion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const (
	testDatabaseID = "8f2c1a4e-5b6d-4e7f-9a0b-1c2d3e4f5a6b"
	testToken      = "secret_test"
)

type recordedRequest struct {
	method  string
	path    string
	header  http.Header
	payload queryRequest
}

type SourceTestSuite struct {
	suite.Suite

	server    *httptest.Server
	mu        sync.Mutex
	requests  []recordedRequest
	responses []func(w http.ResponseWriter)

	logger *slog.Logger
}

func (s *SourceTestSuite) SetupTest() {
	s.requests = nil
	s.responses = nil
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload queryRequest
		_ = json.Unmarshal(body, &payload)

		s.mu.Lock()
		n := len(s.requests)
		s.requests = append(s.requests, recordedRequest{
			method:  r.Method,
			path:    r.URL.Path,
			header:  r.Header.Clone(),
			payload: payload,
		})
		respond := s.responses[len(s.responses)-1]
		if n < len(s.responses) {
			respond = s.responses[n]
		}
		s.mu.Unlock()

		respond(w)
	}))
}

func (s *SourceTestSuite) TearDownTest() {
	s.server.Close()
}

func TestSourceTestSuite(t *testing.T) {
	suite.Run(t, new(SourceTestSuite))
}

func (s *SourceTestSuite) newSource() *Source {
	src, err := New(Config{
		BaseURL:        s.server.URL + "/v1/",
		Token:          testToken,
		DatabaseID:     "8f2c1a4e5b6d4e7f9a0b1c2d3e4f5a6b",
		Version:        "2022-06-28",
		PageSize:       2,
		Timeout:        5 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, s.logger)
	s.Require().NoError(err)
	return src
}

func (s *SourceTestSuite) page(id string, mutate func(m map[string]any)) json.RawMessage {
	m := loadFixture(s.T())
	m["id"] = id
	if mutate != nil {
		mutate(m)
	}
	return encode(s.T(), m)
}

func (s *SourceTestSuite) reply(results []json.RawMessage, next *string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(QueryResponse{
			Object:     ObjectList,
			Results:    results,
			NextCursor: next,
			HasMore:    next != nil,
		})
	}
}

func replyError(status int, code, message string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object":  "error",
			"status":  status,
			"code":    code,
			"message": message,
		})
	}
}

func (s *SourceTestSuite) script(responses ...func(w http.ResponseWriter)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = responses
}

func (s *SourceTestSuite) recorded() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedRequest(nil), s.requests...)
}

func cursor(c string) *string {
	return &c
}

func (s *SourceTestSuite) TestNew_RequiresToken() {
	_, err := New(Config{DatabaseID: testDatabaseID}, s.logger)
	s.Error(err)
}

func (s *SourceTestSuite) TestNew_RejectsBadDatabaseID() {
	_, err := New(Config{Token: testToken, DatabaseID: "blog"}, s.logger)
	s.Error(err)
	s.Contains(err.Error(), "parse database id")
}

func (s *SourceTestSuite) TestFetchPosts_FollowsCursor() {
	first := "11111111-1111-4111-8111-111111111111"
	second := "22222222-2222-4222-8222-222222222222"

	s.script(
		s.reply([]json.RawMessage{s.page(first, nil)}, cursor("cursor-1")),
		s.reply([]json.RawMessage{s.page(second, nil)}, nil),
	)

	posts, err := s.newSource().FetchPosts(context.Background(), 5)
	s.Require().NoError(err)
	s.Require().Len(posts, 2)
	s.Equal(first, posts[0].ExternalID)
	s.Equal(second, posts[1].ExternalID)

	requests := s.recorded()
	s.Require().Len(requests, 2)

	req := requests[0]
	s.Equal(http.MethodPost, req.method)
	s.Equal("/v1/databases/"+testDatabaseID+"/query", req.path)
	s.Equal("Bearer "+testToken, req.header.Get("Authorization"))
	s.Equal("2022-06-28", req.header.Get("Notion-Version"))
	s.Equal("application/json", req.header.Get("Content-Type"))
	s.Equal(2, req.payload.PageSize)
	s.Nil(req.payload.StartCursor)
	s.Equal([]querySort{{Timestamp: "last_edited_time", Direction: "descending"}}, req.payload.Sorts)

	s.Require().NotNil(requests[1].payload.StartCursor)
	s.Equal("cursor-1", *requests[1].payload.StartCursor)
}

func (s *SourceTestSuite) TestFetchPosts_StopsAtMaxPages() {
	s.script(
		s.reply([]json.RawMessage{s.page("11111111-1111-4111-8111-111111111111", nil)}, cursor("more")),
	)

	posts, err := s.newSource().FetchPosts(context.Background(), 2)
	s.NoError(err)
	s.Len(posts, 2)
	s.Len(s.recorded(), 2)
}

func (s *SourceTestSuite) TestFetchPosts_SkipsInvalidPages() {
	valid := "11111111-1111-4111-8111-111111111111"

	s.script(
		s.reply([]json.RawMessage{
			s.page("33333333-3333-4333-8333-333333333333", func(m map[string]any) {
				property(m, "publish")["select"].(map[string]any)["name"] = "draft"
			}),
			s.page(valid, nil),
			s.page("44444444-4444-4444-8444-444444444444", func(m map[string]any) {
				m["parent"].(map[string]any)["database_id"] = "00000000-0000-4000-8000-000000000000"
			}),
			json.RawMessage(`"not an object"`),
		}, nil),
	)

	posts, err := s.newSource().FetchPosts(context.Background(), 5)
	s.NoError(err)
	s.Require().Len(posts, 1)
	s.Equal(valid, posts[0].ExternalID)
}

func (s *SourceTestSuite) TestFetchPosts_RetriesServerErrors() {
	s.script(
		replyError(http.StatusBadGateway, "", ""),
		replyError(http.StatusTooManyRequests, "rate_limited", "slow down"),
		s.reply([]json.RawMessage{s.page("11111111-1111-4111-8111-111111111111", nil)}, nil),
	)

	posts, err := s.newSource().FetchPosts(context.Background(), 1)
	s.NoError(err)
	s.Len(posts, 1)
	s.Len(s.recorded(), 3)
}

func (s *SourceTestSuite) TestFetchPosts_GivesUpAfterMaxAttempts() {
	s.script(
		replyError(http.StatusServiceUnavailable, "service_unavailable", "down"),
	)

	posts, err := s.newSource().FetchPosts(context.Background(), 1)
	s.Error(err)
	s.Empty(posts)
	s.Contains(err.Error(), "after 3 attempts")
	s.Len(s.recorded(), 3)
}

func (s *SourceTestSuite) TestFetchPosts_DoesNotRetryClientErrors() {
	s.script(
		replyError(http.StatusUnauthorized, "unauthorized", "API token is invalid."),
	)

	_, err := s.newSource().FetchPosts(context.Background(), 1)
	s.Require().Error(err)

	var apiErr *APIError
	s.Require().True(errors.As(err, &apiErr))
	s.Equal(http.StatusUnauthorized, apiErr.Status)
	s.Equal("unauthorized", apiErr.Code)
	s.False(apiErr.Retryable())
	s.Len(s.recorded(), 1)
}

func (s *SourceTestSuite) TestFetchPosts_ReturnsPartialResultsOnError() {
	s.script(
		s.reply([]json.RawMessage{s.page("11111111-1111-4111-8111-111111111111", nil)}, cursor("next")),
		replyError(http.StatusBadRequest, "validation_error", "bad cursor"),
	)

	posts, err := s.newSource().FetchPosts(context.Background(), 5)
	s.Error(err)
	s.Contains(err.Error(), "query page 1")
	s.Len(posts, 1)
}

func (s *SourceTestSuite) TestFetchPosts_RejectsNonListResponse() {
	s.script(
		func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"object":"page"}`))
		},
	)

	_, err := s.newSource().FetchPosts(context.Background(), 1)
	s.ErrorIs(err, ErrSchemaMismatch)
}

func (s *SourceTestSuite) TestCalculateBackoff() {
	src := &Source{initialBackoff: time.Second, maxBackoff: 30 * time.Second}

	s.Equal(time.Second, src.calculateBackoff(1))
	s.Equal(2*time.Second, src.calculateBackoff(2))
	s.Equal(16*time.Second, src.calculateBackoff(5))
	s.Equal(30*time.Second, src.calculateBackoff(6))
	s.Equal(30*time.Second, src.calculateBackoff(200))
}

func (s *SourceTestSuite) TestToPost() {
	page, err := DecodePage(encode(s.T(), loadFixture(s.T())))
	s.Require().NoError(err)

	post := ToPost(page)

	s.Equal(SourceID, post.SourceID)
	s.Equal("1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d", post.ExternalID)
	s.Equal(int64(12), post.Number)
	s.Equal("BLOG-12", post.Slug)
	s.Equal("Syncing Notion", post.Title)
	s.True(post.Published)
	s.False(post.Archived)
	s.Nil(post.PublicURL)
	s.Require().NotNil(post.Link)
	s.Equal("https://example.com/original", *post.Link)
	s.Require().NotNil(post.Thumbnail)
	s.Equal("https://images.example.com/thumb.png", *post.Thumbnail)
	s.Equal(time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC), post.CreatedTime)
	s.Equal(time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC), post.LastEditedTime)
	s.Require().Len(post.Tags, 2)
	s.Equal("tag-go", post.Tags[0].ID)
	s.Equal("Go", post.Tags[0].Name)
	s.Equal("blue", post.Tags[0].Color)
}

func (s *SourceTestSuite) TestToPost_TrashedIsArchived() {
	m := loadFixture(s.T())
	m["in_trash"] = true
	property(m, "publish")["select"].(map[string]any)["name"] = "非公開"

	page, err := DecodePage(encode(s.T(), m))
	s.Require().NoError(err)

	post := ToPost(page)
	s.True(post.Archived)
	s.False(post.Published)
}
