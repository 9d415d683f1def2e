//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"notion_syncer/internal/domain"
	"notion_syncer/testdata/utils"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange",
		RoutingKey: "test-routing-key",
		QueueName:  "test-queue",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.NoError(err)
	s.NotNil(pub)

	err = pub.Close()
	s.NoError(err)
}

func (s *RabbitMQIntegrationSuite) newPublisher(name string) (*RabbitMQ, Config) {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-" + name,
		RoutingKey: "test-routing-key-" + name,
		QueueName:  "test-queue-" + name,
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	return pub, cfg
}

func testPost(externalID string) *domain.Post {
	now := time.Now().Truncate(time.Millisecond)
	return &domain.Post{
		ID:             1,
		SourceID:       "notion",
		ExternalID:     externalID,
		Number:         3,
		Slug:           "BLOG-3",
		Title:          "Test Post",
		Published:      true,
		URL:            "https://www.notion.so/test-post",
		CreatedTime:    now,
		LastEditedTime: now,
	}
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishCreate() {
	pub, cfg := s.newPublisher("create")
	defer pub.Close()

	err := pub.Publish(s.ctx, testPost("11111111-1111-4111-8111-111111111111"), true)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	var received PostMessage
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)
	s.Equal(ActionCreate, received.Action)
	s.Equal("11111111-1111-4111-8111-111111111111", received.Post.ExternalID)
	s.Equal("Test Post", received.Post.Title)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishUpdate() {
	pub, cfg := s.newPublisher("update")
	defer pub.Close()

	post := testPost("22222222-2222-4222-8222-222222222222")
	post.Published = false

	err := pub.Publish(s.ctx, post, false)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	var received PostMessage
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)
	s.Equal(ActionUpdate, received.Action)
	s.False(received.Post.Published)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_MessageFormat() {
	pub, cfg := s.newPublisher("format")
	defer pub.Close()

	post := testPost("33333333-3333-4333-8333-333333333333")
	post.PublicURL = utils.Ptr("https://blog.notion.site/test-post")
	post.Link = utils.Ptr("https://example.com/original")
	post.Thumbnail = utils.Ptr("https://example.com/image.jpg")
	post.Tags = []domain.Tag{
		{ID: "tag-1", Name: "Go", Color: "blue"},
		{ID: "tag-2", Name: "Notion", Color: "red"},
	}

	err := pub.Publish(s.ctx, post, true)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	s.Equal("application/json", msg.ContentType)
	s.Equal("notion:33333333-3333-4333-8333-333333333333", msg.MessageId)

	var received PostMessage
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)

	s.Equal("notion", received.Post.SourceID)
	s.Equal(int64(3), received.Post.Number)
	s.Equal("BLOG-3", received.Post.Slug)
	s.Require().NotNil(received.Post.PublicURL)
	s.Equal("https://blog.notion.site/test-post", *received.Post.PublicURL)
	s.Require().NotNil(received.Post.Thumbnail)
	s.Equal("https://example.com/image.jpg", *received.Post.Thumbnail)
	s.Len(received.Post.Tags, 2)
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_MessagePersistence() {
	pub, cfg := s.newPublisher("persist")
	defer pub.Close()

	err := pub.Publish(s.ctx, testPost("44444444-4444-4444-8444-444444444444"), true)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}