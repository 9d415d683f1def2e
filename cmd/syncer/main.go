package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"notion_syncer/internal/config"
	"notion_syncer/internal/publisher"
	"notion_syncer/internal/scheduler"
	"notion_syncer/internal/service"
	"notion_syncer/internal/source/notion"
	"notion_syncer/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single sync and exit")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	// stays a nil interface when publishing is disabled
	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	} else {
		logger.Warn("rabbitmq disabled, posts will not be published")
	}

	postStore := postgres.NewPostStore(db)
	tagStore := postgres.NewTagStore(db)
	syncStateStore := postgres.NewSyncStateStore(db)
	txManager := postgres.NewTransactionManager(db)

	notionSource, err := notion.New(notion.Config{
		BaseURL:        cfg.Notion.BaseURL,
		Token:          cfg.Notion.Token,
		DatabaseID:     cfg.Notion.DatabaseID,
		Version:        cfg.Notion.Version,
		PageSize:       cfg.Notion.PageSize,
		Timeout:        cfg.Notion.Timeout,
		MaxAttempts:    cfg.Notion.Retry.MaxAttempts,
		InitialBackoff: cfg.Notion.Retry.InitialBackoff,
		MaxBackoff:     cfg.Notion.Retry.MaxBackoff,
	}, logger)
	if err != nil {
		logger.Error("failed to create notion source", "error", err)
		os.Exit(1)
	}

	syncService := service.NewSyncService(
		notionSource,
		postStore,
		tagStore,
		syncStateStore,
		txManager,
		pub,
		logger,
		cfg.Sync,
	)

	sched := scheduler.NewScheduler(syncService, cfg.Sync.Interval, cfg.Sync.Timeout, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		if _, err := sched.RunOnce(ctx); err != nil {
			logger.Error("sync failed", "error", err)
			os.Exit(1)
		}
		return
	}

	logger.Info("starting notion syncer",
		"source", notionSource.Name(),
		"interval", cfg.Sync.Interval,
		"max_pages", cfg.Sync.MaxPagesPerSync,
		"include_drafts", cfg.Sync.IncludeDrafts,
	)

	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
