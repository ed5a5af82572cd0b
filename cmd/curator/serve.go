package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/shareclub/curator/internal/archive"
	"github.com/shareclub/curator/internal/bot"
	"github.com/shareclub/curator/internal/channel/adapters/onebot"
	"github.com/shareclub/curator/internal/config"
	"github.com/shareclub/curator/internal/db"
	"github.com/shareclub/curator/internal/handlers"
	"github.com/shareclub/curator/internal/logger"
	"github.com/shareclub/curator/internal/media"
	"github.com/shareclub/curator/internal/publish"
	"github.com/shareclub/curator/internal/record"
	"github.com/shareclub/curator/internal/server"
	"github.com/shareclub/curator/internal/session"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBPool,
			provideStore,
			provideIngestor,
			providePublisher,
			provideGenerator,
			provideAdapter,
			provideProcessor,
			provideLoop,
			handlers.NewPingHandler,
			provideArchiveHandler,
			provideServer,
		),
		fx.Invoke(
			configureGit,
			startBot,
			startPublishSchedule,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, err
	}
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideStore(log *slog.Logger, pool *pgxpool.Pool) *record.Store {
	return record.NewStore(log, pool)
}

func provideIngestor(log *slog.Logger) *media.Ingestor {
	return media.NewIngestor(log, nil)
}

func providePublisher(log *slog.Logger, cfg config.Config) *publish.Git {
	return publish.NewGit(log, cfg.Git)
}

func provideGenerator(log *slog.Logger, cfg config.Config, store *record.Store, git *publish.Git) *archive.Generator {
	return archive.NewGenerator(log, store, archivePublisher(cfg.Git, git))
}

// archivePublisher returns a true nil interface, not a typed nil, when
// publishing is disabled so the generator leaves the tree local.
func archivePublisher(cfg config.GitConfig, git *publish.Git) archive.Publisher {
	if cfg.RepositoryDir == "" {
		return nil
	}
	return git
}

func provideAdapter(log *slog.Logger, cfg config.Config) *onebot.Adapter {
	return onebot.NewAdapter(log, cfg.Bot.WSURL, cfg.Bot.AccessToken)
}

func provideProcessor(log *slog.Logger, store *record.Store, adapter *onebot.Adapter, images *media.Ingestor, generator *archive.Generator, publisher *publish.Git) *session.Processor {
	return session.NewProcessor(log, store, adapter, images, generator, publisher)
}

func provideLoop(log *slog.Logger, adapter *onebot.Adapter, processor *session.Processor, store *record.Store) *bot.Loop {
	return bot.NewLoop(log, adapter, adapter, processor, store)
}

func provideArchiveHandler(log *slog.Logger, generator *archive.Generator) *handlers.ArchiveHandler {
	return handlers.NewArchiveHandler(log, generator)
}

func provideServer(cfg config.Config, pingHandler *handlers.PingHandler, archiveHandler *handlers.ArchiveHandler) *server.Server {
	return server.NewServer(cfg.Server.Addr, pingHandler, archiveHandler)
}

func configureGit(publisher *publish.Git) {
	publisher.Configure(context.Background())
}

func startBot(lc fx.Lifecycle, log *slog.Logger, shutdowner fx.Shutdowner, adapter *onebot.Adapter, loop *bot.Loop) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := adapter.Connect(startCtx); err != nil {
				cancel()
				return err
			}
			go runBotLoop(ctx, log, loop, shutdowner)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return adapter.Close()
		},
	})
}

type botRunner interface {
	Run(ctx context.Context) error
}

// runBotLoop blocks on the event loop. The loop returning while the context is
// still live means the websocket dropped and the event stream closed; the
// process shuts down so the supervisor restarts it with a fresh connection.
func runBotLoop(ctx context.Context, log *slog.Logger, loop botRunner, shutdowner fx.Shutdowner) {
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("bot loop exited", slog.Any("error", err))
	}
	if ctx.Err() != nil {
		return
	}
	log.Error("event stream closed, shutting down")
	if err := shutdowner.Shutdown(); err != nil {
		log.Error("shutdown request failed", slog.Any("error", err))
	}
}

func startPublishSchedule(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, generator *archive.Generator) error {
	if cfg.Archive.PublishCron == "" {
		return nil
	}
	schedule := cron.New()
	_, err := schedule.AddFunc(cfg.Archive.PublishCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := generator.Generate(ctx); err != nil {
			log.Error("scheduled publish failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("parse publish cron: %w", err)
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { schedule.Start(); return nil },
		OnStop:  func(ctx context.Context) error { schedule.Stop(); return nil },
	})
	return nil
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server exited", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown()
		},
	})
}
