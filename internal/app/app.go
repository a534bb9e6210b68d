package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"BriefingScanner/internal/config"
	"BriefingScanner/internal/deliver"
	"BriefingScanner/internal/extract"
	"BriefingScanner/internal/infrastructure/browser"
	"BriefingScanner/internal/infrastructure/market"
	"BriefingScanner/internal/infrastructure/render"
	"BriefingScanner/internal/infrastructure/scheduler"
	"BriefingScanner/internal/infrastructure/storage"
	"BriefingScanner/internal/infrastructure/telegram"
	"BriefingScanner/internal/logging"
	"BriefingScanner/internal/orchestrate"
	"BriefingScanner/internal/ports"
	"BriefingScanner/internal/server"
	"BriefingScanner/internal/usecase"
)

const shutdownGrace = 10 * time.Second

// Application wires configuration to adapters and owns their lifecycle.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	server    *server.Server
	channel   *telegram.Channel
	db        *sql.DB
}

// New builds the runnable application. tickers narrows the scan set
// when non-empty.
func New(cfg config.Config, baseLogger *slog.Logger, tickers []string) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.NewWithFile(cfg.Logging.Level, cfg.Logging.File)
	}

	var snapshots ports.SnapshotStore = storage.NoopStore{}
	var db *sql.DB
	if cfg.Database.DSN == "" {
		baseLogger.Warn("database dsn empty, snapshot archiving disabled")
	} else {
		var err error
		db, err = storage.Open(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open snapshot store: %w", err)
		}
		snapshots = storage.NewSnapshotStore(db)
	}

	extractor := extract.New(cfg, baseLogger.With("component", "extract"))

	batch := orchestrate.New(cfg, orchestrate.Options{}, orchestrate.Deps{
		OpenSession: func(ctx context.Context) (ports.PageFetcher, error) {
			return browser.New(ctx, cfg, baseLogger.With("component", "browser"))
		},
		Extractor: extractor,
		Snapshots: snapshots,
		Logger:    baseLogger.With("component", "orchestrate"),
	})

	channel := telegram.NewChannel(cfg.Notifications.Telegram, cfg.Delivery.SendRate(),
		baseLogger.With("component", "telegram"))
	marketClient := market.NewClient(cfg.Market.Endpoint)
	charts := render.NewChart()

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Batch:     batch,
		Formatter: deliver.NewFormatter(cfg.Delivery.ChunkLength()),
		Channel:   channel,
		Market:    marketClient,
		Charts:    charts,
		Cards:     render.NewCard(),
		Logger:    baseLogger.With("component", "pipeline"),
	}, tickers, cfg.Delivery.ImageMode())

	cron := scheduler.NewCronScheduler(
		cfg.Scheduler.CronExpression,
		cfg.Scheduler.Location(),
		cfg.Scheduler.Immediate(),
		baseLogger.With("component", "scheduler"),
	)

	srv := server.New(server.Deps{
		Trigger: func(ctx context.Context) usecase.RunReport {
			return pipeline.RunDaily(ctx, time.Now().In(cfg.Scheduler.Location()))
		},
		Snapshots: snapshots,
		Market:    marketClient,
		Charts:    charts,
		Cfg:       cfg,
		Logger:    baseLogger.With("component", "server"),
	})

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		pipeline:  pipeline,
		scheduler: usecase.NewScheduler(cron, pipeline),
		server:    srv,
		channel:   channel,
		db:        db,
	}, nil
}

// Run starts the scheduler and the HTTP server and blocks until ctx is
// cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if username, err := a.channel.Me(ctx); err != nil {
		a.logger.Warn("telegram probe failed", "error", err)
	} else {
		a.logger.Info("telegram bot ready", "username", username)
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "port", a.cfg.Server.Port)
		errCh <- a.server.Start(a.cfg.Server.Port)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case err := <-errCh:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop", "error", err)
	}
	if err := a.Close(); err != nil {
		a.logger.Warn("close resources", "error", err)
	}

	return runErr
}

// RunOnce executes a single pipeline run and exits.
func (a *Application) RunOnce(ctx context.Context) error {
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Warn("close resources", "error", err)
		}
	}()

	report := a.pipeline.RunDaily(ctx, time.Now().In(a.cfg.Scheduler.Location()))
	if !report.Success {
		return fmt.Errorf("run %s failed", report.RunID)
	}
	a.logger.Info("single run finished", "run_id", report.RunID, "elapsed", report.Elapsed)
	return nil
}

// Close releases held resources.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
