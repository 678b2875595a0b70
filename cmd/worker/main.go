package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/atrium-hq/atrium/internal/app"
	"github.com/atrium-hq/atrium/internal/authz"
	jobmetrics "github.com/atrium-hq/atrium/internal/jobs"
	"github.com/atrium-hq/atrium/internal/platform/db"
	"github.com/atrium-hq/atrium/internal/registry"
	"github.com/atrium-hq/atrium/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	reg := registry.New()
	overrideRepo := authz.NewRepository(pool)
	metrics := jobmetrics.NewMetrics(nil)
	seedJob := jobs.NewAuthzSeedJob(overrideRepo, reg, logger, metrics)
	sweepJob := jobs.NewAuthzSweepJob(overrideRepo, reg, logger, metrics)

	// Seed the catalog once at startup so a fresh database is usable before
	// the first cron fires.
	if err := seedJob.Handle(ctx, jobs.NewAuthzSeedTask()); err != nil {
		logger.Error("initial catalog seed", slog.Any("error", err))
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuthzSeed, Handler: seedJob.Handle},
			{Type: jobs.TaskAuthzSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@daily", Task: jobs.NewAuthzSeedTask()},
			{Spec: "@daily", Task: jobs.NewAuthzSweepTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
